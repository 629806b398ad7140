package ws_handler

import (
	"errors"

	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/pkg/bip67"
	path "github.com/vulpemventures/ocean-multisig/pkg/derivation-path"
	"github.com/vulpemventures/ocean-multisig/pkg/mnemonic"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

const internalErrorMessage = "internal error"

var (
	// Errors whose message is replaced with a more actionable one.
	userMessages = []struct {
		err error
		msg string
	}{
		{application.ErrBroadcastFailed, "broadcast failed, the transaction is still pending and can be broadcast again"},
		{application.ErrStorage, "wizard session storage unavailable, please retry"},
		{application.ErrSessionAlreadyActive, "another tab is already setting up an account, close it or wait for it to finish"},
		{application.ErrNoActiveSession, "no account setup in progress, it may have expired"},
		{application.ErrPsbtMismatch, "this psbt is for a different transaction than the pending one, or spends the same coins"},
		{application.ErrForeignPsbt, "this psbt does not spend funds of the selected account"},
		{application.ErrWalletLocked, "wallet is locked, unlock it and retry"},
		{application.ErrAlreadyBroadcast, "this transaction has already been broadcast"},
		{application.ErrPendingTxExpired, "this pending transaction has expired, create it again"},
		{domain.ErrPendingTxNotFound, "pending transaction not found, it may have expired or already been broadcast"},
		{domain.ErrPendingTxFinalized, "pending transaction was already broadcast or deleted"},
		{multisig.ErrInvalidPsbt, "invalid psbt, make sure it's a base64 encoded psbt"},
	}

	// Errors whose message is already meaningful to the user.
	knownErrors = []error{
		application.ErrAlreadyFullySigned,
		application.ErrNotFullySigned,
		application.ErrSessionNotOwned,
		application.ErrSessionIncomplete,
		application.ErrMissingLocalKey,
		application.ErrWrongLocalKey,
		application.ErrCosignersCount,
		application.ErrFirstAddressChanged,
		domain.ErrAccountNotFound,
		domain.ErrAccountMissingName,
		domain.ErrAccountInvalidThreshold,
		domain.ErrAccountDuplicateXpub,
		domain.ErrAccountDuplicateFp,
		domain.ErrAccountTooManyLocal,
		domain.ErrInvalidWizardStep,
		domain.ErrInvalidWizardUpdate,
		domain.ErrInvalidSelectedConfig,
		domain.ErrWizardMissingTabID,
		bip67.ErrEmptyKeySet,
		bip67.ErrInvalidKeyFormat,
		bip67.ErrInsufficientKeys,
		bip67.ErrTooManyKeys,
		bip67.ErrDuplicateKey,
		multisig.ErrInvalidXpub,
		multisig.ErrInvalidFingerprint,
		multisig.ErrInvalidThreshold,
		multisig.ErrInvalidAddressType,
		multisig.ErrMissingPrevTx,
		multisig.ErrMissingPrevOut,
		multisig.ErrMissingInputScript,
		multisig.ErrForeignInput,
		multisig.ErrPsbtFinalized,
		mnemonic.ErrInvalidMnemonic,
		path.ErrInvalidChain,
	}
)

// UserMessage returns the text shown to the user for the given error. Errors
// not known to be safe to show are reported as a generic internal error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInvalidRequest) {
		return err.Error()
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	for _, e := range knownErrors {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return internalErrorMessage
}

// IsInternal returns whether the given error is not one the user can act on.
func IsInternal(err error) bool {
	return UserMessage(err) == internalErrorMessage
}
