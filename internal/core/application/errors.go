package application

import (
	"fmt"
)

var (
	ErrAlreadyFullySigned = fmt.Errorf("transaction is already fully signed")
	ErrForeignPsbt        = fmt.Errorf("psbt does not belong to the account")
	ErrPsbtMismatch       = fmt.Errorf(
		"psbt does not match the pending transaction, only signatures can be added",
	)
	ErrNotFullySigned   = fmt.Errorf("transaction has not enough signatures")
	ErrBroadcastFailed  = fmt.Errorf("broadcast failed")
	ErrAlreadyBroadcast = fmt.Errorf("transaction has already been broadcast")
	ErrPendingTxExpired = fmt.Errorf("pending transaction has expired")

	ErrSessionAlreadyActive = fmt.Errorf("another wizard session is active")
	ErrNoActiveSession      = fmt.Errorf("no active wizard session")
	ErrSessionNotOwned      = fmt.Errorf("wizard session belongs to another tab")
	ErrSessionIncomplete    = fmt.Errorf(
		"wizard session must reach the last step with a verified address",
	)
	ErrStorage = fmt.Errorf("session storage error")

	ErrWalletLocked        = fmt.Errorf("wallet is locked")
	ErrMissingLocalKey     = fmt.Errorf("account has no local cosigner")
	ErrWrongLocalKey       = fmt.Errorf("unlocked key does not belong to the account")
	ErrCosignersCount      = fmt.Errorf("number of cosigners does not match the selected config")
	ErrFirstAddressChanged = fmt.Errorf("first address does not match the verified one")
)

// BroadcastError is returned when the broadcaster fails. The pending
// transaction is left untouched so that broadcasting can be retried.
type BroadcastError struct {
	Cause error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("%s: %s", ErrBroadcastFailed, e.Cause)
}

func (e *BroadcastError) Unwrap() []error {
	return []error{ErrBroadcastFailed, e.Cause}
}

// StorageError wraps any failure of the session storage.
type StorageError struct {
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStorage, e.Cause)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Cause}
}
