package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
	path "github.com/vulpemventures/ocean-multisig/pkg/derivation-path"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

const localCosignerName = "me"

// AccountService is responsible for operations related to multisig accounts:
//   - Preview the first address of the account being set up in the wizard session.
//   - Create an account out of a completed wizard session.
//   - List accounts and derive their addresses.
//
// Since every cosigner sorts the keys the same way (BIP67), the first
// address previewed here is the same one shown to all other cosigners, no
// matter the order they collected the xpubs.
type AccountService struct {
	repoManager    ports.RepoManager
	sessionService *SessionService
	network        string

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewAccountService(
	repoManager ports.RepoManager, sessionService *SessionService,
	network string,
) *AccountService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("account service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("account service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &AccountService{repoManager, sessionService, network, logFn, warnFn}
}

// PreviewAddress returns the first receive address of the account described
// by the active wizard session.
func (as *AccountService) PreviewAddress(ctx context.Context) (string, error) {
	session, err := as.sessionService.GetActiveSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", ErrNoActiveSession
	}

	payment, err := as.previewPayment(session.State)
	if err != nil {
		return "", err
	}
	return payment.Address, nil
}

// CreateAccount creates a multisig account from the completed wizard session
// owned by the given tab, and ends the session.
func (as *AccountService) CreateAccount(
	ctx context.Context, tabID int,
) (*AccountInfo, error) {
	session, err := as.sessionService.GetActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoActiveSession
	}
	if session.TabID != tabID {
		return nil, ErrSessionNotOwned
	}
	state := session.State
	if session.Step != domain.MaxWizardStep || !state.AddressVerified {
		return nil, ErrSessionIncomplete
	}

	payment, err := as.previewPayment(state)
	if err != nil {
		return nil, err
	}
	if payment.Address != state.FirstAddress {
		return nil, ErrFirstAddressChanged
	}

	required, _, _ := state.Threshold()
	addressType := multisig.AddressType(state.AddressType)
	cosigners := make([]domain.Cosigner, 0, len(state.CosignerXpubs)+1)
	cosigners = append(cosigners, domain.Cosigner{
		Name:           localCosignerName,
		Fingerprint:    state.LocalFingerprint,
		Xpub:           state.LocalXpub,
		DerivationPath: as.accountPath(addressType, state.LocalDerivationPath),
		IsLocal:        true,
	})
	for _, c := range state.CosignerXpubs {
		cosigners = append(cosigners, domain.Cosigner{
			Name:           c.Name,
			Fingerprint:    c.Fingerprint,
			Xpub:           c.Xpub,
			DerivationPath: as.accountPath(addressType, c.DerivationPath),
		})
	}

	accounts, err := as.repoManager.AccountRepository().GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	index := uint32(0)
	for _, a := range accounts {
		if a.Index >= index {
			index = a.Index + 1
		}
	}

	account, err := domain.NewMultisigAccount(
		index, state.AccountName, required, state.AddressType, as.network,
		cosigners, time.Now().Unix(),
	)
	if err != nil {
		return nil, err
	}
	added, err := as.repoManager.AccountRepository().AddAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, fmt.Errorf("account with index %d already exists", index)
	}

	if err := as.sessionService.DeleteSession(ctx); err != nil {
		as.warn(err, "failed to remove completed session")
	}

	as.log(
		"created %d-of-%d account %d (%s)",
		required, len(cosigners), account.Index, account.FirstAddress,
	)
	return (*AccountInfo)(account), nil
}

func (as *AccountService) GetAccounts(
	ctx context.Context,
) ([]*AccountInfo, error) {
	accounts, err := as.repoManager.AccountRepository().GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	info := make([]*AccountInfo, 0, len(accounts))
	for _, a := range accounts {
		info = append(info, (*AccountInfo)(a))
	}
	return info, nil
}

func (as *AccountService) GetAccount(
	ctx context.Context, accountIndex uint32,
) (*AccountInfo, error) {
	account, err := as.repoManager.AccountRepository().GetAccount(
		ctx, accountIndex,
	)
	if err != nil {
		return nil, err
	}
	return (*AccountInfo)(account), nil
}

// DeriveAddress derives the address at the given chain and index.
func (as *AccountService) DeriveAddress(
	ctx context.Context, accountIndex, chain, index uint32,
) (*AddressInfo, error) {
	if chain != path.ExternalChain && chain != path.InternalChain {
		return nil, path.ErrInvalidChain
	}
	account, err := as.repoManager.AccountRepository().GetAccount(
		ctx, accountIndex,
	)
	if err != nil {
		return nil, err
	}
	payment, err := account.DeriveAddress(chain, index)
	if err != nil {
		return nil, err
	}
	return newAddressInfo(account.Index, payment, chain, index), nil
}

// DeriveNextAddress derives the next unused address of the given chain.
func (as *AccountService) DeriveNextAddress(
	ctx context.Context, accountIndex, chain uint32,
) (*AddressInfo, error) {
	if chain != path.ExternalChain && chain != path.InternalChain {
		return nil, path.ErrInvalidChain
	}

	var info *AddressInfo
	if err := as.repoManager.AccountRepository().UpdateAccount(
		ctx, accountIndex,
		func(a *domain.MultisigAccount) (*domain.MultisigAccount, error) {
			payment, index, err := a.DeriveNextAddress(chain)
			if err != nil {
				return nil, err
			}
			info = newAddressInfo(a.Index, payment, chain, index)
			return a, nil
		},
	); err != nil {
		return nil, err
	}
	return info, nil
}

func (as *AccountService) previewPayment(
	state domain.WizardState,
) (*multisig.Payment, error) {
	required, total, err := state.Threshold()
	if err != nil {
		return nil, err
	}
	if len(state.CosignerXpubs) != total-1 {
		return nil, ErrCosignersCount
	}
	addressType, err := multisig.ParseAddressType(state.AddressType)
	if err != nil {
		return nil, err
	}
	net, err := multisig.NetworkByName(as.network)
	if err != nil {
		return nil, err
	}

	xpubs := make([]string, 0, total)
	xpubs = append(xpubs, state.LocalXpub)
	for _, c := range state.CosignerXpubs {
		xpubs = append(xpubs, c.Xpub)
	}

	return multisig.DeriveAddress(multisig.DeriveAddressArgs{
		Xpubs:              xpubs,
		RequiredSignatures: required,
		AddressType:        addressType,
		Network:            net,
		Chain:              path.ExternalChain,
		Index:              0,
	})
}

func (as *AccountService) accountPath(
	addressType multisig.AddressType, derivationPath string,
) string {
	if len(derivationPath) > 0 {
		return derivationPath
	}
	return multisig.DefaultAccountPath(
		addressType, multisig.CoinType(as.network), 0,
	).String()
}

func newAddressInfo(
	accountIndex uint32, payment *multisig.Payment, chain, index uint32,
) *AddressInfo {
	return &AddressInfo{
		AccountIndex:   accountIndex,
		Address:        payment.Address,
		Script:         hex.EncodeToString(payment.OutputScript),
		DerivationPath: fmt.Sprintf("%d/%d", chain, index),
	}
}
