package application

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
	"github.com/vulpemventures/ocean-multisig/pkg/mnemonic"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

// WalletService is responsible for the local cosigner key:
//   - Generate a new random mnemonic.
//   - Unlock the wallet with a mnemonic, that is keeping its master key in the key store until locked.
//   - Lock the wallet by wiping the master key.
//   - Return the account xpub and master fingerprint used by the wizard to register the local cosigner.
type WalletService struct {
	keyStore ports.KeyStore
	network  string

	log func(format string, a ...interface{})
}

func NewWalletService(keyStore ports.KeyStore, network string) *WalletService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("wallet service: %s", format)
		log.Debugf(format, a...)
	}
	return &WalletService{keyStore, network, logFn}
}

func (ws *WalletService) GenSeed(ctx context.Context) ([]string, error) {
	return mnemonic.NewMnemonic(mnemonic.NewMnemonicArgs{})
}

// Unlock derives the master key from the given mnemonic and keeps it in the
// key store. It returns the master fingerprint.
func (ws *WalletService) Unlock(
	ctx context.Context, words []string,
) (string, error) {
	net, err := multisig.NetworkByName(ws.network)
	if err != nil {
		return "", err
	}
	masterKey, err := mnemonic.MasterKey(words, net)
	if err != nil {
		return "", err
	}
	fingerprint, err := multisig.MasterFingerprint(masterKey)
	if err != nil {
		return "", err
	}

	ws.keyStore.Set(masterKey)
	ws.log("wallet unlocked")
	return multisig.FingerprintToString(fingerprint), nil
}

func (ws *WalletService) Lock(ctx context.Context) {
	ws.keyStore.Unset()
	ws.log("wallet locked")
}

func (ws *WalletService) IsUnlocked(ctx context.Context) bool {
	return ws.keyStore.IsSet()
}

// AccountXpub returns the account key of the local cosigner for the given
// address type and account number.
func (ws *WalletService) AccountXpub(
	ctx context.Context, addressType string, account uint32,
) (*AccountKeyInfo, error) {
	addrType, err := multisig.ParseAddressType(addressType)
	if err != nil {
		return nil, err
	}
	net, err := multisig.NetworkByName(ws.network)
	if err != nil {
		return nil, err
	}
	masterKey, err := ws.keyStore.Get()
	if err != nil {
		return nil, ErrWalletLocked
	}

	accountPath := multisig.DefaultAccountPath(
		addrType, multisig.CoinType(ws.network), account,
	)
	xpub, err := multisig.AccountXpub(masterKey, accountPath, net)
	if err != nil {
		return nil, err
	}
	fingerprint, err := multisig.MasterFingerprint(masterKey)
	if err != nil {
		return nil, err
	}

	return &AccountKeyInfo{
		Xpub:           xpub,
		Fingerprint:    multisig.FingerprintToString(fingerprint),
		DerivationPath: accountPath.String(),
	}, nil
}
