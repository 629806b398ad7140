package domain

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/vulpemventures/ocean-multisig/pkg/bip67"
	path "github.com/vulpemventures/ocean-multisig/pkg/derivation-path"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

var (
	ErrAccountMissingName      = fmt.Errorf("missing account name")
	ErrAccountInvalidNetwork   = fmt.Errorf("unknown network")
	ErrAccountInvalidThreshold = fmt.Errorf("required signatures must be in range [1, number of cosigners]")
	ErrAccountDuplicateXpub    = fmt.Errorf("cosigners must have distinct xpubs")
	ErrAccountDuplicateFp      = fmt.Errorf("cosigners must have distinct fingerprints")
	ErrAccountTooManyLocal     = fmt.Errorf("at most one cosigner can be local")
	ErrAccountNotFound         = fmt.Errorf("account not found")
)

// Cosigner is a key holder of a MultisigAccount.
type Cosigner struct {
	Name string
	// Fingerprint is the master key fingerprint in hex format.
	Fingerprint    string
	Xpub           string
	DerivationPath string
	// IsLocal is true for the cosigner whose key is held by this wallet.
	IsLocal bool
}

// MultisigAccount is an M-of-N account shared by a set of cosigners.
type MultisigAccount struct {
	Index              uint32
	Name               string
	RequiredSignatures int
	AddressType        string
	Network            string
	Cosigners          []Cosigner
	FirstAddress       string
	NextExternalIndex  uint32
	NextInternalIndex  uint32
	CreatedAt          int64
}

// NewMultisigAccount validates the cosigners' keys and returns a new account
// along with its first receive address.
func NewMultisigAccount(
	index uint32, name string, required int, addressType, network string,
	cosigners []Cosigner, createdAt int64,
) (*MultisigAccount, error) {
	name = strings.TrimSpace(name)
	if len(name) <= 0 {
		return nil, ErrAccountMissingName
	}
	if _, err := multisig.NetworkByName(network); err != nil {
		return nil, ErrAccountInvalidNetwork
	}
	if _, err := multisig.ParseAddressType(addressType); err != nil {
		return nil, err
	}
	if required < 1 || required > len(cosigners) {
		return nil, ErrAccountInvalidThreshold
	}

	account := &MultisigAccount{
		Index:              index,
		Name:               name,
		RequiredSignatures: required,
		AddressType:        addressType,
		Network:            network,
		Cosigners:          cosigners,
		CreatedAt:          createdAt,
	}
	if err := account.validateCosigners(); err != nil {
		return nil, err
	}

	payment, err := account.DeriveAddress(path.ExternalChain, 0)
	if err != nil {
		return nil, err
	}
	account.FirstAddress = payment.Address
	account.NextExternalIndex = 1

	return account, nil
}

func (a *MultisigAccount) validateCosigners() error {
	xpubs := make(map[string]struct{})
	fingerprints := make(map[string]struct{})
	keys := make([][]byte, 0, len(a.Cosigners))
	numOfLocal := 0

	for i, c := range a.Cosigners {
		if _, err := multisig.ParseXpub(c.Xpub); err != nil {
			return fmt.Errorf("cosigner %d: %w", i, err)
		}
		if _, err := multisig.ParseFingerprint(c.Fingerprint); err != nil {
			return fmt.Errorf("cosigner %d: %w", i, err)
		}
		if _, err := path.ParseAccountDerivationPath(c.DerivationPath); err != nil {
			return fmt.Errorf("cosigner %d: %w", i, err)
		}
		if _, ok := xpubs[c.Xpub]; ok {
			return ErrAccountDuplicateXpub
		}
		if _, ok := fingerprints[c.Fingerprint]; ok {
			return ErrAccountDuplicateFp
		}
		if c.IsLocal {
			numOfLocal++
		}
		xpubs[c.Xpub] = struct{}{}
		fingerprints[c.Fingerprint] = struct{}{}

		key, err := multisig.DeriveChildPubKey(c.Xpub, path.ExternalChain, 0)
		if err != nil {
			return fmt.Errorf("cosigner %d: %w", i, err)
		}
		keys = append(keys, key.SerializeCompressed())
	}
	if numOfLocal > 1 {
		return ErrAccountTooManyLocal
	}

	return bip67.ValidateForMultisig(keys)
}

// NetworkParams returns the chain params of the account network.
func (a *MultisigAccount) NetworkParams() *chaincfg.Params {
	net, _ := multisig.NetworkByName(a.Network)
	return net
}

// Xpubs returns the cosigners' xpubs in the order they were registered.
func (a *MultisigAccount) Xpubs() []string {
	xpubs := make([]string, 0, len(a.Cosigners))
	for _, c := range a.Cosigners {
		xpubs = append(xpubs, c.Xpub)
	}
	return xpubs
}

// MultisigCosigners converts the account cosigners to the format expected by
// the psbt helpers.
func (a *MultisigAccount) MultisigCosigners() ([]multisig.Cosigner, error) {
	cosigners := make([]multisig.Cosigner, 0, len(a.Cosigners))
	for _, c := range a.Cosigners {
		fingerprint, err := multisig.ParseFingerprint(c.Fingerprint)
		if err != nil {
			return nil, err
		}
		accountPath, err := path.ParseAccountDerivationPath(c.DerivationPath)
		if err != nil {
			return nil, err
		}
		cosigners = append(cosigners, multisig.Cosigner{
			Xpub:              c.Xpub,
			MasterFingerprint: fingerprint,
			AccountPath:       accountPath,
		})
	}
	return cosigners, nil
}

// Roster maps every cosigner fingerprint to its name.
func (a *MultisigAccount) Roster() map[string]string {
	roster := make(map[string]string, len(a.Cosigners))
	for _, c := range a.Cosigners {
		roster[c.Fingerprint] = c.Name
	}
	return roster
}

// LocalCosigner returns the cosigner held by this wallet, if any.
func (a *MultisigAccount) LocalCosigner() (*Cosigner, bool) {
	for _, c := range a.Cosigners {
		if c.IsLocal {
			cosigner := c
			return &cosigner, true
		}
	}
	return nil, false
}

// HasFingerprint returns whether one of the cosigners has the given
// fingerprint.
func (a *MultisigAccount) HasFingerprint(fingerprint string) bool {
	for _, c := range a.Cosigners {
		if c.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

// DeriveAddress derives the multisig address at <chain>/<index>.
func (a *MultisigAccount) DeriveAddress(
	chain, index uint32,
) (*multisig.Payment, error) {
	return multisig.DeriveAddress(multisig.DeriveAddressArgs{
		Xpubs:              a.Xpubs(),
		RequiredSignatures: a.RequiredSignatures,
		AddressType:        multisig.AddressType(a.AddressType),
		Network:            a.NetworkParams(),
		Chain:              chain,
		Index:              index,
	})
}

// DeriveNextAddress derives the next unused address of the given chain and
// moves the related index forward.
func (a *MultisigAccount) DeriveNextAddress(
	chain uint32,
) (*multisig.Payment, uint32, error) {
	next := &a.NextExternalIndex
	if chain == path.InternalChain {
		next = &a.NextInternalIndex
	}

	index := *next
	payment, err := a.DeriveAddress(chain, index)
	if err != nil {
		return nil, 0, err
	}
	*next++
	return payment, index, nil
}
