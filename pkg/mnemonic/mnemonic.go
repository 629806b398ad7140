package mnemonic

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	tbip39 "github.com/tyler-smith/go-bip39"
	"github.com/vulpemventures/go-bip39"
)

var (
	ErrInvalidEntropySize = fmt.Errorf("entropy size must be 128 or 256")
	ErrInvalidMnemonic    = fmt.Errorf("mnemonic is invalid")
	ErrMissingNetwork     = fmt.Errorf("missing network")
)

type NewMnemonicArgs struct {
	EntropySize uint32
}

func (a NewMnemonicArgs) validate() error {
	if a.EntropySize > 0 {
		if a.EntropySize != 128 && a.EntropySize != 256 {
			return ErrInvalidEntropySize
		}
	}
	return nil
}

// NewMnemonic returns a new mnemonic as a list of words:
//   - EntropySize: 256 -> 24-words mnemonic.
//   - EntropySize: 128 -> 12-words mnemonic.
func NewMnemonic(args NewMnemonicArgs) ([]string, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	if args.EntropySize == 0 {
		args.EntropySize = 256
	}

	entropy, err := tbip39.NewEntropy(int(args.EntropySize))
	if err != nil {
		return nil, err
	}
	return FromEntropy(entropy)
}

// FromEntropy returns the mnemonic encoding the given entropy.
func FromEntropy(entropy []byte) ([]string, error) {
	mnemonic, err := tbip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Split(mnemonic, " "), nil
}

// IsValid returns whether the words form a valid BIP39 mnemonic.
func IsValid(mnemonic []string) bool {
	return bip39.IsMnemonicValid(strings.Join(mnemonic, " "))
}

// MasterKey returns the BIP32 master key of the given mnemonic, with the
// version bytes of net.
func MasterKey(
	mnemonic []string, net *chaincfg.Params,
) (*hdkeychain.ExtendedKey, error) {
	if !IsValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	if net == nil {
		return nil, ErrMissingNetwork
	}
	seed := bip39.NewSeed(strings.Join(mnemonic, " "), "")
	return hdkeychain.NewMaster(seed, net)
}
