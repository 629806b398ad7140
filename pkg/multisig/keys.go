package multisig

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	path "github.com/vulpemventures/ocean-multisig/pkg/derivation-path"
)

// Cosigner is one of the key holders of a multisig account.
type Cosigner struct {
	// Xpub is the account extended public key.
	Xpub string
	// MasterFingerprint identifies the master key the xpub derives from. It's
	// encoded the way psbt stores it (little endian).
	MasterFingerprint uint32
	// AccountPath is the path from the master key to Xpub.
	AccountPath path.DerivationPath
}

// ChildPubKey derives the key at <chain>/<index> from the cosigner xpub.
func (c Cosigner) ChildPubKey(chain, index uint32) (*btcec.PublicKey, error) {
	return DeriveChildPubKey(c.Xpub, chain, index)
}

// MasterFingerprint returns the fingerprint of the given master key, ie the
// first 4 bytes of the hash160 of its public key.
func MasterFingerprint(masterKey *hdkeychain.ExtendedKey) (uint32, error) {
	pubkey, err := masterKey.ECPubKey()
	if err != nil {
		return 0, err
	}
	hash := btcutil.Hash160(pubkey.SerializeCompressed())
	return binary.LittleEndian.Uint32(hash[:4]), nil
}

// FingerprintToString returns the hex representation of the fingerprint,
// as shown by wallets.
func FingerprintToString(fingerprint uint32) string {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, fingerprint)
	return hex.EncodeToString(buf)
}

// ParseFingerprint is the inverse of FingerprintToString.
func ParseFingerprint(fingerprint string) (uint32, error) {
	buf, err := hex.DecodeString(fingerprint)
	if err != nil || len(buf) != 4 {
		return 0, ErrInvalidFingerprint
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ParseXpub parses and checks the given key is public.
func ParseXpub(xpub string) (*hdkeychain.ExtendedKey, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidXpub, err)
	}
	if key.IsPrivate() {
		return nil, fmt.Errorf("%w: must not be private", ErrInvalidXpub)
	}
	return key, nil
}

// DeriveChildPubKey derives the non-hardened child <chain>/<index> of xpub.
func DeriveChildPubKey(xpub string, chain, index uint32) (*btcec.PublicKey, error) {
	key, err := ParseXpub(xpub)
	if err != nil {
		return nil, err
	}
	for _, step := range []uint32{chain, index} {
		if key, err = key.Derive(step); err != nil {
			return nil, err
		}
	}
	return key.ECPubKey()
}

// DeriveKey derives the extended key at the given path from the master key.
func DeriveKey(
	masterKey *hdkeychain.ExtendedKey, derivationPath path.DerivationPath,
) (*hdkeychain.ExtendedKey, error) {
	key := masterKey
	var err error
	for _, step := range derivationPath {
		if key, err = key.Derive(step); err != nil {
			return nil, err
		}
	}
	return key, nil
}

// AccountXpub returns the neutered account key at accountPath, encoded with
// the version bytes of the given network.
func AccountXpub(
	masterKey *hdkeychain.ExtendedKey, accountPath path.DerivationPath,
	net *chaincfg.Params,
) (string, error) {
	if net == nil {
		return "", ErrMissingNetwork
	}
	key, err := DeriveKey(masterKey, accountPath)
	if err != nil {
		return "", err
	}
	xpub, err := key.Neuter()
	if err != nil {
		return "", err
	}
	xpub, err = xpub.CloneWithVersion(net.HDPublicKeyID[:])
	if err != nil {
		return "", err
	}
	return xpub.String(), nil
}

type DeriveAddressArgs struct {
	Xpubs              []string
	RequiredSignatures int
	AddressType        AddressType
	Network            *chaincfg.Params
	Chain              uint32
	Index              uint32
}

func (a DeriveAddressArgs) validate() error {
	if len(a.Xpubs) <= 0 {
		return ErrMissingCosigners
	}
	if a.Network == nil {
		return ErrMissingNetwork
	}
	if _, err := ParseAddressType(string(a.AddressType)); err != nil {
		return err
	}
	if a.RequiredSignatures < 1 || a.RequiredSignatures > len(a.Xpubs) {
		return ErrInvalidThreshold
	}
	return nil
}

// DeriveAddress derives the multisig payment at <chain>/<index> for the
// given cosigner xpubs. The result does not depend on the xpubs order.
func DeriveAddress(args DeriveAddressArgs) (*Payment, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}

	keys := make([][]byte, 0, len(args.Xpubs))
	for _, xpub := range args.Xpubs {
		pubkey, err := DeriveChildPubKey(xpub, args.Chain, args.Index)
		if err != nil {
			return nil, err
		}
		keys = append(keys, pubkey.SerializeCompressed())
	}

	script, err := MultisigScript(keys, args.RequiredSignatures)
	if err != nil {
		return nil, err
	}
	return NewPayment(script, args.AddressType, args.Network)
}

// DefaultAccountPath returns the derivation path of the account key of a
// cosigner for the given address type.
func DefaultAccountPath(
	addressType AddressType, coinType, account uint32,
) path.DerivationPath {
	switch addressType {
	case P2SH:
		return path.LegacyAccountDerivationPath(coinType, account)
	case P2SHP2WSH:
		return path.AccountDerivationPath(coinType, account, path.ScriptTypeNestedSegwit)
	default:
		return path.AccountDerivationPath(coinType, account, path.ScriptTypeNativeSegwit)
	}
}
