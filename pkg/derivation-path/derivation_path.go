package path

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// MultisigPurpose is the BIP48 purpose used for multisig account keys.
	MultisigPurpose = 48
	// LegacyMultisigPurpose is used for the account keys of legacy p2sh
	// multisig, not covered by BIP48.
	LegacyMultisigPurpose = 45

	// ScriptTypeNestedSegwit is the BIP48 script type for p2sh-p2wsh.
	ScriptTypeNestedSegwit uint32 = 1
	// ScriptTypeNativeSegwit is the BIP48 script type for p2wsh.
	ScriptTypeNativeSegwit uint32 = 2

	ExternalChain uint32 = 0
	InternalChain uint32 = 1
)

// DerivationPath is the data structure representing an HD path.
type DerivationPath []uint32

// ParseDerivationPath converts a derivation path in string format to a
// DerivationPath type.
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	return parseDerivationPath(strPath, false)
}

// ParseAccountDerivationPath parses the absolute path of a cosigner account
// key, ie. m/48'/0'/0'/2'. Only hardened components are allowed.
func ParseAccountDerivationPath(strPath string) (DerivationPath, error) {
	path, err := parseDerivationPath(strPath, true)
	if err != nil {
		return nil, err
	}
	if len(path) < 3 || len(path) > 4 {
		return nil, ErrInvalidAccountPathLen
	}
	for _, p := range path {
		if p < hdkeychain.HardenedKeyStart {
			return nil, ErrInvalidAccountPath
		}
	}
	return path, nil
}

// ParseChildPath parses a relative "chain/index" path and returns its
// components.
func ParseChildPath(strPath string) (chain, index uint32, err error) {
	path, err := parseDerivationPath(strPath, false)
	if err != nil {
		return 0, 0, err
	}
	if len(path) != 2 {
		return 0, 0, ErrInvalidChildPathLen
	}
	if path[0] >= hdkeychain.HardenedKeyStart ||
		path[1] >= hdkeychain.HardenedKeyStart {
		return 0, 0, ErrInvalidChildPath
	}
	if path[0] != ExternalChain && path[0] != InternalChain {
		return 0, 0, ErrInvalidChain
	}
	return path[0], path[1], nil
}

// AccountDerivationPath returns the BIP48 path
// m/48'/coin_type'/account'/script_type'.
func AccountDerivationPath(
	coinType, account, scriptType uint32,
) DerivationPath {
	return DerivationPath{
		hdkeychain.HardenedKeyStart + MultisigPurpose,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + account,
		hdkeychain.HardenedKeyStart + scriptType,
	}
}

// LegacyAccountDerivationPath returns m/45'/coin_type'/account'.
func LegacyAccountDerivationPath(coinType, account uint32) DerivationPath {
	return DerivationPath{
		hdkeychain.HardenedKeyStart + LegacyMultisigPurpose,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + account,
	}
}

// Child returns a new path made of the receiver followed by the given
// components.
func (path DerivationPath) Child(components ...uint32) DerivationPath {
	child := make(DerivationPath, 0, len(path)+len(components))
	child = append(child, path...)
	return append(child, components...)
}

// HasPrefix returns whether the receiver starts with the given path.
func (path DerivationPath) HasPrefix(prefix DerivationPath) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	result := "m"
	for _, component := range path {
		var hardened bool
		if component >= hdkeychain.HardenedKeyStart {
			component -= hdkeychain.HardenedKeyStart
			hardened = true
		}
		result = fmt.Sprintf("%s/%d", result, component)
		if hardened {
			result += "'"
		}
	}
	return result
}

func parseDerivationPath(
	strPath string, checkAbsolutePath bool,
) (DerivationPath, error) {
	if strPath == "" {
		return nil, ErrMissingDerivationPath
	}

	elems := strings.Split(strPath, "/")
	if containsEmptyString(elems) {
		return nil, ErrMalformedDerivationPath
	}
	if checkAbsolutePath {
		if strings.TrimSpace(elems[0]) != "m" {
			return nil, ErrRequiredAbsoluteDerivationPath
		}
	}
	if len(elems) < 2 {
		return nil, ErrMalformedDerivationPath
	}
	if strings.TrimSpace(elems[0]) == "m" {
		elems = elems[1:]
	}

	path := make(DerivationPath, 0, len(elems))
	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		var value uint32

		// both ' and h are used in the wild to mark hardened steps.
		if strings.HasSuffix(elem, "'") || strings.HasSuffix(elem, "h") {
			value = hdkeychain.HardenedKeyStart
			elem = strings.TrimSpace(elem[:len(elem)-1])
		}

		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("invalid elem '%s' in path", elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("elem %v must be in range [0, %d]", bigval, max)
			}
			return nil, fmt.Errorf("elem %v must be in hardened range [0, %d]", bigval, max)
		}
		value += uint32(bigval.Uint64())

		path = append(path, value)
	}

	return path, nil
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if s == "" {
			return true
		}
	}
	return false
}
