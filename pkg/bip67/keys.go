// Package bip67 implements the deterministic ordering of public keys used to
// build multisig scripts, as defined by BIP67.
package bip67

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	compressedKeyLen   = 33
	uncompressedKeyLen = 65

	// DefaultMinKeys is the smallest key set accepted for a multisig script.
	DefaultMinKeys = 2
	// DefaultMaxKeys is the largest key set accepted for a standard P2SH/P2WSH
	// CHECKMULTISIG script.
	DefaultMaxKeys = 15
)

// ValidateKey checks the key is either a compressed (0x02/0x03, 33 bytes)
// or an uncompressed (0x04, 65 bytes) serialized public key.
func ValidateKey(key []byte) error {
	switch len(key) {
	case compressedKeyLen:
		if key[0] != 0x02 && key[0] != 0x03 {
			return fmt.Errorf(
				"%w: compressed key has prefix 0x%02x", ErrInvalidKeyFormat, key[0],
			)
		}
	case uncompressedKeyLen:
		if key[0] != 0x04 {
			return fmt.Errorf(
				"%w: uncompressed key has prefix 0x%02x", ErrInvalidKeyFormat, key[0],
			)
		}
	default:
		return fmt.Errorf(
			"%w: unexpected key length %d", ErrInvalidKeyFormat, len(key),
		)
	}
	return nil
}

// SortKeys returns a copy of the given keys in canonical (lexicographic byte)
// order. The input slice is never modified.
func SortKeys(keys [][]byte) ([][]byte, error) {
	if len(keys) <= 0 {
		return nil, ErrEmptyKeySet
	}
	for i, key := range keys {
		if err := ValidateKey(key); err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
	}

	sorted := make([][]byte, 0, len(keys))
	for _, key := range keys {
		sorted = append(sorted, append([]byte{}, key...))
	}
	if len(sorted) == 1 {
		return sorted, nil
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i], sorted[j]) < 0
	})
	return sorted, nil
}

// SortHexKeys is like SortKeys for hex encoded keys.
func SortHexKeys(keys []string) ([]string, error) {
	rawKeys := make([][]byte, 0, len(keys))
	for i, key := range keys {
		buf, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w: not in hex format", i, ErrInvalidKeyFormat)
		}
		rawKeys = append(rawKeys, buf)
	}

	sorted, err := SortKeys(rawKeys)
	if err != nil {
		return nil, err
	}

	hexKeys := make([]string, 0, len(sorted))
	for _, key := range sorted {
		hexKeys = append(hexKeys, hex.EncodeToString(key))
	}
	return hexKeys, nil
}

// SortPublicKeys returns the given keys in canonical order of their
// compressed serialization.
func SortPublicKeys(keys []*btcec.PublicKey) ([]*btcec.PublicKey, error) {
	if len(keys) <= 0 {
		return nil, ErrEmptyKeySet
	}

	sorted := make([]*btcec.PublicKey, len(keys))
	copy(sorted, keys)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(
			sorted[i].SerializeCompressed(), sorted[j].SerializeCompressed(),
		) < 0
	})
	return sorted, nil
}

// IsSorted returns whether the given keys are already in canonical order.
// Any invalid key makes it return false.
func IsSorted(keys [][]byte) bool {
	if len(keys) <= 1 {
		return true
	}

	sorted, err := SortKeys(keys)
	if err != nil {
		return false
	}
	return equalKeys(keys, sorted)
}

// KeySetsEquivalent returns whether a and b contain the same keys, regardless
// of their order.
func KeySetsEquivalent(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}

	sortedA, err := SortKeys(a)
	if err != nil {
		return false
	}
	sortedB, err := SortKeys(b)
	if err != nil {
		return false
	}
	return equalKeys(sortedA, sortedB)
}

// PositionOf returns the index of key in the canonical order of keys, or -1
// if not found or if keys can't be sorted.
func PositionOf(key []byte, keys [][]byte) int {
	sorted, err := SortKeys(keys)
	if err != nil {
		return -1
	}
	for i, k := range sorted {
		if bytes.Equal(k, key) {
			return i
		}
	}
	return -1
}

type validateOpts struct {
	minKeys int
	maxKeys int
}

// ValidateOption customizes the bounds used by ValidateForMultisig.
type ValidateOption func(*validateOpts)

// WithMinKeys overrides DefaultMinKeys.
func WithMinKeys(n int) ValidateOption {
	return func(o *validateOpts) {
		o.minKeys = n
	}
}

// WithMaxKeys overrides DefaultMaxKeys.
func WithMaxKeys(n int) ValidateOption {
	return func(o *validateOpts) {
		o.maxKeys = n
	}
}

// ValidateForMultisig checks the given keys are suitable for building a
// multisig script: the set size must be within bounds, every key must be
// well formed, and no key can appear twice.
func ValidateForMultisig(keys [][]byte, opts ...ValidateOption) error {
	o := &validateOpts{DefaultMinKeys, DefaultMaxKeys}
	for _, opt := range opts {
		opt(o)
	}

	if len(keys) < o.minKeys {
		return fmt.Errorf(
			"%w: got %d, need at least %d", ErrInsufficientKeys, len(keys), o.minKeys,
		)
	}
	if len(keys) > o.maxKeys {
		return fmt.Errorf(
			"%w: got %d, max is %d", ErrTooManyKeys, len(keys), o.maxKeys,
		)
	}

	seen := make(map[string]struct{}, len(keys))
	for i, key := range keys {
		if err := ValidateKey(key); err != nil {
			return fmt.Errorf("key %d: %w", i, err)
		}
		k := hex.EncodeToString(key)
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func equalKeys(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
