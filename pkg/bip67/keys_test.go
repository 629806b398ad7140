package bip67_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ocean-multisig/pkg/bip67"
)

var (
	vectors = []struct {
		name     string
		keys     []string
		expected []string
	}{
		{
			name: "two keys",
			keys: []string{
				"02ff12471208c14bd580709cb2358d98975247d8765f92bc25eab3b2763ed605f8",
				"02fe6f0a5a297eb38c391581c4413e084773ea23954d93f7753db7dc0adc188b2f",
			},
			expected: []string{
				"02fe6f0a5a297eb38c391581c4413e084773ea23954d93f7753db7dc0adc188b2f",
				"02ff12471208c14bd580709cb2358d98975247d8765f92bc25eab3b2763ed605f8",
			},
		},
		{
			name: "already sorted",
			keys: []string{
				"02632b12f4ac5b1d1b72b2a3b508c19172de44f6f46bcee50ba33f3f9291e47ed0",
				"027735a29bae7780a9755fae7a1c4374c656ac6a69ea9f3697fda61bb99a4f3e77",
				"02e2cc6bd5f45edd43bebe7cb9b675f0ce9ed3efe613b177588290ad188d11b404",
			},
			expected: []string{
				"02632b12f4ac5b1d1b72b2a3b508c19172de44f6f46bcee50ba33f3f9291e47ed0",
				"027735a29bae7780a9755fae7a1c4374c656ac6a69ea9f3697fda61bb99a4f3e77",
				"02e2cc6bd5f45edd43bebe7cb9b675f0ce9ed3efe613b177588290ad188d11b404",
			},
		},
		{
			name: "prefix decides",
			keys: []string{
				"030000000000000000000000000000000000000000000000000000000000000001",
				"020000000000000000000000000000000000000000000000000000000000000001",
			},
			expected: []string{
				"020000000000000000000000000000000000000000000000000000000000000001",
				"030000000000000000000000000000000000000000000000000000000000000001",
			},
		},
		{
			name: "mixed prefixes",
			keys: []string{
				"022df8750480ad5b26950b25c7ba79d3e37d75f640f8e5d9bcd5b150a0f85014da",
				"03e3818b65bcc73a7d64064106a859cc1a5a728c4345ff0b641209fba0d90de6e9",
				"021f2f6e1e50cb6a953935c3601284925decd3fd21bc445712576873fb8c6ebc18",
			},
			expected: []string{
				"021f2f6e1e50cb6a953935c3601284925decd3fd21bc445712576873fb8c6ebc18",
				"022df8750480ad5b26950b25c7ba79d3e37d75f640f8e5d9bcd5b150a0f85014da",
				"03e3818b65bcc73a7d64064106a859cc1a5a728c4345ff0b641209fba0d90de6e9",
			},
		},
	}

	uncompressedKey = "04" + strings.Repeat("11", 64)
)

func TestSortKeys(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		for _, v := range vectors {
			keys := decodeKeys(t, v.keys)
			original := decodeKeys(t, v.keys)

			sorted, err := bip67.SortKeys(keys)
			require.NoError(t, err, v.name)
			require.Equal(t, decodeKeys(t, v.expected), sorted, v.name)
			// input must not be reordered
			require.Equal(t, original, keys, v.name)

			hexSorted, err := bip67.SortHexKeys(v.keys)
			require.NoError(t, err, v.name)
			require.Equal(t, v.expected, hexSorted, v.name)
		}
	})

	t.Run("single key", func(t *testing.T) {
		t.Parallel()

		keys := decodeKeys(t, []string{uncompressedKey})
		sorted, err := bip67.SortKeys(keys)
		require.NoError(t, err)
		require.Equal(t, keys, sorted)
	})

	t.Run("order independent", func(t *testing.T) {
		t.Parallel()

		v := vectors[3]
		permutations := [][]int{
			{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
		}
		for _, p := range permutations {
			keys := decodeKeys(t, []string{v.keys[p[0]], v.keys[p[1]], v.keys[p[2]]})
			sorted, err := bip67.SortKeys(keys)
			require.NoError(t, err)
			require.Equal(t, decodeKeys(t, v.expected), sorted)
			require.True(t, bip67.IsSorted(sorted))
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name        string
			keys        []string
			expectedErr error
		}{
			{"empty", nil, bip67.ErrEmptyKeySet},
			{"short key", []string{"02ff12"}, bip67.ErrInvalidKeyFormat},
			{"bad compressed prefix", []string{"05" + strings.Repeat("00", 32)}, bip67.ErrInvalidKeyFormat},
			{"bad uncompressed prefix", []string{"02" + strings.Repeat("00", 64)}, bip67.ErrInvalidKeyFormat},
			{"not hex", []string{"zz"}, bip67.ErrInvalidKeyFormat},
		}
		for _, tt := range tests {
			_, err := bip67.SortHexKeys(tt.keys)
			require.ErrorIs(t, err, tt.expectedErr, tt.name)
		}
	})
}

func TestIsSorted(t *testing.T) {
	t.Parallel()

	require.True(t, bip67.IsSorted(nil))
	require.True(t, bip67.IsSorted([][]byte{{0x01}}))

	for _, v := range vectors {
		require.True(t, bip67.IsSorted(decodeKeys(t, v.expected)), v.name)
	}
	require.False(t, bip67.IsSorted(decodeKeys(t, vectors[0].keys)))
	require.False(t, bip67.IsSorted([][]byte{{0x01}, {0x02}}))
}

func TestKeySetsEquivalent(t *testing.T) {
	t.Parallel()

	v := vectors[3]
	require.True(t, bip67.KeySetsEquivalent(
		decodeKeys(t, v.keys), decodeKeys(t, v.expected),
	))
	require.False(t, bip67.KeySetsEquivalent(
		decodeKeys(t, v.keys), decodeKeys(t, v.keys[:2]),
	))
	require.False(t, bip67.KeySetsEquivalent(
		decodeKeys(t, vectors[0].keys), decodeKeys(t, vectors[2].keys),
	))
	require.False(t, bip67.KeySetsEquivalent(nil, nil))
	require.False(t, bip67.KeySetsEquivalent(
		[][]byte{{0x01}}, [][]byte{{0x01}},
	))
}

func TestPositionOf(t *testing.T) {
	t.Parallel()

	v := vectors[3]
	keys := decodeKeys(t, v.keys)
	for i, expected := range decodeKeys(t, v.expected) {
		require.Equal(t, i, bip67.PositionOf(expected, keys))
	}

	unknown, _ := hex.DecodeString(vectors[0].keys[0])
	require.Equal(t, -1, bip67.PositionOf(unknown, keys))
	require.Equal(t, -1, bip67.PositionOf(unknown, nil))
	require.Equal(t, -1, bip67.PositionOf(unknown, [][]byte{{0x01}}))
}

func TestValidateForMultisig(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		for _, v := range vectors {
			err := bip67.ValidateForMultisig(decodeKeys(t, v.keys))
			require.NoError(t, err, v.name)
		}

		keys := decodeKeys(t, []string{vectors[0].keys[0], uncompressedKey})
		require.NoError(t, bip67.ValidateForMultisig(keys))
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		tooMany := make([]string, 0, 16)
		for i := 0; i < 16; i++ {
			tooMany = append(tooMany, "02"+strings.Repeat("00", 31)+hex.EncodeToString([]byte{byte(i)}))
		}

		tests := []struct {
			name        string
			keys        []string
			opts        []bip67.ValidateOption
			expectedErr error
		}{
			{"single key", vectors[0].keys[:1], nil, bip67.ErrInsufficientKeys},
			{"too many", tooMany, nil, bip67.ErrTooManyKeys},
			{"custom max", vectors[3].keys, []bip67.ValidateOption{bip67.WithMaxKeys(2)}, bip67.ErrTooManyKeys},
			{"custom min", vectors[0].keys, []bip67.ValidateOption{bip67.WithMinKeys(3)}, bip67.ErrInsufficientKeys},
			{"duplicate", []string{vectors[0].keys[0], vectors[0].keys[1], vectors[0].keys[0]}, nil, bip67.ErrDuplicateKey},
			{"malformed", []string{vectors[0].keys[0], "04" + strings.Repeat("00", 10)}, nil, bip67.ErrInvalidKeyFormat},
		}
		for _, tt := range tests {
			err := bip67.ValidateForMultisig(decodeKeys(t, tt.keys), tt.opts...)
			require.ErrorIs(t, err, tt.expectedErr, tt.name)
		}
	})
}

func decodeKeys(t *testing.T, keys []string) [][]byte {
	t.Helper()

	if keys == nil {
		return nil
	}
	decoded := make([][]byte, 0, len(keys))
	for _, k := range keys {
		buf, err := hex.DecodeString(k)
		require.NoError(t, err)
		decoded = append(decoded, buf)
	}
	return decoded
}
