package testutil

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	path "github.com/vulpemventures/ocean-multisig/pkg/derivation-path"
	"github.com/vulpemventures/ocean-multisig/pkg/mnemonic"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

const (
	InputValue  = int64(100000)
	Fee         = int64(1000)
	NetworkName = "regtest"
)

var (
	Network     = &chaincfg.RegressionNetParams
	AccountPath = path.AccountDerivationPath(1, 0, path.ScriptTypeNativeSegwit)
)

// Signer is a cosigner whose master key is known, used to sign test psbts.
type Signer struct {
	Name      string
	Mnemonic  []string
	MasterKey *hdkeychain.ExtendedKey
	Cosigner  multisig.Cosigner
}

// Fingerprint returns the master fingerprint in hex format.
func (s Signer) Fingerprint() string {
	return multisig.FingerprintToString(s.Cosigner.MasterFingerprint)
}

// NewSigners returns n deterministic signers. The i-th signer is always the
// same across calls.
func NewSigners(t *testing.T, n int) []Signer {
	t.Helper()

	signers := make([]Signer, 0, n)
	for i := 0; i < n; i++ {
		words, err := mnemonic.FromEntropy(bytes.Repeat([]byte{byte(i + 1)}, 16))
		require.NoError(t, err)
		masterKey, err := mnemonic.MasterKey(words, Network)
		require.NoError(t, err)
		fingerprint, err := multisig.MasterFingerprint(masterKey)
		require.NoError(t, err)
		xpub, err := multisig.AccountXpub(masterKey, AccountPath, Network)
		require.NoError(t, err)

		signers = append(signers, Signer{
			Name:      fmt.Sprintf("cosigner%d", i+1),
			Mnemonic:  words,
			MasterKey: masterKey,
			Cosigner: multisig.Cosigner{
				Xpub:              xpub,
				MasterFingerprint: fingerprint,
				AccountPath:       AccountPath,
			},
		})
	}
	return signers
}

// Cosigners returns the cosigners of the given signers.
func Cosigners(signers []Signer) []multisig.Cosigner {
	cosigners := make([]multisig.Cosigner, 0, len(signers))
	for _, s := range signers {
		cosigners = append(cosigners, s.Cosigner)
	}
	return cosigners
}

// Xpubs returns the account xpubs of the given signers.
func Xpubs(signers []Signer) []string {
	xpubs := make([]string, 0, len(signers))
	for _, s := range signers {
		xpubs = append(xpubs, s.Cosigner.Xpub)
	}
	return xpubs
}

// NewPsbt returns an unsigned psbt spending numOfInputs fake coins locked
// to the receive addresses 0/0..0/numOfInputs-1 of the given signers.
func NewPsbt(
	t *testing.T, signers []Signer, required int,
	addressType multisig.AddressType, numOfInputs int,
) *psbt.Packet {
	t.Helper()

	cosigners := Cosigners(signers)
	inputs := make([]multisig.Input, 0, numOfInputs)
	for i := 0; i < numOfInputs; i++ {
		payment, err := multisig.DeriveAddress(multisig.DeriveAddressArgs{
			Xpubs:              Xpubs(signers),
			RequiredSignatures: required,
			AddressType:        addressType,
			Network:            Network,
			Chain:              0,
			Index:              uint32(i),
		})
		require.NoError(t, err)

		prevTx := wire.NewMsgTx(2)
		prevTx.AddTxIn(wire.NewTxIn(
			wire.NewOutPoint(&chainhash.Hash{byte(i + 1)}, 0), nil, nil,
		))
		prevTx.AddTxOut(wire.NewTxOut(InputValue, payment.OutputScript))

		inputs = append(inputs, multisig.Input{
			Vout:   0,
			PrevTx: prevTx,
			Chain:  0,
			Index:  uint32(i),
		})
	}

	recipient, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).AddData(bytes.Repeat([]byte{0xaa}, 20)).Script()
	require.NoError(t, err)

	packet, err := multisig.CreatePsbt(multisig.CreatePsbtArgs{
		Inputs: inputs,
		Outputs: []*wire.TxOut{
			wire.NewTxOut(InputValue*int64(numOfInputs)-Fee, recipient),
		},
		Cosigners:          cosigners,
		RequiredSignatures: required,
		AddressType:        addressType,
		Network:            Network,
	})
	require.NoError(t, err)
	return packet
}

// Sign returns a copy of packet signed by the given signer.
func Sign(t *testing.T, packet *psbt.Packet, signer Signer) *psbt.Packet {
	t.Helper()

	signed, err := multisig.ClonePsbt(packet)
	require.NoError(t, err)
	_, err = multisig.SignPsbt(multisig.SignPsbtArgs{
		Packet:    signed,
		MasterKey: signer.MasterKey,
	})
	require.NoError(t, err)
	return signed
}

// Encode returns the base64 encoding of packet.
func Encode(t *testing.T, packet *psbt.Packet) string {
	t.Helper()

	b64, err := multisig.EncodePsbt(packet)
	require.NoError(t, err)
	return b64
}

// Decode parses a base64 psbt.
func Decode(t *testing.T, b64 string) *psbt.Packet {
	t.Helper()

	packet, err := multisig.DecodePsbt(b64)
	require.NoError(t, err)
	return packet
}

// NewAccount returns a multisig account made of the given signers. The
// signer at localIndex is flagged as local, none if out of range.
func NewAccount(
	t *testing.T, index uint32, signers []Signer, required int,
	addressType multisig.AddressType, localIndex int,
) *domain.MultisigAccount {
	t.Helper()

	cosigners := make([]domain.Cosigner, 0, len(signers))
	for i, s := range signers {
		cosigners = append(cosigners, domain.Cosigner{
			Name:           s.Name,
			Fingerprint:    s.Fingerprint(),
			Xpub:           s.Cosigner.Xpub,
			DerivationPath: s.Cosigner.AccountPath.String(),
			IsLocal:        i == localIndex,
		})
	}

	account, err := domain.NewMultisigAccount(
		index, fmt.Sprintf("account%d", index), required, string(addressType),
		NetworkName, cosigners, 1700000000,
	)
	require.NoError(t, err)
	return account
}
