package multisig_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ocean-multisig/internal/testutil"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

var addressTypes = []multisig.AddressType{
	multisig.P2WSH, multisig.P2SHP2WSH, multisig.P2SH,
}

func TestDecodePsbt(t *testing.T) {
	t.Parallel()

	signers := testutil.NewSigners(t, 2)
	packet := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 1)
	b64 := testutil.Encode(t, packet)

	decoded, err := multisig.DecodePsbt(b64)
	require.NoError(t, err)
	require.Equal(t, multisig.UnsignedTxID(packet), multisig.UnsignedTxID(decoded))

	_, err = multisig.DecodePsbt("")
	require.ErrorIs(t, err, multisig.ErrMissingPsbt)

	_, err = multisig.DecodePsbt("bm90IGEgcHNidA==")
	require.ErrorIs(t, err, multisig.ErrInvalidPsbt)
}

func TestSignPsbt(t *testing.T) {
	t.Parallel()

	for _, addressType := range addressTypes {
		addressType := addressType
		t.Run(string(addressType), func(t *testing.T) {
			t.Parallel()

			signers := testutil.NewSigners(t, 3)
			packet := testutil.NewPsbt(t, signers, 2, addressType, 2)

			count, err := multisig.CountSignatures(packet)
			require.NoError(t, err)
			require.Zero(t, count)

			signed, err := multisig.ClonePsbt(packet)
			require.NoError(t, err)
			n, err := multisig.SignPsbt(multisig.SignPsbtArgs{
				Packet: signed, MasterKey: signers[0].MasterKey,
			})
			require.NoError(t, err)
			require.Equal(t, 2, n)

			count, err = multisig.CountSignatures(signed)
			require.NoError(t, err)
			require.Equal(t, 1, count)

			// signing again with the same key adds nothing
			n, err = multisig.SignPsbt(multisig.SignPsbtArgs{
				Packet: signed, MasterKey: signers[0].MasterKey,
			})
			require.NoError(t, err)
			require.Zero(t, n)

			count, err = multisig.CountSignatures(signed)
			require.NoError(t, err)
			require.Equal(t, 1, count)

			status, err := multisig.SignedFingerprints(signed)
			require.NoError(t, err)
			require.Len(t, status, 3)
			require.True(t, status[signers[0].Cosigner.MasterFingerprint])
			require.False(t, status[signers[1].Cosigner.MasterFingerprint])
			require.False(t, status[signers[2].Cosigner.MasterFingerprint])

			ok, err := multisig.IsFullySigned(signed)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		signers := testutil.NewSigners(t, 2)
		packet := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 1)

		_, err := multisig.SignPsbt(multisig.SignPsbtArgs{MasterKey: signers[0].MasterKey})
		require.ErrorIs(t, err, multisig.ErrMissingPsbt)

		_, err = multisig.SignPsbt(multisig.SignPsbtArgs{Packet: packet})
		require.ErrorIs(t, err, multisig.ErrMissingMasterKey)

		xpub, err := signers[0].MasterKey.Neuter()
		require.NoError(t, err)
		_, err = multisig.SignPsbt(multisig.SignPsbtArgs{Packet: packet, MasterKey: xpub})
		require.ErrorIs(t, err, multisig.ErrMissingMasterKey)
	})

	t.Run("stranger key", func(t *testing.T) {
		t.Parallel()

		signers := testutil.NewSigners(t, 3)
		packet := testutil.NewPsbt(t, signers[:2], 2, multisig.P2WSH, 1)

		n, err := multisig.SignPsbt(multisig.SignPsbtArgs{
			Packet: packet, MasterKey: signers[2].MasterKey,
		})
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("invalid signature is replaced", func(t *testing.T) {
		t.Parallel()

		signers := testutil.NewSigners(t, 3)
		packet := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 1)
		signed := testutil.Sign(t, packet, signers[0])
		signed.Inputs[0].PartialSigs[0].Signature[10] ^= 0xff

		count, err := multisig.CountSignatures(signed)
		require.NoError(t, err)
		require.Zero(t, count)

		n, err := multisig.SignPsbt(multisig.SignPsbtArgs{
			Packet: signed, MasterKey: signers[0].MasterKey,
		})
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.Len(t, signed.Inputs[0].PartialSigs, 1)

		count, err = multisig.CountSignatures(signed)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}

func TestRemoveInvalidSignatures(t *testing.T) {
	t.Parallel()

	signers := testutil.NewSigners(t, 3)
	packet := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 2)
	packet = testutil.Sign(t, packet, signers[0])
	packet = testutil.Sign(t, packet, signers[1])
	packet.Inputs[1].PartialSigs[0].Signature[10] ^= 0xff

	removed, err := multisig.RemoveInvalidSignatures(packet)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Len(t, packet.Inputs[0].PartialSigs, 2)
	require.Len(t, packet.Inputs[1].PartialSigs, 1)

	count, err := multisig.CountSignatures(packet)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	removed, err = multisig.RemoveInvalidSignatures(packet)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestSharesInputs(t *testing.T) {
	t.Parallel()

	signers := testutil.NewSigners(t, 3)
	two := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 2)
	one := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 1)
	require.True(t, multisig.SharesInputs(two, one))
	require.True(t, multisig.SharesInputs(one, two))

	others := testutil.NewPsbt(t, testutil.NewSigners(t, 3), 2, multisig.P2WSH, 1)
	require.False(t, multisig.SharesInputs(one, others))
}

func TestCombinePsbt(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		signers := testutil.NewSigners(t, 3)
		packet := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 2)

		signedA := testutil.Sign(t, packet, signers[0])
		signedB := testutil.Sign(t, packet, signers[1])

		combined, err := multisig.CombinePsbt(signedA, signedB)
		require.NoError(t, err)

		count, err := multisig.CountSignatures(combined)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		// sources are untouched
		count, err = multisig.CountSignatures(signedA)
		require.NoError(t, err)
		require.Equal(t, 1, count)

		// combining is idempotent and never drops signatures
		again, err := multisig.CombinePsbt(combined, signedA)
		require.NoError(t, err)
		count, err = multisig.CountSignatures(again)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		again, err = multisig.CombinePsbt(combined, packet)
		require.NoError(t, err)
		count, err = multisig.CountSignatures(again)
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("invalid signatures are skipped", func(t *testing.T) {
		t.Parallel()

		signers := testutil.NewSigners(t, 2)
		packet := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 1)
		signed := testutil.Sign(t, packet, signers[0])

		// tamper with the signature while keeping a valid DER encoding
		sig := signed.Inputs[0].PartialSigs[0].Signature
		sig[len(sig)-2] ^= 0x01

		count, err := multisig.CountSignatures(signed)
		require.NoError(t, err)
		require.Zero(t, count)

		combined, err := multisig.CombinePsbt(packet, signed)
		require.NoError(t, err)
		require.Empty(t, combined.Inputs[0].PartialSigs)
	})

	t.Run("different transaction", func(t *testing.T) {
		t.Parallel()

		signers := testutil.NewSigners(t, 2)
		packetA := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 1)
		packetB := testutil.NewPsbt(t, signers, 2, multisig.P2WSH, 2)

		require.False(t, multisig.SameUnsignedTx(packetA, packetB))
		_, err := multisig.CombinePsbt(packetA, packetB)
		require.ErrorIs(t, err, multisig.ErrDifferentTransaction)

		tampered, err := multisig.ClonePsbt(packetA)
		require.NoError(t, err)
		tampered.UnsignedTx.TxOut[0].Value -= 1
		require.False(t, multisig.SameUnsignedTx(packetA, tampered))
		_, err = multisig.CombinePsbt(packetA, tampered)
		require.ErrorIs(t, err, multisig.ErrDifferentTransaction)
	})
}

func TestCheckOwnership(t *testing.T) {
	t.Parallel()

	signers := testutil.NewSigners(t, 4)
	account := testutil.Cosigners(signers[:3])
	packet := testutil.NewPsbt(t, signers[:3], 2, multisig.P2WSH, 2)

	require.NoError(t, multisig.CheckOwnership(packet, account, 2))

	reversed := []multisig.Cosigner{account[2], account[1], account[0]}
	require.NoError(t, multisig.CheckOwnership(packet, reversed, 2))

	err := multisig.CheckOwnership(packet, account, 3)
	require.ErrorIs(t, err, multisig.ErrForeignInput)

	other := testutil.Cosigners([]testutil.Signer{signers[0], signers[1], signers[3]})
	err = multisig.CheckOwnership(packet, other, 2)
	require.ErrorIs(t, err, multisig.ErrForeignInput)

	foreign := testutil.NewPsbt(t, signers[1:], 2, multisig.P2WSH, 1)
	err = multisig.CheckOwnership(foreign, account, 2)
	require.ErrorIs(t, err, multisig.ErrForeignInput)
}

func TestFinalizeAndExtract(t *testing.T) {
	t.Parallel()

	for _, addressType := range addressTypes {
		addressType := addressType
		t.Run(string(addressType), func(t *testing.T) {
			t.Parallel()

			signers := testutil.NewSigners(t, 3)
			packet := testutil.NewPsbt(t, signers, 2, addressType, 2)

			_, err := multisig.FinalizeAndExtract(testutil.Sign(t, packet, signers[0]))
			require.ErrorIs(t, err, multisig.ErrNotEnoughSignatures)

			// all three cosigners sign: finalization must keep only 2 sigs
			signed := packet
			for _, s := range signers {
				signed = testutil.Sign(t, signed, s)
			}
			ok, err := multisig.IsFullySigned(signed)
			require.NoError(t, err)
			require.True(t, ok)

			txHex, txid, err := multisig.FinalizeAndExtractHex(signed)
			require.NoError(t, err)
			if addressType.IsSegwit() {
				require.Equal(t, multisig.UnsignedTxID(packet), txid)
			}
			require.Len(t, signed.Inputs[0].PartialSigs, 3)

			txHexAgain, _, err := multisig.FinalizeAndExtractHex(signed)
			require.NoError(t, err)
			require.Equal(t, txHex, txHexAgain)

			tx, err := multisig.DecodeTxHex(txHex)
			require.NoError(t, err)
			verifyTx(t, signed, tx)
		})
	}
}

// verifyTx runs the script engine against every input of tx.
func verifyTx(t *testing.T, packet *psbt.Packet, tx *wire.MsgTx) {
	t.Helper()

	prevOuts := make([]*wire.TxOut, 0, len(tx.TxIn))
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range tx.TxIn {
		prevOut := packet.Inputs[i].WitnessUtxo
		if prevOut == nil {
			prevTx := packet.Inputs[i].NonWitnessUtxo
			prevOut = prevTx.TxOut[in.PreviousOutPoint.Index]
		}
		prevOuts = append(prevOuts, prevOut)
		fetcher.AddPrevOut(in.PreviousOutPoint, prevOut)
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i := range tx.TxIn {
		engine, err := txscript.NewEngine(
			prevOuts[i].PkScript, tx, i, txscript.StandardVerifyFlags, nil,
			sigHashes, prevOuts[i].Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, engine.Execute())
	}
}
