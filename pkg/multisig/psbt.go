package multisig

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// DecodePsbt parses a base64 encoded psbt.
func DecodePsbt(b64 string) (*psbt.Packet, error) {
	b64 = strings.TrimSpace(b64)
	if len(b64) <= 0 {
		return nil, ErrMissingPsbt
	}
	packet, err := psbt.NewFromRawBytes(strings.NewReader(b64), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPsbt, err)
	}
	return packet, nil
}

// EncodePsbt returns the base64 encoding of the psbt.
func EncodePsbt(packet *psbt.Packet) (string, error) {
	return packet.B64Encode()
}

// ClonePsbt returns a deep copy of the given psbt.
func ClonePsbt(packet *psbt.Packet) (*psbt.Packet, error) {
	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return nil, err
	}
	return psbt.NewFromRawBytes(&buf, false)
}

// UnsignedTxID returns the hash of the unsigned tx, which is also the id of
// the final one for segwit inputs.
func UnsignedTxID(packet *psbt.Packet) string {
	return packet.UnsignedTx.TxHash().String()
}

// SameUnsignedTx returns whether both psbts spend the same inputs to the
// same outputs, with same version and locktime.
func SameUnsignedTx(a, b *psbt.Packet) bool {
	var bufA, bufB bytes.Buffer
	if err := a.UnsignedTx.SerializeNoWitness(&bufA); err != nil {
		return false
	}
	if err := b.UnsignedTx.SerializeNoWitness(&bufB); err != nil {
		return false
	}
	return bytes.Equal(bufA.Bytes(), bufB.Bytes())
}

// SharesInputs returns whether a and b spend at least one common outpoint.
func SharesInputs(a, b *psbt.Packet) bool {
	spent := make(map[wire.OutPoint]struct{}, len(a.UnsignedTx.TxIn))
	for _, in := range a.UnsignedTx.TxIn {
		spent[in.PreviousOutPoint] = struct{}{}
	}
	for _, in := range b.UnsignedTx.TxIn {
		if _, ok := spent[in.PreviousOutPoint]; ok {
			return true
		}
	}
	return false
}

// InputScript returns the script whose keys lock the given input, and
// whether it's spent via witness.
func InputScript(in psbt.PInput) ([]byte, bool, error) {
	if len(in.WitnessScript) > 0 {
		return in.WitnessScript, true, nil
	}
	if len(in.RedeemScript) > 0 && !txscript.IsWitnessProgram(in.RedeemScript) {
		return in.RedeemScript, false, nil
	}
	return nil, false, ErrMissingInputScript
}

// InputKeys returns the threshold and the keys of the multisig script
// locking the input at the given index.
func InputKeys(packet *psbt.Packet, inIndex int) (int, [][]byte, error) {
	script, _, err := InputScript(packet.Inputs[inIndex])
	if err != nil {
		return 0, nil, fmt.Errorf("input %d: %w", inIndex, err)
	}
	required, keys, err := ParseMultisigScript(script)
	if err != nil {
		return 0, nil, fmt.Errorf("input %d: %w", inIndex, err)
	}
	return required, keys, nil
}

func prevOut(packet *psbt.Packet, inIndex int) (*wire.TxOut, error) {
	in := packet.Inputs[inIndex]
	if in.WitnessUtxo != nil {
		return in.WitnessUtxo, nil
	}
	if in.NonWitnessUtxo != nil {
		outpoint := packet.UnsignedTx.TxIn[inIndex].PreviousOutPoint
		if in.NonWitnessUtxo.TxHash() != outpoint.Hash ||
			int(outpoint.Index) >= len(in.NonWitnessUtxo.TxOut) {
			return nil, fmt.Errorf("input %d: %w", inIndex, ErrMissingPrevOut)
		}
		return in.NonWitnessUtxo.TxOut[outpoint.Index], nil
	}
	return nil, fmt.Errorf("input %d: %w", inIndex, ErrMissingPrevOut)
}

func prevOutFetcher(packet *psbt.Packet) (*txscript.MultiPrevOutFetcher, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range packet.UnsignedTx.TxIn {
		out, err := prevOut(packet, i)
		if err != nil {
			return nil, err
		}
		fetcher.AddPrevOut(txIn.PreviousOutPoint, out)
	}
	return fetcher, nil
}

type Input struct {
	TxID  string
	Vout  uint32
	Value int64
	// PrevTx is mandatory only for p2sh accounts.
	PrevTx *wire.MsgTx
	// Chain and Index locate the address the input is locked to.
	Chain uint32
	Index uint32
}

type CreatePsbtArgs struct {
	Inputs             []Input
	Outputs            []*wire.TxOut
	Cosigners          []Cosigner
	RequiredSignatures int
	AddressType        AddressType
	Network            *chaincfg.Params
	LockTime           uint32
}

func (a CreatePsbtArgs) validate() error {
	if len(a.Inputs) <= 0 {
		return ErrMissingInputs
	}
	if len(a.Outputs) <= 0 {
		return ErrMissingOutputs
	}
	if len(a.Cosigners) <= 0 {
		return ErrMissingCosigners
	}
	if a.Network == nil {
		return ErrMissingNetwork
	}
	if _, err := ParseAddressType(string(a.AddressType)); err != nil {
		return err
	}
	for i, in := range a.Inputs {
		if _, err := chainhash.NewHashFromStr(in.TxID); err != nil && in.PrevTx == nil {
			return fmt.Errorf("input %d: invalid txid: %w", i, err)
		}
		if a.AddressType == P2SH && in.PrevTx == nil {
			return fmt.Errorf("input %d: %w", i, ErrMissingPrevTx)
		}
	}
	return nil
}

// CreatePsbt builds an unsigned psbt spending the given multisig coins.
// Every input carries the scripts and the BIP32 derivation of each
// cosigner's key so that any of them can sign it independently.
func CreatePsbt(args CreatePsbtArgs) (*psbt.Packet, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}

	xpubs := make([]string, 0, len(args.Cosigners))
	for _, c := range args.Cosigners {
		xpubs = append(xpubs, c.Xpub)
	}

	tx := wire.NewMsgTx(2)
	tx.LockTime = args.LockTime
	for _, in := range args.Inputs {
		var hash *chainhash.Hash
		if in.PrevTx != nil {
			h := in.PrevTx.TxHash()
			hash = &h
		} else {
			hash, _ = chainhash.NewHashFromStr(in.TxID)
		}
		txIn := wire.NewTxIn(wire.NewOutPoint(hash, in.Vout), nil, nil)
		txIn.Sequence = wire.MaxTxInSequenceNum - 2
		tx.AddTxIn(txIn)
	}
	for _, out := range args.Outputs {
		tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, err
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, err
	}

	for i, in := range args.Inputs {
		payment, err := DeriveAddress(DeriveAddressArgs{
			Xpubs:              xpubs,
			RequiredSignatures: args.RequiredSignatures,
			AddressType:        args.AddressType,
			Network:            args.Network,
			Chain:              in.Chain,
			Index:              in.Index,
		})
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}

		if args.AddressType.IsSegwit() {
			value := in.Value
			if in.PrevTx != nil {
				value = in.PrevTx.TxOut[in.Vout].Value
			}
			if err := updater.AddInWitnessUtxo(
				wire.NewTxOut(value, payment.OutputScript), i,
			); err != nil {
				return nil, err
			}
		} else {
			if err := updater.AddInNonWitnessUtxo(in.PrevTx, i); err != nil {
				return nil, err
			}
		}
		if len(payment.RedeemScript) > 0 {
			if err := updater.AddInRedeemScript(payment.RedeemScript, i); err != nil {
				return nil, err
			}
		}
		if len(payment.WitnessScript) > 0 {
			if err := updater.AddInWitnessScript(payment.WitnessScript, i); err != nil {
				return nil, err
			}
		}
		if err := updater.AddInSighashType(txscript.SigHashAll, i); err != nil {
			return nil, err
		}

		for _, c := range args.Cosigners {
			pubkey, err := c.ChildPubKey(in.Chain, in.Index)
			if err != nil {
				return nil, err
			}
			if err := updater.AddInBip32Derivation(
				c.MasterFingerprint,
				c.AccountPath.Child(in.Chain, in.Index),
				pubkey.SerializeCompressed(), i,
			); err != nil {
				return nil, err
			}
		}
	}

	return packet, nil
}

// TxHex returns the hex serialization of the given tx.
func TxHex(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
