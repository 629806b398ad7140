package multisig

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// FinalizeAndExtract returns the network serialized tx of the given psbt.
// Exactly as many signatures as required are kept for every input, picked in
// script key order, so the result is deterministic. The given psbt is not
// modified.
func FinalizeAndExtract(packet *psbt.Packet) (*wire.MsgTx, error) {
	if packet == nil {
		return nil, ErrMissingPsbt
	}

	finalized, err := ClonePsbt(packet)
	if err != nil {
		return nil, err
	}

	valid, err := validSignatures(finalized)
	if err != nil {
		return nil, err
	}

	for i := range finalized.Inputs {
		in := &finalized.Inputs[i]
		if isFinalizedInput(*in) {
			continue
		}

		required, keys, err := InputKeys(finalized, i)
		if err != nil {
			return nil, err
		}

		selected := make([]*psbt.PartialSig, 0, required)
		for _, key := range keys {
			if len(selected) >= required {
				break
			}
			if !valid.has(i, key) {
				continue
			}
			if j := partialSigIndex(in.PartialSigs, key); j >= 0 {
				selected = append(selected, in.PartialSigs[j])
			}
		}
		if len(selected) < required {
			return nil, fmt.Errorf(
				"input %d: %w: got %d, need %d",
				i, ErrNotEnoughSignatures, len(selected), required,
			)
		}
		in.PartialSigs = selected
	}

	if err := psbt.MaybeFinalizeAll(finalized); err != nil {
		return nil, err
	}
	return psbt.Extract(finalized)
}

// FinalizeAndExtractHex is like FinalizeAndExtract but returns the tx in hex
// format together with its id.
func FinalizeAndExtractHex(packet *psbt.Packet) (string, string, error) {
	tx, err := FinalizeAndExtract(packet)
	if err != nil {
		return "", "", err
	}
	txHex, err := TxHex(tx)
	if err != nil {
		return "", "", err
	}
	return txHex, tx.TxHash().String(), nil
}

// DecodeTxHex is the inverse of TxHex.
func DecodeTxHex(txHex string) (*wire.MsgTx, error) {
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, err
	}
	return tx, nil
}
