package multisig

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/ocean-multisig/pkg/bip67"
)

// validSigs maps, for every input, the hex pubkeys of those partial
// signatures that verify against the input sighash.
type validSigs []map[string]struct{}

func (v validSigs) has(inIndex int, pubkey []byte) bool {
	_, ok := v[inIndex][hex.EncodeToString(pubkey)]
	return ok
}

func isFinalizedInput(in psbt.PInput) bool {
	return len(in.FinalScriptSig) > 0 || len(in.FinalScriptWitness) > 0
}

func inputSigHash(
	packet *psbt.Packet, sigHashes *txscript.TxSigHashes, inIndex int,
	hashType txscript.SigHashType,
) ([]byte, error) {
	script, isWitness, err := InputScript(packet.Inputs[inIndex])
	if err != nil {
		return nil, err
	}
	if !isWitness {
		return txscript.CalcSignatureHash(
			script, hashType, packet.UnsignedTx, inIndex,
		)
	}

	out, err := prevOut(packet, inIndex)
	if err != nil {
		return nil, err
	}
	return txscript.CalcWitnessSigHash(
		script, sigHashes, hashType, packet.UnsignedTx, inIndex, out.Value,
	)
}

func verifyPartialSig(
	packet *psbt.Packet, sigHashes *txscript.TxSigHashes, inIndex int,
	partialSig *psbt.PartialSig,
) bool {
	sig := partialSig.Signature
	if len(sig) < 2 {
		return false
	}
	hashType := txscript.SigHashType(sig[len(sig)-1])
	if t := packet.Inputs[inIndex].SighashType; t != 0 && t != hashType {
		return false
	}

	hash, err := inputSigHash(packet, sigHashes, inIndex, hashType)
	if err != nil {
		return false
	}
	signature, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return false
	}
	pubkey, err := btcec.ParsePubKey(partialSig.PubKey)
	if err != nil {
		return false
	}
	return signature.Verify(hash, pubkey)
}

func validSignatures(packet *psbt.Packet) (validSigs, error) {
	fetcher, err := prevOutFetcher(packet)
	if err != nil {
		return nil, err
	}
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)

	valid := make(validSigs, len(packet.Inputs))
	for i, in := range packet.Inputs {
		valid[i] = make(map[string]struct{})
		_, keys, err := InputKeys(packet, i)
		if err != nil {
			return nil, err
		}
		for _, ps := range in.PartialSigs {
			if bip67.PositionOf(ps.PubKey, keys) < 0 {
				continue
			}
			if verifyPartialSig(packet, sigHashes, i, ps) {
				valid[i][hex.EncodeToString(ps.PubKey)] = struct{}{}
			}
		}
	}
	return valid, nil
}

// RemoveInvalidSignatures drops the partial signatures that do not verify,
// or whose key is not in the input script, and returns how many have been
// removed. The packet is modified in place.
func RemoveInvalidSignatures(packet *psbt.Packet) (int, error) {
	valid, err := validSignatures(packet)
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range packet.Inputs {
		in := &packet.Inputs[i]
		if isFinalizedInput(*in) {
			continue
		}
		sigs := make([]*psbt.PartialSig, 0, len(in.PartialSigs))
		for _, ps := range in.PartialSigs {
			if !valid.has(i, ps.PubKey) {
				removed++
				continue
			}
			sigs = append(sigs, ps)
		}
		in.PartialSigs = sigs
	}
	return removed, nil
}

// CountSignatures returns how many cosigners have validly signed the whole
// psbt, that is the minimum number of valid signatures over all inputs.
// Signatures that do not verify or that belong to keys not in the input
// script are ignored.
func CountSignatures(packet *psbt.Packet) (int, error) {
	if len(packet.Inputs) <= 0 {
		return 0, nil
	}

	valid, err := validSignatures(packet)
	if err != nil {
		return 0, err
	}

	count := -1
	for _, sigs := range valid {
		if count < 0 || len(sigs) < count {
			count = len(sigs)
		}
	}
	return count, nil
}

// IsFullySigned returns whether every input has at least as many valid
// signatures as its script requires.
func IsFullySigned(packet *psbt.Packet) (bool, error) {
	valid, err := validSignatures(packet)
	if err != nil {
		return false, err
	}
	for i := range packet.Inputs {
		required, _, err := InputKeys(packet, i)
		if err != nil {
			return false, err
		}
		if len(valid[i]) < required {
			return false, nil
		}
	}
	return len(packet.Inputs) > 0, nil
}

// SignedFingerprints returns, for every master fingerprint found in the
// inputs' BIP32 derivations, whether the related key has a valid signature
// on all inputs.
func SignedFingerprints(packet *psbt.Packet) (map[uint32]bool, error) {
	valid, err := validSignatures(packet)
	if err != nil {
		return nil, err
	}

	status := make(map[uint32]bool)
	for _, in := range packet.Inputs {
		for _, d := range in.Bip32Derivation {
			status[d.MasterKeyFingerprint] = true
		}
	}

	for i, in := range packet.Inputs {
		signedInput := make(map[uint32]bool)
		for _, d := range in.Bip32Derivation {
			if valid.has(i, d.PubKey) {
				signedInput[d.MasterKeyFingerprint] = true
			}
		}
		for fingerprint := range status {
			status[fingerprint] = status[fingerprint] && signedInput[fingerprint]
		}
	}
	return status, nil
}

// CheckOwnership makes sure every input is locked by a multisig script made
// of the given cosigners' keys with the given threshold. The child path of
// every input is taken from the BIP32 derivations of the cosigners.
func CheckOwnership(
	packet *psbt.Packet, cosigners []Cosigner, required int,
) error {
	if len(cosigners) <= 0 {
		return ErrMissingCosigners
	}
	if len(packet.Inputs) <= 0 {
		return ErrMissingInputs
	}

	byFingerprint := make(map[uint32]Cosigner, len(cosigners))
	for _, c := range cosigners {
		byFingerprint[c.MasterFingerprint] = c
	}

	for i, in := range packet.Inputs {
		inRequired, keys, err := InputKeys(packet, i)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrForeignInput, err)
		}
		if inRequired != required {
			return fmt.Errorf(
				"%w: input %d requires %d signatures, account %d",
				ErrForeignInput, i, inRequired, required,
			)
		}

		var chain, index uint32
		found := false
		for _, d := range in.Bip32Derivation {
			c, ok := byFingerprint[d.MasterKeyFingerprint]
			if !ok || len(d.Bip32Path) != len(c.AccountPath)+2 {
				continue
			}
			chain, index = d.Bip32Path[len(d.Bip32Path)-2], d.Bip32Path[len(d.Bip32Path)-1]
			found = true
			break
		}
		if !found {
			return fmt.Errorf(
				"%w: input %d has no derivation for account keys", ErrForeignInput, i,
			)
		}

		expected := make([][]byte, 0, len(cosigners))
		for _, c := range cosigners {
			pubkey, err := c.ChildPubKey(chain, index)
			if err != nil {
				return err
			}
			expected = append(expected, pubkey.SerializeCompressed())
		}
		if !bip67.KeySetsEquivalent(expected, keys) {
			return fmt.Errorf(
				"%w: input %d key set does not match", ErrForeignInput, i,
			)
		}
	}
	return nil
}

// CombinePsbt returns a new psbt with all valid partial signatures of both
// base and other. Neither of them is modified. Signatures of base are never
// dropped, unless they're invalid and other has a valid one for the same key.
func CombinePsbt(base, other *psbt.Packet) (*psbt.Packet, error) {
	if !SameUnsignedTx(base, other) {
		return nil, ErrDifferentTransaction
	}

	combined, err := ClonePsbt(base)
	if err != nil {
		return nil, err
	}

	for i := range combined.Inputs {
		in, otherIn := &combined.Inputs[i], other.Inputs[i]
		if in.WitnessUtxo == nil && otherIn.WitnessUtxo != nil {
			in.WitnessUtxo = otherIn.WitnessUtxo
		}
		if in.NonWitnessUtxo == nil && otherIn.NonWitnessUtxo != nil {
			in.NonWitnessUtxo = otherIn.NonWitnessUtxo
		}
		if len(in.WitnessScript) <= 0 && len(otherIn.WitnessScript) > 0 {
			in.WitnessScript = otherIn.WitnessScript
		}
		if len(in.RedeemScript) <= 0 && len(otherIn.RedeemScript) > 0 {
			in.RedeemScript = otherIn.RedeemScript
		}
		for _, d := range otherIn.Bip32Derivation {
			if !hasDerivation(in.Bip32Derivation, d.PubKey) {
				in.Bip32Derivation = append(in.Bip32Derivation, d)
			}
		}
	}

	fetcher, err := prevOutFetcher(combined)
	if err != nil {
		return nil, err
	}
	sigHashes := txscript.NewTxSigHashes(combined.UnsignedTx, fetcher)

	for i := range combined.Inputs {
		in := &combined.Inputs[i]
		if isFinalizedInput(*in) {
			continue
		}
		_, keys, err := InputKeys(combined, i)
		if err != nil {
			return nil, err
		}

		for _, ps := range other.Inputs[i].PartialSigs {
			if bip67.PositionOf(ps.PubKey, keys) < 0 ||
				!verifyPartialSig(combined, sigHashes, i, ps) {
				continue
			}

			j := partialSigIndex(in.PartialSigs, ps.PubKey)
			if j < 0 {
				in.PartialSigs = append(in.PartialSigs, ps)
				continue
			}
			if !verifyPartialSig(combined, sigHashes, i, in.PartialSigs[j]) {
				in.PartialSigs[j] = ps
			}
		}
		sort.Sort(psbt.PartialSigSorter(in.PartialSigs))
	}

	return combined, nil
}

func hasDerivation(derivations []*psbt.Bip32Derivation, pubkey []byte) bool {
	for _, d := range derivations {
		if bytes.Equal(d.PubKey, pubkey) {
			return true
		}
	}
	return false
}

func partialSigIndex(sigs []*psbt.PartialSig, pubkey []byte) int {
	for i, s := range sigs {
		if bytes.Equal(s.PubKey, pubkey) {
			return i
		}
	}
	return -1
}
