package multisig

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/ocean-multisig/pkg/bip67"
)

type SignPsbtArgs struct {
	Packet    *psbt.Packet
	MasterKey *hdkeychain.ExtendedKey
}

func (a SignPsbtArgs) validate() error {
	if a.Packet == nil {
		return ErrMissingPsbt
	}
	if a.MasterKey == nil || !a.MasterKey.IsPrivate() {
		return ErrMissingMasterKey
	}
	return nil
}

// SignPsbt adds a partial signature to every input whose BIP32 derivations
// refer to the given master key. Inputs that already carry a valid signature
// for that key are left untouched, so signing twice is a no-op. An invalid
// one is replaced.
// The packet is modified in place, the number of new signatures is returned.
func SignPsbt(args SignPsbtArgs) (int, error) {
	if err := args.validate(); err != nil {
		return 0, err
	}
	packet := args.Packet

	fingerprint, err := MasterFingerprint(args.MasterKey)
	if err != nil {
		return 0, err
	}
	fetcher, err := prevOutFetcher(packet)
	if err != nil {
		return 0, err
	}
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range packet.Inputs {
		in := packet.Inputs[i]
		if isFinalizedInput(in) {
			continue
		}
		script, isWitness, err := InputScript(in)
		if err != nil {
			return 0, err
		}
		_, keys, err := ParseMultisigScript(script)
		if err != nil {
			return 0, err
		}

		for _, d := range in.Bip32Derivation {
			if d.MasterKeyFingerprint != fingerprint {
				continue
			}
			sigs := packet.Inputs[i].PartialSigs
			if j := partialSigIndex(sigs, d.PubKey); j >= 0 {
				if verifyPartialSig(packet, sigHashes, i, sigs[j]) {
					continue
				}
				packet.Inputs[i].PartialSigs = append(sigs[:j:j], sigs[j+1:]...)
			}
			if bip67.PositionOf(d.PubKey, keys) < 0 {
				continue
			}

			key, err := DeriveKey(args.MasterKey, d.Bip32Path)
			if err != nil {
				return 0, err
			}
			prvkey, err := key.ECPrivKey()
			if err != nil {
				return 0, err
			}
			if !bytes.Equal(prvkey.PubKey().SerializeCompressed(), d.PubKey) {
				continue
			}

			hashType := in.SighashType
			if hashType == 0 {
				hashType = txscript.SigHashAll
			}

			var sig []byte
			if isWitness {
				out, err := prevOut(packet, i)
				if err != nil {
					return 0, err
				}
				sig, err = txscript.RawTxInWitnessSignature(
					packet.UnsignedTx, sigHashes, i, out.Value, script,
					hashType, prvkey,
				)
				if err != nil {
					return 0, err
				}
			} else {
				sig, err = txscript.RawTxInSignature(
					packet.UnsignedTx, i, script, hashType, prvkey,
				)
				if err != nil {
					return 0, err
				}
			}

			if _, err := updater.Sign(i, sig, d.PubKey, nil, nil); err != nil {
				return 0, err
			}
			count++
		}
	}

	return count, nil
}
