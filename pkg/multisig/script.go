package multisig

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/vulpemventures/ocean-multisig/pkg/bip67"
)

// AddressType is the kind of output script locking the multisig funds.
type AddressType string

const (
	P2WSH     AddressType = "p2wsh"
	P2SHP2WSH AddressType = "p2sh-p2wsh"
	P2SH      AddressType = "p2sh"
)

// ParseAddressType validates the given string.
func ParseAddressType(s string) (AddressType, error) {
	switch t := AddressType(s); t {
	case P2WSH, P2SHP2WSH, P2SH:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidAddressType, s)
	}
}

// IsSegwit returns whether the spending data goes into the witness.
func (t AddressType) IsSegwit() bool {
	return t == P2WSH || t == P2SHP2WSH
}

// MultisigScript returns OP_M <keys> OP_N OP_CHECKMULTISIG with keys in
// canonical order, no matter the order they're given.
func MultisigScript(keys [][]byte, required int) ([]byte, error) {
	if err := bip67.ValidateForMultisig(keys); err != nil {
		return nil, err
	}
	if required < 1 || required > len(keys) {
		return nil, ErrInvalidThreshold
	}

	sorted, err := bip67.SortKeys(keys)
	if err != nil {
		return nil, err
	}

	builder := txscript.NewScriptBuilder().AddInt64(int64(required))
	for _, key := range sorted {
		builder.AddData(key)
	}
	return builder.
		AddInt64(int64(len(sorted))).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
}

// ParseMultisigScript returns the threshold and the keys of a multisig
// script, the latter in the order they appear in the script.
func ParseMultisigScript(script []byte) (int, [][]byte, error) {
	if txscript.GetScriptClass(script) != txscript.MultiSigTy {
		return 0, nil, ErrNotMultisigScript
	}

	_, required, err := txscript.CalcMultiSigStats(script)
	if err != nil {
		return 0, nil, err
	}

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	keys := make([][]byte, 0)
	for tokenizer.Next() {
		data := tokenizer.Data()
		if len(data) == 33 || len(data) == 65 {
			keys = append(keys, append([]byte{}, data...))
		}
	}
	if err := tokenizer.Err(); err != nil {
		return 0, nil, err
	}
	return required, keys, nil
}

// Payment groups the scripts locking funds to a multisig address.
type Payment struct {
	Address       string
	OutputScript  []byte
	RedeemScript  []byte
	WitnessScript []byte
}

// NewPayment wraps the given multisig script into the output of the given
// address type.
func NewPayment(
	multisigScript []byte, addressType AddressType, net *chaincfg.Params,
) (*Payment, error) {
	if net == nil {
		return nil, ErrMissingNetwork
	}

	var (
		addr          btcutil.Address
		redeemScript  []byte
		witnessScript []byte
		err           error
	)
	switch addressType {
	case P2WSH:
		witnessScript = multisigScript
		scriptHash := sha256.Sum256(witnessScript)
		addr, err = btcutil.NewAddressWitnessScriptHash(scriptHash[:], net)
	case P2SHP2WSH:
		witnessScript = multisigScript
		scriptHash := sha256.Sum256(witnessScript)
		redeemScript, err = txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).AddData(scriptHash[:]).Script()
		if err != nil {
			return nil, err
		}
		addr, err = btcutil.NewAddressScriptHash(redeemScript, net)
	case P2SH:
		redeemScript = multisigScript
		addr, err = btcutil.NewAddressScriptHash(redeemScript, net)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddressType, addressType)
	}
	if err != nil {
		return nil, err
	}

	outputScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	return &Payment{
		Address:       addr.EncodeAddress(),
		OutputScript:  outputScript,
		RedeemScript:  redeemScript,
		WitnessScript: witnessScript,
	}, nil
}
