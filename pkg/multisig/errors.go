package multisig

import (
	"fmt"
)

var (
	ErrMissingPsbt          = fmt.Errorf("missing psbt")
	ErrMissingNetwork       = fmt.Errorf("missing network")
	ErrMissingMasterKey     = fmt.Errorf("missing signing master key")
	ErrMissingCosigners     = fmt.Errorf("missing cosigners")
	ErrMissingInputs        = fmt.Errorf("missing inputs")
	ErrMissingOutputs       = fmt.Errorf("missing outputs")
	ErrMissingPrevTx        = fmt.Errorf("p2sh input requires the full previous transaction")
	ErrMissingPrevOut       = fmt.Errorf("input is missing previous output")
	ErrMissingInputScript   = fmt.Errorf("input is missing witness or redeem script")
	ErrInvalidPsbt          = fmt.Errorf("invalid psbt")
	ErrInvalidXpub          = fmt.Errorf("invalid cosigner xpub")
	ErrInvalidFingerprint   = fmt.Errorf("invalid fingerprint, must be 4 bytes in hex format")
	ErrInvalidThreshold     = fmt.Errorf("required signatures must be in range [1, number of keys]")
	ErrInvalidAddressType   = fmt.Errorf("unknown address type")
	ErrInvalidNetwork       = fmt.Errorf("unknown network")
	ErrNotMultisigScript    = fmt.Errorf("script is not a standard multisig script")
	ErrDifferentTransaction = fmt.Errorf("psbts refer to different unsigned transactions")
	ErrNotEnoughSignatures  = fmt.Errorf("not enough valid signatures to finalize input")
	ErrPsbtFinalized        = fmt.Errorf("psbt is already finalized")
)

var (
	ErrForeignInput = fmt.Errorf("input is not locked by the account keys")
)
