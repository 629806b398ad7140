package bip67

import (
	"fmt"
)

var (
	ErrEmptyKeySet      = fmt.Errorf("key set must not be empty")
	ErrInvalidKeyFormat = fmt.Errorf("invalid public key format")
	ErrInsufficientKeys = fmt.Errorf("not enough keys for multisig")
	ErrTooManyKeys      = fmt.Errorf("too many keys for multisig")
	ErrDuplicateKey     = fmt.Errorf("duplicate public key in key set")
)
