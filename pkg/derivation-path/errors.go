package path

import (
	"fmt"
)

var (
	ErrMissingDerivationPath          = fmt.Errorf("missing derivation path")
	ErrRequiredAbsoluteDerivationPath = fmt.Errorf("path must be an absolute derivation starting with 'm/'")
	ErrMalformedDerivationPath        = fmt.Errorf("path must not start or end with a '/'")
	ErrInvalidAccountPathLen          = fmt.Errorf(`invalid account path length, must be in the form m/purpose'/coin_type'/account'[/script_type']`)
	ErrInvalidAccountPath             = fmt.Errorf("account path must contain only hardened values")
	ErrInvalidChildPathLen            = fmt.Errorf(`child path must be a relative path in the form "chain/index"`)
	ErrInvalidChildPath               = fmt.Errorf("child path must contain only non-hardened values")
	ErrInvalidChain                   = fmt.Errorf("chain must be either 0 (receive) or 1 (change)")
)
