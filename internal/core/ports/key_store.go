package ports

import "github.com/btcsuite/btcd/btcutil/hdkeychain"

// KeyStore holds the master key of the local cosigner while the wallet is
// unlocked.
type KeyStore interface {
	Set(masterKey *hdkeychain.ExtendedKey)
	Unset()
	IsSet() bool
	Get() (*hdkeychain.ExtendedKey, error)
}
