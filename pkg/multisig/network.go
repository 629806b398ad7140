package multisig

import (
	"github.com/btcsuite/btcd/chaincfg"
)

var networks = map[string]*chaincfg.Params{
	"mainnet": &chaincfg.MainNetParams,
	"testnet": &chaincfg.TestNet3Params,
	"regtest": &chaincfg.RegressionNetParams,
	"signet":  &chaincfg.SigNetParams,
}

var coinTypes = map[string]uint32{
	"mainnet": 0,
	"testnet": 1,
	"regtest": 1,
	"signet":  1,
}

// NetworkByName returns the chain params for one of mainnet, testnet,
// regtest or signet.
func NetworkByName(name string) (*chaincfg.Params, error) {
	net, ok := networks[name]
	if !ok {
		return nil, ErrInvalidNetwork
	}
	return net, nil
}

// CoinType returns the BIP44 coin type for the given network name.
func CoinType(name string) uint32 {
	return coinTypes[name]
}
