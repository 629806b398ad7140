package application

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type AccountInfo domain.MultisigAccount

type AddressInfo struct {
	AccountIndex   uint32
	Address        string
	Script         string
	DerivationPath string
}

type AccountKeyInfo struct {
	Xpub           string
	Fingerprint    string
	DerivationPath string
}

// PendingTxInfo is the view of a pending tx returned to clients.
type PendingTxInfo domain.PendingMultisigTransaction

// AmountBTC returns the spent amount formatted in BTC.
func (info PendingTxInfo) AmountBTC() string {
	return satsToBTC(info.Metadata.Amount)
}

// FeeBTC returns the fee amount formatted in BTC.
func (info PendingTxInfo) FeeBTC() string {
	return satsToBTC(info.Metadata.Fee)
}

// SignedBy returns the sorted names of the cosigners who signed.
func (info PendingTxInfo) SignedBy() []string {
	names := (*domain.PendingMultisigTransaction)(&info).Signers()
	sort.Strings(names)
	return names
}

func (info PendingTxInfo) IsReadyToBroadcast() bool {
	return (*domain.PendingMultisigTransaction)(&info).IsReadyToBroadcast()
}

type PendingTxsInfo []*PendingTxInfo

func satsToBTC(sats uint64) string {
	return decimal.NewFromInt(int64(sats)).Shift(-8).StringFixed(8)
}
