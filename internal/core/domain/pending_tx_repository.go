package domain

import "context"

const (
	PendingTxAdded PendingTxEventType = iota
	PendingTxUpdated
	PendingTxRemoved
	PendingTxBroadcasted
)

var (
	pendingTxTypeString = map[PendingTxEventType]string{
		PendingTxAdded:       "PendingTxAdded",
		PendingTxUpdated:     "PendingTxUpdated",
		PendingTxRemoved:     "PendingTxRemoved",
		PendingTxBroadcasted: "PendingTxBroadcasted",
	}
)

type PendingTxEventType int

func (t PendingTxEventType) String() string {
	return pendingTxTypeString[t]
}

// PendingTxEvent holds info about an event occured within the repository.
type PendingTxEvent struct {
	EventType PendingTxEventType
	PendingTx *PendingMultisigTransaction
}

// PendingTxRepository is the abstraction for any kind of database intended
// to persist PendingMultisigTransactions.
type PendingTxRepository interface {
	// AddPendingTx adds the given pending tx by preventing duplicates.
	// Generates a PendingTxAdded event if successful.
	AddPendingTx(
		ctx context.Context, pendingTx *PendingMultisigTransaction,
	) (bool, error)
	// GetPendingTx returns the pending tx identified by the given txid.
	GetPendingTx(
		ctx context.Context, txid string,
	) (*PendingMultisigTransaction, error)
	// GetPendingTxs returns all pending txs, or only those of the given
	// account if not nil.
	GetPendingTxs(
		ctx context.Context, accountIndex *uint32,
	) ([]*PendingMultisigTransaction, error)
	// UpdatePendingTx allows to commit multiple changes to the same pending tx
	// in a transactional way. Nothing is written if updateFn errors.
	// Generates a PendingTxUpdated event if successful, or a
	// PendingTxBroadcasted one if the tx moved to the broadcast status.
	UpdatePendingTx(
		ctx context.Context, txid string,
		updateFn func(p *PendingMultisigTransaction) (*PendingMultisigTransaction, error),
	) error
	// DeletePendingTx removes the pending tx identified by the given txid.
	// It's a no-op if not found.
	// Generates a PendingTxRemoved event if something was removed.
	DeletePendingTx(ctx context.Context, txid string) error
	// GetEventChannel returns the channel of PendingTxEvents.
	GetEventChannel() chan PendingTxEvent
}
