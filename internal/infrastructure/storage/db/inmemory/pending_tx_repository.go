package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

type pendingTxInmemoryStore struct {
	txs  map[string]*domain.PendingMultisigTransaction
	lock *sync.RWMutex
}

type pendingTxRepository struct {
	store            *pendingTxInmemoryStore
	chEvents         chan domain.PendingTxEvent
	externalChEvents chan domain.PendingTxEvent
	chLock           *sync.Mutex
}

func NewPendingTxRepository() domain.PendingTxRepository {
	return newPendingTxRepository()
}

func newPendingTxRepository() *pendingTxRepository {
	return &pendingTxRepository{
		store: &pendingTxInmemoryStore{
			txs:  make(map[string]*domain.PendingMultisigTransaction),
			lock: &sync.RWMutex{},
		},
		chEvents:         make(chan domain.PendingTxEvent),
		externalChEvents: make(chan domain.PendingTxEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *pendingTxRepository) AddPendingTx(
	_ context.Context, pendingTx *domain.PendingMultisigTransaction,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.txs[pendingTx.TxID]; ok {
		return false, nil
	}
	r.store.txs[pendingTx.TxID] = copyPendingTx(pendingTx)

	go r.publishEvent(domain.PendingTxEvent{
		EventType: domain.PendingTxAdded,
		PendingTx: copyPendingTx(pendingTx),
	})
	return true, nil
}

func (r *pendingTxRepository) GetPendingTx(
	_ context.Context, txid string,
) (*domain.PendingMultisigTransaction, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	pendingTx, ok := r.store.txs[txid]
	if !ok {
		return nil, domain.ErrPendingTxNotFound
	}
	return copyPendingTx(pendingTx), nil
}

func (r *pendingTxRepository) GetPendingTxs(
	_ context.Context, accountIndex *uint32,
) ([]*domain.PendingMultisigTransaction, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	txs := make([]*domain.PendingMultisigTransaction, 0, len(r.store.txs))
	for _, pendingTx := range r.store.txs {
		if accountIndex != nil && pendingTx.AccountIndex != *accountIndex {
			continue
		}
		txs = append(txs, copyPendingTx(pendingTx))
	}
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].CreatedAt == txs[j].CreatedAt {
			return txs[i].TxID < txs[j].TxID
		}
		return txs[i].CreatedAt < txs[j].CreatedAt
	})
	return txs, nil
}

func (r *pendingTxRepository) UpdatePendingTx(
	_ context.Context, txid string,
	updateFn func(
		p *domain.PendingMultisigTransaction,
	) (*domain.PendingMultisigTransaction, error),
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	pendingTx, ok := r.store.txs[txid]
	if !ok {
		return domain.ErrPendingTxNotFound
	}

	updatedTx, err := updateFn(copyPendingTx(pendingTx))
	if err != nil {
		return err
	}

	r.store.txs[txid] = copyPendingTx(updatedTx)

	eventType := domain.PendingTxUpdated
	if updatedTx.Status == domain.PendingTxBroadcast {
		eventType = domain.PendingTxBroadcasted
	}
	go r.publishEvent(domain.PendingTxEvent{
		EventType: eventType,
		PendingTx: copyPendingTx(updatedTx),
	})
	return nil
}

func (r *pendingTxRepository) DeletePendingTx(
	_ context.Context, txid string,
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	pendingTx, ok := r.store.txs[txid]
	if !ok {
		return nil
	}
	delete(r.store.txs, txid)

	go r.publishEvent(domain.PendingTxEvent{
		EventType: domain.PendingTxRemoved,
		PendingTx: pendingTx,
	})
	return nil
}

func (r *pendingTxRepository) GetEventChannel() chan domain.PendingTxEvent {
	return r.externalChEvents
}

func (r *pendingTxRepository) publishEvent(event domain.PendingTxEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *pendingTxRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	r.store.txs = make(map[string]*domain.PendingMultisigTransaction)
}

func (r *pendingTxRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}

func copyPendingTx(
	pendingTx *domain.PendingMultisigTransaction,
) *domain.PendingMultisigTransaction {
	cpy := *pendingTx
	cpy.SignatureStatus = make(
		map[string]domain.SignatureStatus, len(pendingTx.SignatureStatus),
	)
	for k, v := range pendingTx.SignatureStatus {
		cpy.SignatureStatus[k] = v
	}
	return &cpy
}
