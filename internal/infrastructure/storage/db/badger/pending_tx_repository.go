package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

type pendingTxRepository struct {
	store            *badgerhold.Store
	chEvents         chan domain.PendingTxEvent
	externalChEvents chan domain.PendingTxEvent
	chLock           *sync.Mutex

	log func(format string, a ...interface{})
}

func NewPendingTxRepository(store *badgerhold.Store) domain.PendingTxRepository {
	return newPendingTxRepository(store)
}

func newPendingTxRepository(store *badgerhold.Store) *pendingTxRepository {
	chEvents := make(chan domain.PendingTxEvent)
	externalChEvents := make(chan domain.PendingTxEvent)
	chLock := &sync.Mutex{}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("pending tx repository: %s", format)
		log.Debugf(format, a...)
	}
	return &pendingTxRepository{store, chEvents, externalChEvents, chLock, logFn}
}

func (r *pendingTxRepository) AddPendingTx(
	ctx context.Context, pendingTx *domain.PendingMultisigTransaction,
) (bool, error) {
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxInsert(tx, pendingTx.TxID, *pendingTx)
	} else {
		err = r.store.Insert(pendingTx.TxID, *pendingTx)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return false, nil
		}
		return false, err
	}

	r.log("added pending tx %s", pendingTx.TxID)
	go r.publishEvent(domain.PendingTxEvent{
		EventType: domain.PendingTxAdded,
		PendingTx: pendingTx,
	})
	return true, nil
}

func (r *pendingTxRepository) GetPendingTx(
	ctx context.Context, txid string,
) (*domain.PendingMultisigTransaction, error) {
	var pendingTx domain.PendingMultisigTransaction
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxGet(tx, txid, &pendingTx)
	} else {
		err = r.store.Get(txid, &pendingTx)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrPendingTxNotFound
		}
		return nil, err
	}
	return &pendingTx, nil
}

func (r *pendingTxRepository) GetPendingTxs(
	ctx context.Context, accountIndex *uint32,
) ([]*domain.PendingMultisigTransaction, error) {
	var query *badgerhold.Query
	if accountIndex != nil {
		query = badgerhold.Where("AccountIndex").Eq(*accountIndex)
	}

	var txs []domain.PendingMultisigTransaction
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxFind(tx, &txs, query)
	} else {
		err = r.store.Find(&txs, query)
	}
	if err != nil {
		return nil, err
	}

	res := make([]*domain.PendingMultisigTransaction, 0, len(txs))
	for i := range txs {
		res = append(res, &txs[i])
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].CreatedAt == res[j].CreatedAt {
			return res[i].TxID < res[j].TxID
		}
		return res[i].CreatedAt < res[j].CreatedAt
	})
	return res, nil
}

func (r *pendingTxRepository) UpdatePendingTx(
	ctx context.Context, txid string,
	updateFn func(
		p *domain.PendingMultisigTransaction,
	) (*domain.PendingMultisigTransaction, error),
) error {
	var updatedTx *domain.PendingMultisigTransaction
	if err := update(r.store, func(tx *badger.Txn) error {
		pendingTx := &domain.PendingMultisigTransaction{}
		if err := r.store.TxGet(tx, txid, pendingTx); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrPendingTxNotFound
			}
			return err
		}

		var err error
		updatedTx, err = updateFn(pendingTx)
		if err != nil {
			return err
		}
		return r.store.TxUpdate(tx, txid, *updatedTx)
	}); err != nil {
		return err
	}

	eventType := domain.PendingTxUpdated
	if updatedTx.Status == domain.PendingTxBroadcast {
		eventType = domain.PendingTxBroadcasted
	}
	r.log("updated pending tx %s", txid)
	go r.publishEvent(domain.PendingTxEvent{
		EventType: eventType,
		PendingTx: updatedTx,
	})
	return nil
}

func (r *pendingTxRepository) DeletePendingTx(
	ctx context.Context, txid string,
) error {
	pendingTx, err := r.GetPendingTx(ctx, txid)
	if err != nil {
		if errors.Is(err, domain.ErrPendingTxNotFound) {
			return nil
		}
		return err
	}

	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxDelete(tx, txid, domain.PendingMultisigTransaction{})
	} else {
		err = r.store.Delete(txid, domain.PendingMultisigTransaction{})
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}

	r.log("deleted pending tx %s", txid)
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
	if err := r.store.Badger().DropAll(); err != nil {
		r.log("failed to reset store: %s", err)
	}
}

func (r *pendingTxRepository) close() {
	r.store.Close()
	close(r.chEvents)
	close(r.externalChEvents)
}
