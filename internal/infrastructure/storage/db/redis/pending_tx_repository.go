package redisdb

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

type pendingTxRepository struct {
	client           *redis.Client
	keys             keyspace
	chEvents         chan domain.PendingTxEvent
	externalChEvents chan domain.PendingTxEvent
	chLock           *sync.Mutex
}

func newPendingTxRepository(
	client *redis.Client, keys keyspace,
) *pendingTxRepository {
	return &pendingTxRepository{
		client:           client,
		keys:             keys,
		chEvents:         make(chan domain.PendingTxEvent),
		externalChEvents: make(chan domain.PendingTxEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *pendingTxRepository) AddPendingTx(
	ctx context.Context, pendingTx *domain.PendingMultisigTransaction,
) (bool, error) {
	buf, err := json.Marshal(pendingTx)
	if err != nil {
		return false, err
	}

	ok, err := r.client.SetNX(ctx, r.pendingTxKey(pendingTx.TxID), buf, 0).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := r.client.SAdd(
		ctx, r.keys.key(keySetPendingTxs), pendingTx.TxID,
	).Err(); err != nil {
		return false, err
	}

	go r.publishEvent(domain.PendingTxEvent{
		EventType: domain.PendingTxAdded,
		PendingTx: pendingTx,
	})
	return true, nil
}

func (r *pendingTxRepository) GetPendingTx(
	ctx context.Context, txid string,
) (*domain.PendingMultisigTransaction, error) {
	return r.getPendingTx(ctx, r.client, txid)
}

func (r *pendingTxRepository) GetPendingTxs(
	ctx context.Context, accountIndex *uint32,
) ([]*domain.PendingMultisigTransaction, error) {
	txids, err := r.client.SMembers(ctx, r.keys.key(keySetPendingTxs)).Result()
	if err != nil {
		return nil, err
	}

	txs := make([]*domain.PendingMultisigTransaction, 0, len(txids))
	for _, txid := range txids {
		pendingTx, err := r.getPendingTx(ctx, r.client, txid)
		if err != nil {
			if errors.Is(err, domain.ErrPendingTxNotFound) {
				continue
			}
			return nil, err
		}
		if accountIndex != nil && pendingTx.AccountIndex != *accountIndex {
			continue
		}
		txs = append(txs, pendingTx)
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
	ctx context.Context, txid string,
	updateFn func(
		p *domain.PendingMultisigTransaction,
	) (*domain.PendingMultisigTransaction, error),
) error {
	key := r.pendingTxKey(txid)
	var updatedTx *domain.PendingMultisigTransaction
	if err := watchAndUpdate(ctx, r.client, key, func(tx *redis.Tx) error {
		pendingTx, err := r.getPendingTx(ctx, tx, txid)
		if err != nil {
			return err
		}

		updatedTx, err = updateFn(pendingTx)
		if err != nil {
			return err
		}
		buf, err := json.Marshal(updatedTx)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		return err
	}); err != nil {
		return err
	}

	eventType := domain.PendingTxUpdated
	if updatedTx.Status == domain.PendingTxBroadcast {
		eventType = domain.PendingTxBroadcasted
	}
	go r.publishEvent(domain.PendingTxEvent{
		EventType: eventType,
		PendingTx: updatedTx,
	})
	return nil
}

func (r *pendingTxRepository) DeletePendingTx(
	ctx context.Context, txid string,
) error {
	key := r.pendingTxKey(txid)
	var pendingTx *domain.PendingMultisigTransaction
	if err := watchAndUpdate(ctx, r.client, key, func(tx *redis.Tx) error {
		var err error
		pendingTx, err = r.getPendingTx(ctx, tx, txid)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, r.keys.key(keySetPendingTxs), txid)
			return nil
		})
		return err
	}); err != nil {
		if errors.Is(err, domain.ErrPendingTxNotFound) {
			return nil
		}
		return err
	}

	go r.publishEvent(domain.PendingTxEvent{
		EventType: domain.PendingTxRemoved,
		PendingTx: pendingTx,
	})
	return nil
}

func (r *pendingTxRepository) GetEventChannel() chan domain.PendingTxEvent {
	return r.externalChEvents
}

func (r *pendingTxRepository) pendingTxKey(txid string) string {
	return r.keys.key(keyPrefixPendingTx + txid)
}

func (r *pendingTxRepository) getPendingTx(
	ctx context.Context, c getter, txid string,
) (*domain.PendingMultisigTransaction, error) {
	pendingTx := &domain.PendingMultisigTransaction{}
	found, err := getJSON(ctx, c, r.pendingTxKey(txid), pendingTx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrPendingTxNotFound
	}
	return pendingTx, nil
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

func (r *pendingTxRepository) reset(ctx context.Context) error {
	indexKey := r.keys.key(keySetPendingTxs)
	txids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}

	keys := []string{indexKey}
	for _, txid := range txids {
		keys = append(keys, r.pendingTxKey(txid))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *pendingTxRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}
