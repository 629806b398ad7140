package redisdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

type accountRepository struct {
	client           *redis.Client
	keys             keyspace
	chEvents         chan domain.AccountEvent
	externalChEvents chan domain.AccountEvent
	chLock           *sync.Mutex
}

func newAccountRepository(
	client *redis.Client, keys keyspace,
) *accountRepository {
	return &accountRepository{
		client:           client,
		keys:             keys,
		chEvents:         make(chan domain.AccountEvent),
		externalChEvents: make(chan domain.AccountEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *accountRepository) AddAccount(
	ctx context.Context, account *domain.MultisigAccount,
) (bool, error) {
	buf, err := json.Marshal(account)
	if err != nil {
		return false, err
	}

	ok, err := r.client.SetNX(ctx, r.accountKey(account.Index), buf, 0).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := r.client.SAdd(
		ctx, r.keys.key(keySetAccounts), account.Index,
	).Err(); err != nil {
		return false, err
	}

	go r.publishEvent(domain.AccountEvent{
		EventType: domain.AccountCreated,
		Account:   account,
	})
	return true, nil
}

func (r *accountRepository) GetAccount(
	ctx context.Context, index uint32,
) (*domain.MultisigAccount, error) {
	return r.getAccount(ctx, r.client, index)
}

func (r *accountRepository) GetAccounts(
	ctx context.Context,
) ([]*domain.MultisigAccount, error) {
	members, err := r.client.SMembers(ctx, r.keys.key(keySetAccounts)).Result()
	if err != nil {
		return nil, err
	}

	accounts := make([]*domain.MultisigAccount, 0, len(members))
	for _, m := range members {
		index, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid account index %s in index set", m)
		}
		account, err := r.getAccount(ctx, r.client, uint32(index))
		if err != nil {
			if err == domain.ErrAccountNotFound {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, account)
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Index < accounts[j].Index
	})
	return accounts, nil
}

func (r *accountRepository) UpdateAccount(
	ctx context.Context, index uint32,
	updateFn func(a *domain.MultisigAccount) (*domain.MultisigAccount, error),
) error {
	key := r.accountKey(index)
	var updatedAccount *domain.MultisigAccount
	if err := watchAndUpdate(ctx, r.client, key, func(tx *redis.Tx) error {
		account, err := r.getAccount(ctx, tx, index)
		if err != nil {
			return err
		}

		updatedAccount, err = updateFn(account)
		if err != nil {
			return err
		}
		buf, err := json.Marshal(updatedAccount)
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

	go r.publishEvent(domain.AccountEvent{
		EventType: domain.AccountAddressDerived,
		Account:   updatedAccount,
	})
	return nil
}

func (r *accountRepository) DeleteAccount(
	ctx context.Context, index uint32,
) error {
	account, err := r.getAccount(ctx, r.client, index)
	if err != nil {
		return err
	}

	if _, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.accountKey(index))
		pipe.SRem(ctx, r.keys.key(keySetAccounts), index)
		return nil
	}); err != nil {
		return err
	}

	go r.publishEvent(domain.AccountEvent{
		EventType: domain.AccountDeleted,
		Account:   account,
	})
	return nil
}

func (r *accountRepository) GetEventChannel() chan domain.AccountEvent {
	return r.externalChEvents
}

func (r *accountRepository) accountKey(index uint32) string {
	return r.keys.key(fmt.Sprintf("%s%d", keyPrefixAccount, index))
}

func (r *accountRepository) getAccount(
	ctx context.Context, c getter, index uint32,
) (*domain.MultisigAccount, error) {
	account := &domain.MultisigAccount{}
	found, err := getJSON(ctx, c, r.accountKey(index), account)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func (r *accountRepository) publishEvent(event domain.AccountEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *accountRepository) reset(ctx context.Context) error {
	indexKey := r.keys.key(keySetAccounts)
	members, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}

	keys := []string{indexKey}
	for _, m := range members {
		keys = append(keys, r.keys.key(keyPrefixAccount+m))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *accountRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}
