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

type accountRepository struct {
	store            *badgerhold.Store
	chEvents         chan domain.AccountEvent
	externalChEvents chan domain.AccountEvent
	chLock           *sync.Mutex

	log func(format string, a ...interface{})
}

func NewAccountRepository(store *badgerhold.Store) domain.AccountRepository {
	return newAccountRepository(store)
}

func newAccountRepository(store *badgerhold.Store) *accountRepository {
	chEvents := make(chan domain.AccountEvent)
	externalChEvents := make(chan domain.AccountEvent)
	chLock := &sync.Mutex{}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("account repository: %s", format)
		log.Debugf(format, a...)
	}
	return &accountRepository{store, chEvents, externalChEvents, chLock, logFn}
}

func (r *accountRepository) AddAccount(
	ctx context.Context, account *domain.MultisigAccount,
) (bool, error) {
	if err := r.insertAccount(ctx, account); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return false, nil
		}
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
	return r.getAccount(ctx, index)
}

func (r *accountRepository) GetAccounts(
	ctx context.Context,
) ([]*domain.MultisigAccount, error) {
	var accounts []domain.MultisigAccount
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxFind(tx, &accounts, nil)
	} else {
		err = r.store.Find(&accounts, nil)
	}
	if err != nil {
		return nil, err
	}

	res := make([]*domain.MultisigAccount, 0, len(accounts))
	for i := range accounts {
		res = append(res, &accounts[i])
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Index < res[j].Index
	})
	return res, nil
}

func (r *accountRepository) UpdateAccount(
	ctx context.Context, index uint32,
	updateFn func(a *domain.MultisigAccount) (*domain.MultisigAccount, error),
) error {
	var updatedAccount *domain.MultisigAccount
	if err := update(r.store, func(tx *badger.Txn) error {
		account := &domain.MultisigAccount{}
		if err := r.store.TxGet(tx, index, account); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}

		var err error
		updatedAccount, err = updateFn(account)
		if err != nil {
			return err
		}
		return r.store.TxUpdate(tx, index, *updatedAccount)
	}); err != nil {
		return err
	}

	r.log("updated account %d", index)
	go r.publishEvent(domain.AccountEvent{
		EventType: domain.AccountAddressDerived,
		Account:   updatedAccount,
	})
	return nil
}

func (r *accountRepository) DeleteAccount(
	ctx context.Context, index uint32,
) error {
	account, err := r.getAccount(ctx, index)
	if err != nil {
		return err
	}

	if err := r.store.Delete(index, domain.MultisigAccount{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return domain.ErrAccountNotFound
		}
		return err
	}

	r.log("deleted account %d", index)
	go r.publishEvent(domain.AccountEvent{
		EventType: domain.AccountDeleted,
		Account:   account,
	})
	return nil
}

func (r *accountRepository) GetEventChannel() chan domain.AccountEvent {
	return r.externalChEvents
}

func (r *accountRepository) insertAccount(
	ctx context.Context, account *domain.MultisigAccount,
) error {
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		return r.store.TxInsert(tx, account.Index, *account)
	}
	return r.store.Insert(account.Index, *account)
}

func (r *accountRepository) getAccount(
	ctx context.Context, index uint32,
) (*domain.MultisigAccount, error) {
	var account domain.MultisigAccount
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxGet(tx, index, &account)
	} else {
		err = r.store.Get(index, &account)
	}
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
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

func (r *accountRepository) reset() {
	if err := r.store.Badger().DropAll(); err != nil {
		r.log("failed to reset store: %s", err)
	}
}

func (r *accountRepository) close() {
	r.store.Close()
	close(r.chEvents)
	close(r.externalChEvents)
}
