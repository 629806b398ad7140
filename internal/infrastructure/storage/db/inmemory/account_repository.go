package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

type accountInmemoryStore struct {
	accounts map[uint32]*domain.MultisigAccount
	lock     *sync.RWMutex
}

type accountRepository struct {
	store            *accountInmemoryStore
	chEvents         chan domain.AccountEvent
	externalChEvents chan domain.AccountEvent
	chLock           *sync.Mutex
}

func NewAccountRepository() domain.AccountRepository {
	return newAccountRepository()
}

func newAccountRepository() *accountRepository {
	return &accountRepository{
		store: &accountInmemoryStore{
			accounts: make(map[uint32]*domain.MultisigAccount),
			lock:     &sync.RWMutex{},
		},
		chEvents:         make(chan domain.AccountEvent),
		externalChEvents: make(chan domain.AccountEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *accountRepository) AddAccount(
	_ context.Context, account *domain.MultisigAccount,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.accounts[account.Index]; ok {
		return false, nil
	}
	r.store.accounts[account.Index] = copyAccount(account)

	go r.publishEvent(domain.AccountEvent{
		EventType: domain.AccountCreated,
		Account:   copyAccount(account),
	})
	return true, nil
}

func (r *accountRepository) GetAccount(
	_ context.Context, index uint32,
) (*domain.MultisigAccount, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	account, ok := r.store.accounts[index]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return copyAccount(account), nil
}

func (r *accountRepository) GetAccounts(
	_ context.Context,
) ([]*domain.MultisigAccount, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	accounts := make([]*domain.MultisigAccount, 0, len(r.store.accounts))
	for _, account := range r.store.accounts {
		accounts = append(accounts, copyAccount(account))
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Index < accounts[j].Index
	})
	return accounts, nil
}

func (r *accountRepository) UpdateAccount(
	_ context.Context, index uint32,
	updateFn func(a *domain.MultisigAccount) (*domain.MultisigAccount, error),
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	account, ok := r.store.accounts[index]
	if !ok {
		return domain.ErrAccountNotFound
	}

	updatedAccount, err := updateFn(copyAccount(account))
	if err != nil {
		return err
	}

	r.store.accounts[index] = copyAccount(updatedAccount)

	go r.publishEvent(domain.AccountEvent{
		EventType: domain.AccountAddressDerived,
		Account:   copyAccount(updatedAccount),
	})
	return nil
}

func (r *accountRepository) DeleteAccount(
	_ context.Context, index uint32,
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	account, ok := r.store.accounts[index]
	if !ok {
		return domain.ErrAccountNotFound
	}
	delete(r.store.accounts, index)

	go r.publishEvent(domain.AccountEvent{
		EventType: domain.AccountDeleted,
		Account:   account,
	})
	return nil
}

func (r *accountRepository) GetEventChannel() chan domain.AccountEvent {
	return r.externalChEvents
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
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	r.store.accounts = make(map[uint32]*domain.MultisigAccount)
}

func (r *accountRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}

func copyAccount(account *domain.MultisigAccount) *domain.MultisigAccount {
	cpy := *account
	cpy.Cosigners = append([]domain.Cosigner{}, account.Cosigners...)
	return &cpy
}
