package domain

import (
	"context"
)

const (
	AccountCreated AccountEventType = iota
	AccountAddressDerived
	AccountDeleted
)

var (
	accountTypeString = map[AccountEventType]string{
		AccountCreated:        "AccountCreated",
		AccountAddressDerived: "AccountAddressDerived",
		AccountDeleted:        "AccountDeleted",
	}
)

type AccountEventType int

func (t AccountEventType) String() string {
	return accountTypeString[t]
}

// AccountEvent holds info about an event occured within the repository.
type AccountEvent struct {
	EventType AccountEventType
	Account   *MultisigAccount
}

// AccountRepository is the abstraction for any kind of database intended to
// persist MultisigAccounts.
type AccountRepository interface {
	// AddAccount stores the given account if no other with the same index
	// exists.
	// Generates an AccountCreated event if successful.
	AddAccount(ctx context.Context, account *MultisigAccount) (bool, error)
	// GetAccount returns the account with the given index.
	GetAccount(ctx context.Context, index uint32) (*MultisigAccount, error)
	// GetAccounts returns all accounts sorted by index.
	GetAccounts(ctx context.Context) ([]*MultisigAccount, error)
	// UpdateAccount allows to commit multiple changes to the same account in
	// a transactional way.
	UpdateAccount(
		ctx context.Context, index uint32,
		updateFn func(a *MultisigAccount) (*MultisigAccount, error),
	) error
	// DeleteAccount removes the account with the given index.
	// Generates an AccountDeleted event if successful.
	DeleteAccount(ctx context.Context, index uint32) error
	// GetEventChannel returns the channel of AccountEvents.
	GetEventChannel() chan AccountEvent
}
