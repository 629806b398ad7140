package ports

import (
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

type AccountEventHandler func(event domain.AccountEvent)
type PendingTxEventHandler func(event domain.PendingTxEvent)

// RepoManager is the abstraction for any kind of service intended to manage
// domain repositories implementations of the same concrete type.
type RepoManager interface {
	// AccountRepository returns the multisig account repository.
	AccountRepository() domain.AccountRepository
	// PendingTxRepository returns the pending tx repository.
	PendingTxRepository() domain.PendingTxRepository
	// WizardSessionRepository returns the wizard session repository.
	WizardSessionRepository() domain.WizardSessionRepository

	// RegisterHandlerForAccountEvent registers an handler function, executed
	// whenever the given event type occurs.
	RegisterHandlerForAccountEvent(
		eventType domain.AccountEventType, handler AccountEventHandler,
	)
	// RegisterHandlerForPendingTxEvent registers an handler function,
	// executed whenever the given event type occurs.
	RegisterHandlerForPendingTxEvent(
		eventType domain.PendingTxEventType, handler PendingTxEventHandler,
	)

	// Reset brings all the repos to their initial state by deleting any persisted data.
	Reset()

	// Close closes the connection with all concrete repositories
	// implementations.
	Close()
}
