package domain

import "context"

// WizardSessionRepository is the abstraction for any kind of database
// intended to persist the single WizardSession.
type WizardSessionRepository interface {
	// GetSession returns the stored session or ErrWizardSessionNotFound.
	// A stored record that fails validation yields ErrInvalidWizardSession.
	GetSession(ctx context.Context) (*WizardSession, error)
	// InsertSession stores the given session only if none exists, in an
	// atomic way. Returns false if another session is stored.
	InsertSession(ctx context.Context, session *WizardSession) (bool, error)
	// UpdateSession allows to commit multiple changes to the session in a
	// transactional way.
	UpdateSession(
		ctx context.Context,
		updateFn func(s *WizardSession) (*WizardSession, error),
	) (*WizardSession, error)
	// DeleteSession removes the stored session, if any.
	DeleteSession(ctx context.Context) error
}
