package inmemory

import (
	"context"
	"sync"

	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

// sessionRepository keeps the session JSON encoded, like any other backend,
// so that reads always go through validation.
type sessionRepository struct {
	session []byte
	lock    *sync.Mutex
}

func NewWizardSessionRepository() domain.WizardSessionRepository {
	return newSessionRepository()
}

func newSessionRepository() *sessionRepository {
	return &sessionRepository{
		lock: &sync.Mutex{},
	}
}

func (r *sessionRepository) GetSession(
	_ context.Context,
) (*domain.WizardSession, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.getSession()
}

func (r *sessionRepository) InsertSession(
	_ context.Context, session *domain.WizardSession,
) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.session != nil {
		return false, nil
	}

	buf, err := domain.EncodeWizardSession(session)
	if err != nil {
		return false, err
	}
	r.session = buf
	return true, nil
}

func (r *sessionRepository) UpdateSession(
	_ context.Context,
	updateFn func(s *domain.WizardSession) (*domain.WizardSession, error),
) (*domain.WizardSession, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	session, err := r.getSession()
	if err != nil {
		return nil, err
	}

	updatedSession, err := updateFn(session)
	if err != nil {
		return nil, err
	}

	buf, err := domain.EncodeWizardSession(updatedSession)
	if err != nil {
		return nil, err
	}
	r.session = buf
	return updatedSession, nil
}

func (r *sessionRepository) DeleteSession(_ context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.session = nil
	return nil
}

func (r *sessionRepository) getSession() (*domain.WizardSession, error) {
	if r.session == nil {
		return nil, domain.ErrWizardSessionNotFound
	}
	return domain.DecodeWizardSession(r.session)
}

func (r *sessionRepository) reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.session = nil
}
