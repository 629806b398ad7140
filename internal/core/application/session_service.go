package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

// SessionUpdate is a partial change to the wizard session. If TabID is not
// zero, the session must be owned by that tab.
type SessionUpdate struct {
	TabID int
	domain.WizardSessionUpdate
}

// SessionService makes sure that at most one account setup wizard is in
// progress at any time:
//   - A session can be created only if no other exists, or if the owning tab of the existing one has been closed.
//   - Reading a structurally invalid session deletes it.
//   - Sessions not updated for longer than the configured TTL are removed by CleanupExpiredSessions.
//
// Creation relies on the repository's atomic InsertSession, so two tabs
// racing to create a session can't both succeed.
type SessionService struct {
	repoManager ports.RepoManager
	tabOracle   ports.TabLivenessOracle
	sessionTTL  time.Duration

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewSessionService(
	repoManager ports.RepoManager, tabOracle ports.TabLivenessOracle,
	sessionTTL time.Duration,
) *SessionService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("session service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("session service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	if sessionTTL <= 0 {
		sessionTTL = domain.DefaultSessionTTL
	}
	return &SessionService{repoManager, tabOracle, sessionTTL, logFn, warnFn}
}

// CreateSession starts a new wizard session owned by the given tab.
func (ss *SessionService) CreateSession(
	ctx context.Context, tabID int,
) (*domain.WizardSession, error) {
	repo := ss.repoManager.WizardSessionRepository()

	session, err := repo.GetSession(ctx)
	switch {
	case err == nil:
		if ss.isAlive(ctx, session) {
			return nil, ErrSessionAlreadyActive
		}
		if err := repo.DeleteSession(ctx); err != nil {
			return nil, &StorageError{err}
		}
		ss.log("removed stale session of tab %d", session.TabID)
	case errors.Is(err, domain.ErrInvalidWizardSession):
		if err := repo.DeleteSession(ctx); err != nil {
			return nil, &StorageError{err}
		}
		ss.log("removed invalid session")
	case errors.Is(err, domain.ErrWizardSessionNotFound):
	default:
		return nil, &StorageError{err}
	}

	newSession, err := domain.NewWizardSession(tabID, time.Now())
	if err != nil {
		return nil, err
	}
	inserted, err := repo.InsertSession(ctx, newSession)
	if err != nil {
		return nil, &StorageError{err}
	}
	if !inserted {
		return nil, ErrSessionAlreadyActive
	}

	ss.log("created session for tab %d", tabID)
	return newSession, nil
}

// GetSession returns the current session, or nil if there's none. Invalid
// sessions are deleted and reported as missing, like storage failures.
func (ss *SessionService) GetSession(
	ctx context.Context,
) (*domain.WizardSession, error) {
	repo := ss.repoManager.WizardSessionRepository()

	session, err := repo.GetSession(ctx)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWizardSessionNotFound):
		case errors.Is(err, domain.ErrInvalidWizardSession):
			ss.warn(err, "removing invalid session")
			if err := repo.DeleteSession(ctx); err != nil {
				ss.warn(err, "failed to remove invalid session")
			}
		default:
			ss.warn(&StorageError{err}, "failed to get session")
		}
		return nil, nil
	}
	return session, nil
}

// UpdateSession deep-merges the given update into the current session.
func (ss *SessionService) UpdateSession(
	ctx context.Context, update SessionUpdate,
) (*domain.WizardSession, error) {
	repo := ss.repoManager.WizardSessionRepository()

	var applyErr error
	session, err := repo.UpdateSession(
		ctx, func(s *domain.WizardSession) (*domain.WizardSession, error) {
			if update.TabID > 0 && s.TabID != update.TabID {
				applyErr = ErrSessionNotOwned
				return nil, applyErr
			}
			if applyErr = s.Apply(update.WizardSessionUpdate, time.Now()); applyErr != nil {
				return nil, applyErr
			}
			return s, nil
		},
	)
	if err != nil {
		switch {
		case applyErr != nil:
			return nil, applyErr
		case errors.Is(err, domain.ErrWizardSessionNotFound):
			return nil, ErrNoActiveSession
		case errors.Is(err, domain.ErrInvalidWizardSession):
			ss.warn(err, "removing invalid session")
			if err := repo.DeleteSession(ctx); err != nil {
				return nil, &StorageError{err}
			}
			return nil, ErrNoActiveSession
		default:
			return nil, &StorageError{err}
		}
	}
	return session, nil
}

// DeleteSession removes the current session, if any.
func (ss *SessionService) DeleteSession(ctx context.Context) error {
	if err := ss.repoManager.WizardSessionRepository().DeleteSession(
		ctx,
	); err != nil {
		return &StorageError{err}
	}
	return nil
}

// DeleteSessionByTabID removes the current session only if owned by the
// given tab.
func (ss *SessionService) DeleteSessionByTabID(
	ctx context.Context, tabID int,
) error {
	session, err := ss.GetSession(ctx)
	if err != nil {
		return err
	}
	if session == nil || session.TabID != tabID {
		return nil
	}
	if err := ss.DeleteSession(ctx); err != nil {
		return err
	}
	ss.log("removed session of closed tab %d", tabID)
	return nil
}

// GetActiveSession returns the current session only if its owning tab is
// still open. Sessions of closed tabs are deleted.
func (ss *SessionService) GetActiveSession(
	ctx context.Context,
) (*domain.WizardSession, error) {
	session, err := ss.GetSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	if ss.isAlive(ctx, session) {
		return session, nil
	}

	if err := ss.DeleteSession(ctx); err != nil {
		return nil, err
	}
	ss.log("removed abandoned session of tab %d", session.TabID)
	return nil, nil
}

// CleanupExpiredSessions removes the current session if it has not been
// updated for longer than the configured TTL, and returns whether it did.
func (ss *SessionService) CleanupExpiredSessions(
	ctx context.Context,
) (bool, error) {
	session, err := ss.GetSession(ctx)
	if err != nil || session == nil {
		return false, err
	}
	if !session.IsExpired(time.Now(), ss.sessionTTL) {
		return false, nil
	}

	if err := ss.DeleteSession(ctx); err != nil {
		return false, err
	}
	ss.log("removed expired session of tab %d", session.TabID)
	return true, nil
}

// isAlive returns whether the owning tab of the session is still open and
// the session is not expired. Failures of the liveness oracle count as alive.
func (ss *SessionService) isAlive(
	ctx context.Context, session *domain.WizardSession,
) bool {
	if session.IsExpired(time.Now(), ss.sessionTTL) {
		return false
	}
	alive, err := ss.tabOracle.IsTabAlive(ctx, session.TabID)
	if err != nil {
		ss.warn(err, "failed to check liveness of tab %d", session.TabID)
		return true
	}
	return alive
}
