package dbbadger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

var sessionKey = []byte("wizard-session")

// sessionRepository stores the JSON encoded session as a raw badger value
// under a fixed key. Inserts and updates run in a single badger txn, retried
// if a concurrent writer commits first.
type sessionRepository struct {
	store *badgerhold.Store

	log func(format string, a ...interface{})
}

func NewWizardSessionRepository(
	store *badgerhold.Store,
) domain.WizardSessionRepository {
	return newSessionRepository(store)
}

func newSessionRepository(store *badgerhold.Store) *sessionRepository {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("session repository: %s", format)
		log.Debugf(format, a...)
	}
	return &sessionRepository{store, logFn}
}

func (r *sessionRepository) GetSession(
	_ context.Context,
) (*domain.WizardSession, error) {
	var session *domain.WizardSession
	if err := r.store.Badger().View(func(tx *badger.Txn) error {
		var err error
		session, err = getSession(tx)
		return err
	}); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *sessionRepository) InsertSession(
	_ context.Context, session *domain.WizardSession,
) (bool, error) {
	buf, err := domain.EncodeWizardSession(session)
	if err != nil {
		return false, err
	}

	inserted := false
	if err := update(r.store, func(tx *badger.Txn) error {
		inserted = false
		if _, err := tx.Get(sessionKey); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(sessionKey, buf); err != nil {
			return err
		}
		inserted = true
		return nil
	}); err != nil {
		return false, err
	}

	if inserted {
		r.log("inserted session for tab %d", session.TabID)
	}
	return inserted, nil
}

func (r *sessionRepository) UpdateSession(
	_ context.Context,
	updateFn func(s *domain.WizardSession) (*domain.WizardSession, error),
) (*domain.WizardSession, error) {
	var updatedSession *domain.WizardSession
	if err := update(r.store, func(tx *badger.Txn) error {
		session, err := getSession(tx)
		if err != nil {
			return err
		}

		updatedSession, err = updateFn(session)
		if err != nil {
			return err
		}

		buf, err := domain.EncodeWizardSession(updatedSession)
		if err != nil {
			return err
		}
		return tx.Set(sessionKey, buf)
	}); err != nil {
		return nil, err
	}
	return updatedSession, nil
}

func (r *sessionRepository) DeleteSession(_ context.Context) error {
	return update(r.store, func(tx *badger.Txn) error {
		return tx.Delete(sessionKey)
	})
}

func (r *sessionRepository) reset() {
	if err := r.store.Badger().DropAll(); err != nil {
		r.log("failed to reset store: %s", err)
	}
}

func (r *sessionRepository) close() {
	r.store.Close()
}

func getSession(tx *badger.Txn) (*domain.WizardSession, error) {
	item, err := tx.Get(sessionKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrWizardSessionNotFound
		}
		return nil, err
	}
	buf, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return domain.DecodeWizardSession(buf)
}
