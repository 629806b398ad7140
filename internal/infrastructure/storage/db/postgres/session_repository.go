package postgresdb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

const (
	// there can be only 1 session in database, key is hardcoded for easier
	// retrival.
	sessionKey = "wizard"

	insertSessionQuery = `INSERT INTO wizard_session (id, data) VALUES ($1, $2)
	ON CONFLICT (id) DO NOTHING`
	selectSessionQuery = "SELECT data FROM wizard_session WHERE id = $1"
	updateSessionQuery = "UPDATE wizard_session SET data = $2 WHERE id = $1"
	deleteSessionQuery = "DELETE FROM wizard_session WHERE id = $1"
)

type sessionRepositoryPg struct {
	pgxPool *pgxpool.Pool
}

func NewWizardSessionRepositoryPgImpl(
	pgxPool *pgxpool.Pool,
) domain.WizardSessionRepository {
	return newSessionRepositoryPg(pgxPool)
}

func newSessionRepositoryPg(pgxPool *pgxpool.Pool) *sessionRepositoryPg {
	return &sessionRepositoryPg{pgxPool}
}

func (s *sessionRepositoryPg) GetSession(
	ctx context.Context,
) (*domain.WizardSession, error) {
	return getSession(ctx, s.pgxPool, false)
}

func (s *sessionRepositoryPg) InsertSession(
	ctx context.Context, session *domain.WizardSession,
) (bool, error) {
	buf, err := domain.EncodeWizardSession(session)
	if err != nil {
		return false, err
	}

	tag, err := s.pgxPool.Exec(ctx, insertSessionQuery, sessionKey, buf)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *sessionRepositoryPg) UpdateSession(
	ctx context.Context,
	updateFn func(s *domain.WizardSession) (*domain.WizardSession, error),
) (*domain.WizardSession, error) {
	var updatedSession *domain.WizardSession
	if err := withTx(ctx, s.pgxPool, func(tx pgx.Tx) error {
		session, err := getSession(ctx, tx, true)
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
		_, err = tx.Exec(ctx, updateSessionQuery, sessionKey, buf)
		return err
	}); err != nil {
		return nil, err
	}
	return updatedSession, nil
}

func (s *sessionRepositoryPg) DeleteSession(ctx context.Context) error {
	_, err := s.pgxPool.Exec(ctx, deleteSessionQuery, sessionKey)
	return err
}

func getSession(
	ctx context.Context, q querier, forUpdate bool,
) (*domain.WizardSession, error) {
	query := selectSessionQuery
	if forUpdate {
		query += " FOR UPDATE"
	}

	var buf []byte
	if err := q.QueryRow(ctx, query, sessionKey).Scan(&buf); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWizardSessionNotFound
		}
		return nil, err
	}
	return domain.DecodeWizardSession(buf)
}
