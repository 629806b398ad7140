package redisdb

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

// sessionRepository stores the JSON encoded session under a single key.
// SETNX makes the insertion atomic across processes.
type sessionRepository struct {
	client *redis.Client
	key    string
}

func newSessionRepository(
	client *redis.Client, keys keyspace,
) *sessionRepository {
	return &sessionRepository{client, keys.key(keySession)}
}

func (r *sessionRepository) GetSession(
	ctx context.Context,
) (*domain.WizardSession, error) {
	return r.getSession(ctx, r.client)
}

func (r *sessionRepository) InsertSession(
	ctx context.Context, session *domain.WizardSession,
) (bool, error) {
	buf, err := domain.EncodeWizardSession(session)
	if err != nil {
		return false, err
	}
	return r.client.SetNX(ctx, r.key, buf, 0).Result()
}

func (r *sessionRepository) UpdateSession(
	ctx context.Context,
	updateFn func(s *domain.WizardSession) (*domain.WizardSession, error),
) (*domain.WizardSession, error) {
	var updatedSession *domain.WizardSession
	if err := watchAndUpdate(ctx, r.client, r.key, func(tx *redis.Tx) error {
		session, err := r.getSession(ctx, tx)
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

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, buf, 0)
			return nil
		})
		return err
	}); err != nil {
		return nil, err
	}
	return updatedSession, nil
}

func (r *sessionRepository) DeleteSession(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *sessionRepository) getSession(
	ctx context.Context, c getter,
) (*domain.WizardSession, error) {
	buf, err := c.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrWizardSessionNotFound
		}
		return nil, err
	}
	return domain.DecodeWizardSession(buf)
}
