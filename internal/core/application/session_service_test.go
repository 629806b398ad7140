package application_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/inmemory"
)

func TestCreateSession(t *testing.T) {
	t.Parallel()

	oracle := newFakeTabOracle(1, 2)
	svc := application.NewSessionService(inmemory.NewRepoManager(), oracle, 0)

	session, err := svc.CreateSession(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, session.TabID)
	require.Equal(t, domain.MinWizardStep, session.Step)
	require.Empty(t, session.State.CosignerXpubs)

	_, err = svc.CreateSession(ctx, 2)
	require.ErrorIs(t, err, application.ErrSessionAlreadyActive)

	_, err = svc.CreateSession(ctx, 1)
	require.ErrorIs(t, err, application.ErrSessionAlreadyActive)

	oracle.close(1)

	session, err = svc.CreateSession(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, session.TabID)

	active, err := svc.GetActiveSession(ctx)
	require.NoError(t, err)
	require.Equal(t, session, active)
}

func TestGetActiveSession(t *testing.T) {
	t.Parallel()

	oracle := newFakeTabOracle(1)
	svc := application.NewSessionService(inmemory.NewRepoManager(), oracle, 0)

	active, err := svc.GetActiveSession(ctx)
	require.NoError(t, err)
	require.Nil(t, active)

	_, err = svc.CreateSession(ctx, 1)
	require.NoError(t, err)

	active, err = svc.GetActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)

	oracle.close(1)

	active, err = svc.GetActiveSession(ctx)
	require.NoError(t, err)
	require.Nil(t, active)

	// The abandoned session has been removed.
	oracle.open(1)
	session, err := svc.GetSession(ctx)
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestUpdateSession(t *testing.T) {
	t.Parallel()

	svc := application.NewSessionService(
		inmemory.NewRepoManager(), newFakeTabOracle(1, 2), 0,
	)

	step := 2
	_, err := svc.UpdateSession(ctx, application.SessionUpdate{
		WizardSessionUpdate: domain.WizardSessionUpdate{Step: &step},
	})
	require.ErrorIs(t, err, application.ErrNoActiveSession)

	session, err := svc.CreateSession(ctx, 1)
	require.NoError(t, err)

	updated, err := svc.UpdateSession(ctx, application.SessionUpdate{
		TabID: 1,
		WizardSessionUpdate: domain.WizardSessionUpdate{
			Step: &step,
			State: map[string]interface{}{
				"selectedConfig": "2-of-3",
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Step)
	require.Equal(t, session.CreatedAt, updated.CreatedAt)
	require.GreaterOrEqual(t, updated.UpdatedAt, session.UpdatedAt)

	updated, err = svc.UpdateSession(ctx, application.SessionUpdate{
		WizardSessionUpdate: domain.WizardSessionUpdate{
			State: map[string]interface{}{"addressType": "p2wsh"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "2-of-3", updated.State.SelectedConfig)
	require.Equal(t, "p2wsh", updated.State.AddressType)

	_, err = svc.UpdateSession(ctx, application.SessionUpdate{
		TabID: 2,
		WizardSessionUpdate: domain.WizardSessionUpdate{
			State: map[string]interface{}{"addressType": "p2sh"},
		},
	})
	require.ErrorIs(t, err, application.ErrSessionNotOwned)

	badStep := 0
	_, err = svc.UpdateSession(ctx, application.SessionUpdate{
		WizardSessionUpdate: domain.WizardSessionUpdate{Step: &badStep},
	})
	require.ErrorIs(t, err, domain.ErrInvalidWizardStep)

	stored, err := svc.GetSession(ctx)
	require.NoError(t, err)
	require.Equal(t, updated, stored)
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	svc := application.NewSessionService(
		inmemory.NewRepoManager(), newFakeTabOracle(1), 0,
	)

	require.NoError(t, svc.DeleteSession(ctx))
	require.NoError(t, svc.DeleteSessionByTabID(ctx, 1))

	_, err := svc.CreateSession(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSessionByTabID(ctx, 2))
	session, err := svc.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)

	require.NoError(t, svc.DeleteSessionByTabID(ctx, 1))
	session, err = svc.GetSession(ctx)
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestCleanupExpiredSessions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		createdAt time.Duration
		updatedAt time.Duration
		removed   bool
	}{
		{"updated 25h ago", 25 * time.Hour, 25 * time.Hour, true},
		{"updated 23h ago", 23 * time.Hour, 23 * time.Hour, false},
		{"created 25h ago updated 2h ago", 25 * time.Hour, 2 * time.Hour, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repoManager := inmemory.NewRepoManager()
			svc := application.NewSessionService(repoManager, newFakeTabOracle(1), 0)

			now := time.Now()
			session, err := domain.NewWizardSession(1, now.Add(-tt.createdAt))
			require.NoError(t, err)
			session.UpdatedAt = now.Add(-tt.updatedAt).UnixMilli()
			_, err = repoManager.WizardSessionRepository().InsertSession(ctx, session)
			require.NoError(t, err)

			removed, err := svc.CleanupExpiredSessions(ctx)
			require.NoError(t, err)
			require.Equal(t, tt.removed, removed)

			stored, err := svc.GetSession(ctx)
			require.NoError(t, err)
			require.Equal(t, !tt.removed, stored != nil)
		})
	}
}

func TestSessionServiceStorage(t *testing.T) {
	t.Parallel()

	t.Run("invalid session is removed", func(t *testing.T) {
		t.Parallel()

		repo := &mockSessionRepository{}
		repo.On("GetSession", mock.Anything).
			Return(nil, domain.ErrInvalidWizardSession)
		repo.On("DeleteSession", mock.Anything).Return(nil)
		rm := &repoManagerWithSessionRepo{inmemory.NewRepoManager(), repo}
		svc := application.NewSessionService(rm, newFakeTabOracle(), 0)

		session, err := svc.GetSession(ctx)
		require.NoError(t, err)
		require.Nil(t, session)
		repo.AssertCalled(t, "DeleteSession", mock.Anything)
	})

	t.Run("storage failure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("disk full")
		repo := &mockSessionRepository{}
		repo.On("GetSession", mock.Anything).Return(nil, boom)
		repo.On("UpdateSession", mock.Anything, mock.Anything).Return(nil, boom)
		rm := &repoManagerWithSessionRepo{inmemory.NewRepoManager(), repo}
		svc := application.NewSessionService(rm, newFakeTabOracle(), 0)

		_, err := svc.CreateSession(ctx, 1)
		require.ErrorIs(t, err, application.ErrStorage)
		require.ErrorIs(t, err, boom)
		require.True(t, strings.HasPrefix(err.Error(), "session storage error:"))
		repo.AssertNotCalled(t, "InsertSession", mock.Anything, mock.Anything)

		_, err = svc.UpdateSession(ctx, application.SessionUpdate{})
		require.ErrorIs(t, err, application.ErrStorage)

		session, err := svc.GetSession(ctx)
		require.NoError(t, err)
		require.Nil(t, session)
	})

	t.Run("failed insert leaves no session", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("disk full")
		repo := &mockSessionRepository{}
		repo.On("GetSession", mock.Anything).
			Return(nil, domain.ErrWizardSessionNotFound)
		repo.On("InsertSession", mock.Anything, mock.Anything).Return(false, boom)
		rm := &repoManagerWithSessionRepo{inmemory.NewRepoManager(), repo}
		svc := application.NewSessionService(rm, newFakeTabOracle(), 0)

		session, err := svc.CreateSession(ctx, 1)
		require.ErrorIs(t, err, application.ErrStorage)
		require.Nil(t, session)
	})

	t.Run("lost insert race", func(t *testing.T) {
		t.Parallel()

		repo := &mockSessionRepository{}
		repo.On("GetSession", mock.Anything).
			Return(nil, domain.ErrWizardSessionNotFound)
		repo.On("InsertSession", mock.Anything, mock.Anything).Return(false, nil)
		rm := &repoManagerWithSessionRepo{inmemory.NewRepoManager(), repo}
		svc := application.NewSessionService(rm, newFakeTabOracle(), 0)

		_, err := svc.CreateSession(ctx, 1)
		require.ErrorIs(t, err, application.ErrSessionAlreadyActive)
	})
}
