package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

func TestNewWizardSession(t *testing.T) {
	t.Parallel()

	session, err := domain.NewWizardSession(1, now)
	require.NoError(t, err)
	require.Equal(t, domain.MinWizardStep, session.Step)
	require.Equal(t, now.UnixMilli(), session.CreatedAt)
	require.Equal(t, session.CreatedAt, session.UpdatedAt)
	require.NotNil(t, session.State.CosignerXpubs)

	buf, err := domain.EncodeWizardSession(session)
	require.NoError(t, err)
	decoded, err := domain.DecodeWizardSession(buf)
	require.NoError(t, err)
	require.Equal(t, session, decoded)

	_, err = domain.NewWizardSession(0, now)
	require.ErrorIs(t, err, domain.ErrWizardMissingTabID)
}

func TestWizardSessionExpiration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		createdAt time.Duration
		updatedAt time.Duration
		expired   bool
	}{
		{"updated 25h ago", 25 * time.Hour, 25 * time.Hour, true},
		{"updated 23h ago", 23 * time.Hour, 23 * time.Hour, false},
		{"created 25h ago updated 2h ago", 25 * time.Hour, 2 * time.Hour, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			session := &domain.WizardSession{
				TabID:     1,
				Step:      2,
				CreatedAt: now.Add(-tt.createdAt).UnixMilli(),
				UpdatedAt: now.Add(-tt.updatedAt).UnixMilli(),
			}
			require.Equal(t, tt.expired, session.IsExpired(now, 0))
		})
	}
}

func TestWizardSessionApply(t *testing.T) {
	t.Parallel()

	session, err := domain.NewWizardSession(1, now)
	require.NoError(t, err)

	step := 3
	later := now.Add(time.Minute)
	err = session.Apply(domain.WizardSessionUpdate{
		Step: &step,
		State: map[string]interface{}{
			"selectedConfig": "2-of-3",
			"addressType":    "p2wsh",
		},
	}, later)
	require.NoError(t, err)

	err = session.Apply(domain.WizardSessionUpdate{
		State: map[string]interface{}{
			"localXpub": "xpub",
			"cosignerXpubs": []interface{}{
				map[string]interface{}{"name": "bob", "xpub": "x", "fingerprint": "f"},
			},
		},
	}, later)
	require.NoError(t, err)

	require.Equal(t, 3, session.Step)
	require.Equal(t, "2-of-3", session.State.SelectedConfig)
	require.Equal(t, "p2wsh", session.State.AddressType)
	require.Equal(t, "xpub", session.State.LocalXpub)
	require.Len(t, session.State.CosignerXpubs, 1)
	require.Equal(t, now.UnixMilli(), session.CreatedAt)
	require.Equal(t, later.UnixMilli(), session.UpdatedAt)

	required, total, err := session.State.Threshold()
	require.NoError(t, err)
	require.Equal(t, 2, required)
	require.Equal(t, 3, total)

	t.Run("invalid", func(t *testing.T) {
		badStep := 8
		err := session.Apply(domain.WizardSessionUpdate{Step: &badStep}, later)
		require.ErrorIs(t, err, domain.ErrInvalidWizardStep)

		err = session.Apply(domain.WizardSessionUpdate{
			State: map[string]interface{}{"cosignerXpubs": "not an array"},
		}, now.Add(time.Hour))
		require.ErrorIs(t, err, domain.ErrInvalidWizardUpdate)
		require.Len(t, session.State.CosignerXpubs, 1)
		require.Equal(t, later.UnixMilli(), session.UpdatedAt)
	})
}

func TestDecodeWizardSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing tab id", `{"step":1,"state":{"cosignerXpubs":[],"addressVerified":false},"createdAt":1,"updatedAt":1}`},
		{"bad tab id type", `{"tabId":"1","step":1,"state":{"cosignerXpubs":[],"addressVerified":false},"createdAt":1,"updatedAt":1}`},
		{"step too low", `{"tabId":1,"step":0,"state":{"cosignerXpubs":[],"addressVerified":false},"createdAt":1,"updatedAt":1}`},
		{"step too high", `{"tabId":1,"step":8,"state":{"cosignerXpubs":[],"addressVerified":false},"createdAt":1,"updatedAt":1}`},
		{"missing state", `{"tabId":1,"step":1,"createdAt":1,"updatedAt":1}`},
		{"missing cosigner xpubs", `{"tabId":1,"step":1,"state":{"addressVerified":false},"createdAt":1,"updatedAt":1}`},
		{"bad cosigner xpubs type", `{"tabId":1,"step":1,"state":{"cosignerXpubs":{},"addressVerified":false},"createdAt":1,"updatedAt":1}`},
		{"bad address verified type", `{"tabId":1,"step":1,"state":{"cosignerXpubs":[],"addressVerified":"yes"},"createdAt":1,"updatedAt":1}`},
		{"missing timestamps", `{"tabId":1,"step":1,"state":{"cosignerXpubs":[],"addressVerified":false}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			session, err := domain.DecodeWizardSession([]byte(tt.raw))
			require.ErrorIs(t, err, domain.ErrInvalidWizardSession)
			require.Nil(t, session)
		})
	}
}

func TestWizardStateThreshold(t *testing.T) {
	t.Parallel()

	for _, config := range []string{"", "2of3", "a-of-3", "3-of-2", "1-of-1", "0-of-2"} {
		_, _, err := domain.WizardState{SelectedConfig: config}.Threshold()
		require.ErrorIs(t, err, domain.ErrInvalidSelectedConfig, config)
	}
}
