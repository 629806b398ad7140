package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

var (
	roster = map[string]string{
		"aaaaaaaa": "alice",
		"bbbbbbbb": "bob",
		"cccccccc": "carol",
	}
	now = time.Unix(1700000000, 0)
)

func newPendingTx(t *testing.T) *domain.PendingMultisigTransaction {
	pendingTx, err := domain.NewPendingMultisigTransaction(
		"txid", 0, "psbt", 2, roster, domain.PendingTxMetadata{Amount: 1000},
		now, 0,
	)
	require.NoError(t, err)
	return pendingTx
}

func TestNewPendingMultisigTransaction(t *testing.T) {
	t.Parallel()

	pendingTx := newPendingTx(t)
	require.Equal(t, domain.PendingTxCreated, pendingTx.Status)
	require.Len(t, pendingTx.SignatureStatus, len(roster))
	require.Empty(t, pendingTx.Signers())
	require.Equal(t, now.Add(domain.DefaultPendingTxTTL).Unix(), pendingTx.ExpiresAt)
	require.False(t, pendingTx.IsReadyToBroadcast())

	tests := []struct {
		name        string
		txid        string
		psbt        string
		required    int
		expectedErr error
	}{
		{"missing txid", "", "psbt", 2, domain.ErrPendingTxMissingTxID},
		{"missing psbt", "txid", "", 2, domain.ErrPendingTxMissingPsbt},
		{"zero threshold", "txid", "psbt", 0, domain.ErrPendingTxInvalidThreshold},
		{"threshold too high", "txid", "psbt", 4, domain.ErrPendingTxInvalidThreshold},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := domain.NewPendingMultisigTransaction(
				tt.txid, 0, tt.psbt, tt.required, roster,
				domain.PendingTxMetadata{}, now, time.Hour,
			)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestPendingTxUpdateSignatures(t *testing.T) {
	t.Parallel()

	pendingTx := newPendingTx(t)

	err := pendingTx.UpdateSignatures("psbt1", 1, map[string]bool{"aaaaaaaa": true})
	require.NoError(t, err)
	require.Equal(t, domain.PendingTxPartiallySigned, pendingTx.Status)
	require.Equal(t, []string{"alice"}, pendingTx.Signers())
	require.False(t, pendingTx.IsReadyToBroadcast())

	err = pendingTx.UpdateSignatures("psbt0", 0, nil)
	require.ErrorIs(t, err, domain.ErrPendingTxSignaturesDropped)
	require.Equal(t, "psbt1", pendingTx.Psbt)
	require.Equal(t, 1, pendingTx.CollectedSignatures)

	err = pendingTx.UpdateSignatures(
		"psbt2", 2, map[string]bool{"bbbbbbbb": true, "dddddddd": true},
	)
	require.NoError(t, err)
	require.Equal(t, domain.PendingTxFullySigned, pendingTx.Status)
	require.True(t, pendingTx.SignatureStatus["aaaaaaaa"].Signed)
	require.True(t, pendingTx.SignatureStatus["bbbbbbbb"].Signed)
	require.False(t, pendingTx.SignatureStatus["cccccccc"].Signed)
	require.NotContains(t, pendingTx.SignatureStatus, "dddddddd")
	require.True(t, pendingTx.IsReadyToBroadcast())

	err = pendingTx.MarkBroadcast("txid")
	require.NoError(t, err)
	require.Equal(t, domain.PendingTxBroadcast, pendingTx.Status)
	require.Equal(t, "txid", pendingTx.BroadcastTxID)

	err = pendingTx.UpdateSignatures("psbt3", 3, nil)
	require.ErrorIs(t, err, domain.ErrPendingTxFinalized)
	err = pendingTx.MarkBroadcast("txid")
	require.ErrorIs(t, err, domain.ErrPendingTxFinalized)

	pendingTx.Delete()
	require.Equal(t, domain.PendingTxBroadcast, pendingTx.Status)
}

func TestPendingTxMarkBroadcastNotReady(t *testing.T) {
	t.Parallel()

	pendingTx := newPendingTx(t)
	err := pendingTx.MarkBroadcast("txid")
	require.ErrorIs(t, err, domain.ErrPendingTxNotReady)
	require.Equal(t, domain.PendingTxCreated, pendingTx.Status)
}

func TestPendingTxExpire(t *testing.T) {
	t.Parallel()

	pendingTx := newPendingTx(t)
	expiration := time.Unix(pendingTx.ExpiresAt, 0)

	require.False(t, pendingTx.IsExpired(expiration))
	require.False(t, pendingTx.Expire(expiration))
	require.Equal(t, domain.PendingTxCreated, pendingTx.Status)

	later := expiration.Add(time.Second)
	require.True(t, pendingTx.IsExpired(later))
	require.True(t, pendingTx.Expire(later))
	require.Equal(t, domain.PendingTxDeleted, pendingTx.Status)
	require.False(t, pendingTx.Expire(later))
}
