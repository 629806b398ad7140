package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	keystore "github.com/vulpemventures/ocean-multisig/internal/infrastructure/key-store/in-memory"
	"github.com/vulpemventures/ocean-multisig/internal/testutil"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

func TestSigningService(t *testing.T) {
	t.Parallel()

	addressTypes := []multisig.AddressType{
		multisig.P2WSH, multisig.P2SHP2WSH, multisig.P2SH,
	}
	for _, addressType := range addressTypes {
		addressType := addressType
		t.Run(string(addressType), func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, addressType)
			svc := application.NewSigningService(env.repoManager, env.keyStore, 0)

			unsigned := testutil.NewPsbt(t, env.signers, 2, addressType, 2)
			unsignedB64 := testutil.Encode(t, unsigned)
			txid := multisig.UnsignedTxID(unsigned)

			pendingTx, err := svc.SignMultisigTransaction(ctx, 0, unsignedB64)
			require.NoError(t, err)
			require.Equal(t, txid, pendingTx.TxID)
			require.Equal(t, 1, pendingTx.CollectedSignatures)
			require.Equal(t, 2, pendingTx.RequiredSignatures)
			require.Equal(t, domain.PendingTxPartiallySigned, pendingTx.Status)
			require.Equal(t, []string{env.signers[0].Name}, pendingTx.SignedBy())
			require.False(t, pendingTx.IsReadyToBroadcast())

			// Signing again with the same key must not change the count.
			pendingTx, err = svc.SignMultisigTransaction(ctx, 0, pendingTx.Psbt)
			require.NoError(t, err)
			require.Equal(t, 1, pendingTx.CollectedSignatures)

			pendingTx, err = svc.SignMultisigTransaction(ctx, 0, unsignedB64)
			require.NoError(t, err)
			require.Equal(t, 1, pendingTx.CollectedSignatures)

			// The second cosigner signs the unsigned psbt on its own device.
			foreign := testutil.Encode(t, testutil.Sign(t, unsigned, env.signers[1]))
			pendingTx, err = svc.ImportPsbt(ctx, "", foreign)
			require.NoError(t, err)
			require.Equal(t, 2, pendingTx.CollectedSignatures)
			require.Equal(t, domain.PendingTxFullySigned, pendingTx.Status)
			require.True(t, pendingTx.IsReadyToBroadcast())
			require.Equal(
				t, []string{env.signers[0].Name, env.signers[1].Name},
				pendingTx.SignedBy(),
			)

			count, err := multisig.CountSignatures(testutil.Decode(t, pendingTx.Psbt))
			require.NoError(t, err)
			require.Equal(t, 2, count)

			_, err = svc.SignMultisigTransaction(ctx, 0, pendingTx.Psbt)
			require.ErrorIs(t, err, application.ErrAlreadyFullySigned)

			stored, err := svc.GetPendingTx(ctx, txid)
			require.NoError(t, err)
			require.Equal(t, pendingTx, stored)

			pendingTxs, err := svc.GetPendingTxs(ctx, nil)
			require.NoError(t, err)
			require.Len(t, pendingTxs, 1)
		})
	}
}

func TestCreatePendingTx(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, multisig.P2WSH)
	svc := application.NewSigningService(env.repoManager, env.keyStore, time.Hour)

	packet := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 1)
	signedB64 := testutil.Encode(t, testutil.Sign(t, packet, env.signers[2]))
	metadata := domain.PendingTxMetadata{
		Amount:    99000,
		Recipient: "bcrt1qtest",
		Fee:       1000,
		Note:      "rent",
	}

	pendingTx, err := svc.CreatePendingTx(ctx, 0, signedB64, metadata)
	require.NoError(t, err)
	require.Equal(t, 1, pendingTx.CollectedSignatures)
	require.Equal(t, metadata, pendingTx.Metadata)
	require.Len(t, pendingTx.SignatureStatus, 3)
	require.True(t, pendingTx.SignatureStatus[env.signers[2].Fingerprint()].Signed)
	require.False(t, pendingTx.SignatureStatus[env.signers[0].Fingerprint()].Signed)
	require.Equal(t, "0.00099000", pendingTx.AmountBTC())
	require.Equal(t, "0.00001000", pendingTx.FeeBTC())
	require.InDelta(
		t, time.Now().Add(time.Hour).Unix(), pendingTx.ExpiresAt, 5,
	)

	// Creating it again returns the stored one.
	again, err := svc.CreatePendingTx(
		ctx, 0, testutil.Encode(t, packet), domain.PendingTxMetadata{},
	)
	require.NoError(t, err)
	require.Equal(t, pendingTx, again)

	_, err = svc.CreatePendingTx(ctx, 1, signedB64, metadata)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = svc.CreatePendingTx(ctx, 0, "notapsbt", metadata)
	require.ErrorIs(t, err, multisig.ErrInvalidPsbt)
}

func TestSigningServiceErrors(t *testing.T) {
	t.Parallel()

	t.Run("foreign psbt", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, multisig.P2WSH)
		svc := application.NewSigningService(env.repoManager, env.keyStore, 0)

		strangers := testutil.NewSigners(t, 4)
		foreignSigners := []testutil.Signer{strangers[0], strangers[1], strangers[3]}
		packet := testutil.NewPsbt(t, foreignSigners, 2, multisig.P2WSH, 1)
		b64 := testutil.Encode(t, packet)

		_, err := svc.SignMultisigTransaction(ctx, 0, b64)
		require.ErrorIs(t, err, application.ErrForeignPsbt)

		_, err = svc.ImportPsbt(ctx, "", b64)
		require.ErrorIs(t, err, application.ErrForeignPsbt)

		_, err = svc.CreatePendingTx(ctx, 0, b64, domain.PendingTxMetadata{})
		require.ErrorIs(t, err, application.ErrForeignPsbt)

		// A psbt with a different threshold is foreign too.
		packet = testutil.NewPsbt(t, env.signers, 3, multisig.P2WSH, 1)
		_, err = svc.SignMultisigTransaction(ctx, 0, testutil.Encode(t, packet))
		require.ErrorIs(t, err, application.ErrForeignPsbt)

		pendingTxs, err := svc.GetPendingTxs(ctx, nil)
		require.NoError(t, err)
		require.Empty(t, pendingTxs)
	})

	t.Run("psbt mismatch", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, multisig.P2WSH)
		svc := application.NewSigningService(env.repoManager, env.keyStore, 0)

		packet := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 2)
		pendingTx, err := svc.SignMultisigTransaction(ctx, 0, testutil.Encode(t, packet))
		require.NoError(t, err)

		other := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 1)
		otherB64 := testutil.Encode(t, testutil.Sign(t, other, env.signers[1]))

		_, err = svc.ImportPsbt(ctx, pendingTx.TxID, otherB64)
		require.ErrorIs(t, err, application.ErrPsbtMismatch)

		stored, err := svc.GetPendingTx(ctx, pendingTx.TxID)
		require.NoError(t, err)
		require.Equal(t, pendingTx.Psbt, stored.Psbt)
		require.Equal(t, 1, stored.CollectedSignatures)

		_, err = svc.ImportPsbt(ctx, "unknown", otherB64)
		require.ErrorIs(t, err, domain.ErrPendingTxNotFound)
	})

	t.Run("conflicting psbt", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, multisig.P2WSH)
		svc := application.NewSigningService(env.repoManager, env.keyStore, 0)

		packet := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 2)
		pendingTx, err := svc.SignMultisigTransaction(ctx, 0, testutil.Encode(t, packet))
		require.NoError(t, err)

		// Same coins, different amount.
		changed, err := multisig.ClonePsbt(packet)
		require.NoError(t, err)
		changed.UnsignedTx.TxOut[0].Value -= 100
		changedB64 := testutil.Encode(t, testutil.Sign(t, changed, env.signers[1]))

		// Spends only one of the coins of the pending tx.
		subset := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 1)
		subsetB64 := testutil.Encode(t, testutil.Sign(t, subset, env.signers[1]))

		for _, b64 := range []string{changedB64, subsetB64} {
			_, err = svc.ImportPsbt(ctx, "", b64)
			require.ErrorIs(t, err, application.ErrPsbtMismatch)

			_, err = svc.SignMultisigTransaction(ctx, 0, b64)
			require.ErrorIs(t, err, application.ErrPsbtMismatch)
		}

		pendingTxs, err := svc.GetPendingTxs(ctx, nil)
		require.NoError(t, err)
		require.Len(t, pendingTxs, 1)
		require.Equal(t, pendingTx.TxID, pendingTxs[0].TxID)
		require.Equal(t, 1, pendingTxs[0].CollectedSignatures)

		// Once the pending tx is deleted the coins can be spent differently.
		require.NoError(t, svc.DeletePendingTx(ctx, pendingTx.TxID))
		replaced, err := svc.ImportPsbt(ctx, "", changedB64)
		require.NoError(t, err)
		require.Equal(t, multisig.UnsignedTxID(changed), replaced.TxID)
		require.Equal(t, 1, replaced.CollectedSignatures)
	})

	t.Run("locked wallet", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, multisig.P2WSH)
		env.keyStore.Unset()
		svc := application.NewSigningService(env.repoManager, env.keyStore, 0)

		packet := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 1)
		_, err := svc.SignMultisigTransaction(ctx, 0, testutil.Encode(t, packet))
		require.ErrorIs(t, err, application.ErrWalletLocked)
	})

	t.Run("wrong local key", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, multisig.P2WSH)
		keyStore := keystore.NewInMemoryKeyStore()
		keyStore.Set(env.signers[1].MasterKey)
		svc := application.NewSigningService(env.repoManager, keyStore, 0)

		packet := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 1)
		_, err := svc.SignMultisigTransaction(ctx, 0, testutil.Encode(t, packet))
		require.ErrorIs(t, err, application.ErrWrongLocalKey)
	})

	t.Run("no local cosigner", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, multisig.P2WSH)
		watchOnly := testutil.NewAccount(t, 1, env.signers, 2, multisig.P2WSH, -1)
		_, err := env.repoManager.AccountRepository().AddAccount(ctx, watchOnly)
		require.NoError(t, err)
		svc := application.NewSigningService(env.repoManager, env.keyStore, 0)

		packet := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 1)
		_, err = svc.SignMultisigTransaction(ctx, 1, testutil.Encode(t, packet))
		require.ErrorIs(t, err, application.ErrMissingLocalKey)
	})
}

func TestPendingTxsLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, multisig.P2WSH)
	svc := application.NewSigningService(env.repoManager, env.keyStore, 0)
	repo := env.repoManager.PendingTxRepository()

	packet := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 1)
	pendingTx, err := svc.SignMultisigTransaction(ctx, 0, testutil.Encode(t, packet))
	require.NoError(t, err)

	expired, err := domain.NewPendingMultisigTransaction(
		"expiredtxid", 0, "psbt", 2, env.account.Roster(),
		domain.PendingTxMetadata{}, time.Now().Add(-2*time.Hour), time.Hour,
	)
	require.NoError(t, err)
	added, err := repo.AddPendingTx(ctx, expired)
	require.NoError(t, err)
	require.True(t, added)

	broadcast, err := domain.NewPendingMultisigTransaction(
		"broadcasttxid", 0, "psbt", 2, env.account.Roster(),
		domain.PendingTxMetadata{}, time.Now().Add(-2*time.Hour), time.Hour,
	)
	require.NoError(t, err)
	require.NoError(t, broadcast.UpdateSignatures("psbt", 2, nil))
	require.NoError(t, broadcast.MarkBroadcast("broadcasttxid"))
	added, err = repo.AddPendingTx(ctx, broadcast)
	require.NoError(t, err)
	require.True(t, added)

	// Expired txs are hidden, but still stored until swept.
	pendingTxs, err := svc.GetPendingTxs(ctx, nil)
	require.NoError(t, err)
	require.Len(t, pendingTxs, 1)
	require.Equal(t, pendingTx.TxID, pendingTxs[0].TxID)

	otherAccount := uint32(1)
	pendingTxs, err = svc.GetPendingTxs(ctx, &otherAccount)
	require.NoError(t, err)
	require.Empty(t, pendingTxs)

	count, err := svc.SweepExpiredPendingTxs(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = repo.GetPendingTx(ctx, expired.TxID)
	require.ErrorIs(t, err, domain.ErrPendingTxNotFound)
	_, err = repo.GetPendingTx(ctx, broadcast.TxID)
	require.ErrorIs(t, err, domain.ErrPendingTxNotFound)

	err = svc.DeletePendingTx(ctx, pendingTx.TxID)
	require.NoError(t, err)
	err = svc.DeletePendingTx(ctx, pendingTx.TxID)
	require.NoError(t, err)

	pendingTxs, err = svc.GetPendingTxs(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, pendingTxs)
}

func TestInvalidLocalSignature(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, multisig.P2WSH)
	svc := application.NewSigningService(env.repoManager, env.keyStore, 0)
	localFp := env.signers[0].Fingerprint()

	packet := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 1)
	corrupted := testutil.Sign(t, packet, env.signers[0])
	require.Len(t, corrupted.Inputs[0].PartialSigs, 1)
	corrupted.Inputs[0].PartialSigs[0].Signature[10] ^= 0xff
	corruptedB64 := testutil.Encode(t, corrupted)

	pendingTx, err := svc.CreatePendingTx(
		ctx, 0, corruptedB64, domain.PendingTxMetadata{},
	)
	require.NoError(t, err)
	require.Equal(t, 0, pendingTx.CollectedSignatures)
	require.False(t, pendingTx.SignatureStatus[localFp].Signed)
	require.Empty(t, testutil.Decode(t, pendingTx.Psbt).Inputs[0].PartialSigs)

	// Signing must not be blocked by the broken signature, even if sent again.
	pendingTx, err = svc.SignMultisigTransaction(ctx, 0, corruptedB64)
	require.NoError(t, err)
	require.Equal(t, 1, pendingTx.CollectedSignatures)
	require.True(t, pendingTx.SignatureStatus[localFp].Signed)

	count, err := multisig.CountSignatures(testutil.Decode(t, pendingTx.Psbt))
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestExpiredPendingTx(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, multisig.P2WSH)
	svc := application.NewSigningService(env.repoManager, env.keyStore, time.Hour)

	packet := testutil.NewPsbt(t, env.signers, 2, multisig.P2WSH, 1)
	unsignedB64 := testutil.Encode(t, packet)
	expired := addExpiredPendingTx(t, env, packet)

	_, err := svc.SignMultisigTransaction(ctx, 0, unsignedB64)
	require.ErrorIs(t, err, application.ErrPendingTxExpired)

	_, err = svc.ImportPsbt(
		ctx, "", testutil.Encode(t, testutil.Sign(t, packet, env.signers[1])),
	)
	require.ErrorIs(t, err, application.ErrPendingTxExpired)

	_, err = svc.ImportPsbt(ctx, expired.TxID, unsignedB64)
	require.ErrorIs(t, err, application.ErrPendingTxExpired)

	stored, err := svc.GetPendingTx(ctx, expired.TxID)
	require.NoError(t, err)
	require.Equal(t, 0, stored.CollectedSignatures)

	// Creating it again replaces the expired one.
	metadata := domain.PendingTxMetadata{Note: "again"}
	pendingTx, err := svc.CreatePendingTx(ctx, 0, unsignedB64, metadata)
	require.NoError(t, err)
	require.Equal(t, expired.TxID, pendingTx.TxID)
	require.Equal(t, metadata, pendingTx.Metadata)
	require.Equal(t, domain.PendingTxCreated, pendingTx.Status)
	require.Greater(t, pendingTx.ExpiresAt, time.Now().Unix())

	pendingTx, err = svc.SignMultisigTransaction(ctx, 0, unsignedB64)
	require.NoError(t, err)
	require.Equal(t, 1, pendingTx.CollectedSignatures)

	pendingTxs, err := svc.GetPendingTxs(ctx, nil)
	require.NoError(t, err)
	require.Len(t, pendingTxs, 1)
}
