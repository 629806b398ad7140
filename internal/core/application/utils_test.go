package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
	keystore "github.com/vulpemventures/ocean-multisig/internal/infrastructure/key-store/in-memory"
	"github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/inmemory"
	"github.com/vulpemventures/ocean-multisig/internal/testutil"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

var ctx = context.Background()

type testEnv struct {
	repoManager ports.RepoManager
	keyStore    ports.KeyStore
	signers     []testutil.Signer
	account     *domain.MultisigAccount
}

// newTestEnv returns a repo manager holding a 2-of-3 account whose local
// cosigner is the first signer, with its key already unlocked.
func newTestEnv(t *testing.T, addressType multisig.AddressType) *testEnv {
	t.Helper()

	repoManager := inmemory.NewRepoManager()
	signers := testutil.NewSigners(t, 3)
	account := testutil.NewAccount(t, 0, signers, 2, addressType, 0)

	added, err := repoManager.AccountRepository().AddAccount(ctx, account)
	require.NoError(t, err)
	require.True(t, added)

	keyStore := keystore.NewInMemoryKeyStore()
	keyStore.Set(signers[0].MasterKey)

	return &testEnv{repoManager, keyStore, signers, account}
}

// addExpiredPendingTx stores a pending tx for packet that expired an hour ago
// and hasn't been swept yet.
func addExpiredPendingTx(
	t *testing.T, env *testEnv, packet *psbt.Packet,
) *domain.PendingMultisigTransaction {
	t.Helper()

	pendingTx, err := domain.NewPendingMultisigTransaction(
		multisig.UnsignedTxID(packet), env.account.Index,
		testutil.Encode(t, packet), env.account.RequiredSignatures,
		env.account.Roster(), domain.PendingTxMetadata{},
		time.Now().Add(-2*time.Hour), time.Hour,
	)
	require.NoError(t, err)

	added, err := env.repoManager.PendingTxRepository().AddPendingTx(ctx, pendingTx)
	require.NoError(t, err)
	require.True(t, added)
	return pendingTx
}
