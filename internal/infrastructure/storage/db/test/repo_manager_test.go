package db_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
	dbbadger "github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/inmemory"
	postgresdb "github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/postgres"
	redisdb "github.com/vulpemventures/ocean-multisig/internal/infrastructure/storage/db/redis"
)

const (
	pgDsnEnv     = "MULTISIG_TEST_PG_DSN"
	redisAddrEnv = "MULTISIG_TEST_REDIS_ADDR"
)

var ctx = context.Background()

// newRepoManagers returns a fresh repo manager for every available backend.
// Postgres and Redis ones are included only if the related env var is set.
func newRepoManagers(t *testing.T) map[string]ports.RepoManager {
	t.Helper()

	badgerRepoManager, err := dbbadger.NewRepoManager("", nil)
	require.NoError(t, err)

	repoManagers := map[string]ports.RepoManager{
		"inmemory": inmemory.NewRepoManager(),
		"badger":   badgerRepoManager,
	}

	if dsn := os.Getenv(pgDsnEnv); dsn != "" {
		pgRepoManager, err := postgresdb.NewRepoManager(postgresdb.DbConfig{
			DSN:                dsn,
			MigrationSourceURL: "file://../postgres/migration",
		})
		require.NoError(t, err)
		pgRepoManager.Reset()
		repoManagers["postgres"] = pgRepoManager
	}

	if addr := os.Getenv(redisAddrEnv); addr != "" {
		redisRepoManager, err := redisdb.NewRepoManager(redisdb.Config{
			Address:   addr,
			KeyPrefix: "test:",
		})
		require.NoError(t, err)
		redisRepoManager.Reset()
		repoManagers["redis"] = redisRepoManager
	}

	return repoManagers
}
