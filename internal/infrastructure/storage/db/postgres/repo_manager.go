package postgresdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"

	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const (
	postgresDriver             = "pgx"
	insecureDataSourceTemplate = "postgresql://%s:%s@%s:%d/%s?sslmode=disable"
	//uniqueViolation is a postgres error code for unique constraint violation
	uniqueViolation = "23505"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoManager struct {
	pgxPool *pgxpool.Pool

	accountRepository   *accountRepositoryPg
	pendingTxRepository *pendingTxRepositoryPg
	sessionRepository   *sessionRepositoryPg

	accountEventHandlers   *handlerMap
	pendingTxEventHandlers *handlerMap
}

func NewRepoManager(dbConfig DbConfig) (ports.RepoManager, error) {
	dataSource := dbConfig.dataSource()

	pgxPool, err := connect(dataSource)
	if err != nil {
		return nil, err
	}

	if err = migrateDb(dataSource, dbConfig.MigrationSourceURL); err != nil {
		pgxPool.Close()
		return nil, err
	}

	rm := &repoManager{
		pgxPool:                pgxPool,
		accountRepository:      newAccountRepositoryPg(pgxPool),
		pendingTxRepository:    newPendingTxRepositoryPg(pgxPool),
		sessionRepository:      newSessionRepositoryPg(pgxPool),
		accountEventHandlers:   newHandlerMap(),
		pendingTxEventHandlers: newHandlerMap(),
	}

	go rm.listenToAccountEvents()
	go rm.listenToPendingTxEvents()

	return rm, nil
}

type DbConfig struct {
	// DSN, if set, takes precedence over the single connection params.
	DSN                string
	DbUser             string
	DbPassword         string
	DbHost             string
	DbPort             int
	DbName             string
	MigrationSourceURL string
}

func (c DbConfig) dataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	return insecureDataSourceStr(c)
}

func (rm *repoManager) AccountRepository() domain.AccountRepository {
	return rm.accountRepository
}

func (rm *repoManager) PendingTxRepository() domain.PendingTxRepository {
	return rm.pendingTxRepository
}

func (rm *repoManager) WizardSessionRepository() domain.WizardSessionRepository {
	return rm.sessionRepository
}

func (rm *repoManager) RegisterHandlerForAccountEvent(
	eventType domain.AccountEventType, handler ports.AccountEventHandler,
) {
	rm.accountEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) RegisterHandlerForPendingTxEvent(
	eventType domain.PendingTxEventType, handler ports.PendingTxEventHandler,
) {
	rm.pendingTxEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) listenToAccountEvents() {
	for event := range rm.accountRepository.chEvents {
		if handlers, ok := rm.accountEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.AccountEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToPendingTxEvents() {
	for event := range rm.pendingTxRepository.chEvents {
		if handlers, ok := rm.pendingTxEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.PendingTxEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) Reset() {
	if _, err := rm.pgxPool.Exec(
		context.Background(),
		"TRUNCATE wizard_session, pending_tx_signature, pending_tx, cosigner, multisig_account",
	); err != nil {
		log.WithError(err).Warn("repo manager: failed to reset db")
	}
}

func (rm *repoManager) Close() {
	rm.accountRepository.close()
	rm.pendingTxRepository.close()

	rm.pgxPool.Close()
}

// handlerMap is a util type to prevent race conditions when registering
// or retrieving handlers for events.
type handlerMap struct {
	handlersByEventType map[int][]interface{}
	lock                *sync.RWMutex
}

func newHandlerMap() *handlerMap {
	return &handlerMap{
		handlersByEventType: make(map[int][]interface{}),
		lock:                &sync.RWMutex{},
	}
}

func (m *handlerMap) set(key int, val interface{}) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handlersByEventType[key] = append(m.handlersByEventType[key], val)
}

func (m *handlerMap) get(key int) ([]interface{}, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	val, ok := m.handlersByEventType[key]
	return val, ok
}

func connect(dataSource string) (*pgxpool.Pool, error) {
	return pgxpool.Connect(context.Background(), dataSource)
}

func migrateDb(dataSource, migrationSourceUrl string) error {
	pg := postgres.Postgres{}

	d, err := pg.Open(dataSource)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationSourceUrl,
		postgresDriver,
		d,
	)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}

// insecureDataSourceStr converts database configuration params to connection string
func insecureDataSourceStr(dbConfig DbConfig) string {
	return fmt.Sprintf(
		insecureDataSourceTemplate,
		dbConfig.DbUser,
		dbConfig.DbPassword,
		dbConfig.DbHost,
		dbConfig.DbPort,
		dbConfig.DbName,
	)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pgconn.PgError)
	return ok && pqErr != nil && pqErr.Code == uniqueViolation
}

// withTx runs fn in a db transaction that's committed only if fn succeeds.
func withTx(
	ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error,
) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	// nolint
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
