package redisdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

const (
	keyPrefixAccount   = "multisig:account:"
	keyPrefixPendingTx = "multisig:pendingtx:"
	keySession         = "multisig:session"

	// Redis doesn't support prefix iteration natively.
	keySetAccounts   = "multisig:accounts:index"
	keySetPendingTxs = "multisig:pendingtxs:index"

	// maxTxRetries is the number of times an optimistic transaction is retried
	// when the watched key changes before commit.
	maxTxRetries = 10
)

var errTxFailed = errors.New("too many concurrent updates, retry later")

// Config holds the configuration for connecting to Redis.
type Config struct {
	// Address is the Redis server address (host:port).
	Address  string
	Password string
	DB       int
	// KeyPrefix is an optional custom prefix prepended to all keys.
	KeyPrefix string
}

type repoManager struct {
	client *redis.Client

	accountRepository   *accountRepository
	pendingTxRepository *pendingTxRepository
	sessionRepository   *sessionRepository

	accountEventHandlers   *handlerMap
	pendingTxEventHandlers *handlerMap
}

// NewRepoManager returns a ports.RepoManager backed by Redis. Records are
// stored JSON encoded and concurrent updates rely on WATCH/MULTI.
func NewRepoManager(cfg Config) (ports.RepoManager, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// nolint
		client.Close()
		return nil, fmt.Errorf(
			"failed to connect to redis at %s: %w", cfg.Address, err,
		)
	}

	keys := keyspace(cfg.KeyPrefix)
	rm := &repoManager{
		client:                 client,
		accountRepository:      newAccountRepository(client, keys),
		pendingTxRepository:    newPendingTxRepository(client, keys),
		sessionRepository:      newSessionRepository(client, keys),
		accountEventHandlers:   newHandlerMap(),
		pendingTxEventHandlers: newHandlerMap(),
	}

	go rm.listenToAccountEvents()
	go rm.listenToPendingTxEvents()

	return rm, nil
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
	ctx := context.Background()
	if err := rm.accountRepository.reset(ctx); err != nil {
		log.WithError(err).Warn("repo manager: failed to reset accounts")
	}
	if err := rm.pendingTxRepository.reset(ctx); err != nil {
		log.WithError(err).Warn("repo manager: failed to reset pending txs")
	}
	if err := rm.sessionRepository.DeleteSession(ctx); err != nil {
		log.WithError(err).Warn("repo manager: failed to reset session")
	}
}

func (rm *repoManager) Close() {
	rm.accountRepository.close()
	rm.pendingTxRepository.close()
	// nolint
	rm.client.Close()
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type keyspace string

func (k keyspace) key(key string) string {
	return string(k) + key
}

// watchAndUpdate runs fn in an optimistic transaction watching key, and
// retries it if key is modified before commit.
func watchAndUpdate(
	ctx context.Context, client *redis.Client, key string,
	fn func(tx *redis.Tx) error,
) error {
	for i := 0; i < maxTxRetries; i++ {
		err := client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxFailed
}

func getJSON(
	ctx context.Context, c getter, key string, v interface{},
) (bool, error) {
	buf, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
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
