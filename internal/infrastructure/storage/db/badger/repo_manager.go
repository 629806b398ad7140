package dbbadger

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

// repoManager holds all the badgerhold stores and domain repositories
// implementations in a single data structure.
type repoManager struct {
	accountRepository   *accountRepository
	pendingTxRepository *pendingTxRepository
	sessionRepository   *sessionRepository

	accountEventHandlers   *handlerMap
	pendingTxEventHandlers *handlerMap
}

// NewRepoManager is the factory for creating a new badger implementation
// of the ports.RepoManager interface.
// It takes care of creating the db files on disk (or in-memory if no baseDbDir
// is provided - to be used only for testing purposes), and opening and closing
// the connection to them.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	var accountDir, pendingTxDir, sessionDir string
	if len(baseDbDir) > 0 {
		accountDir = filepath.Join(baseDbDir, "accounts")
		pendingTxDir = filepath.Join(baseDbDir, "pending-txs")
		sessionDir = filepath.Join(baseDbDir, "session")
	}

	accountDb, err := createDb(accountDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening account db: %w", err)
	}
	pendingTxDb, err := createDb(pendingTxDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening pending tx db: %w", err)
	}
	sessionDb, err := createDb(sessionDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}

	rm := &repoManager{
		accountRepository:      newAccountRepository(accountDb),
		pendingTxRepository:    newPendingTxRepository(pendingTxDb),
		sessionRepository:      newSessionRepository(sessionDb),
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

func (rm *repoManager) Reset() {
	rm.accountRepository.reset()
	rm.pendingTxRepository.reset()
	rm.sessionRepository.reset()
}

func (rm *repoManager) Close() {
	rm.accountRepository.close()
	rm.pendingTxRepository.close()
	rm.sessionRepository.close()
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

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
					log.Warnf("garbage collector: %s", err)
				}
			}
		}()
	}

	return db, nil
}

// maxTxRetries is the number of times a read-modify-write txn is retried when
// it conflicts with a concurrent one.
const maxTxRetries = 10

// update runs fn in a read-write txn and retries it on conflict.
func update(store *badgerhold.Store, fn func(tx *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
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
