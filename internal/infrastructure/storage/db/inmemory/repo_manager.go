package inmemory

import (
	"sync"
	"time"

	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

type repoManager struct {
	accountRepository   *accountRepository
	pendingTxRepository *pendingTxRepository
	sessionRepository   *sessionRepository

	accountEventHandlers   *handlerMap
	pendingTxEventHandlers *handlerMap
}

func NewRepoManager() ports.RepoManager {
	rm := &repoManager{
		accountRepository:      newAccountRepository(),
		pendingTxRepository:    newPendingTxRepository(),
		sessionRepository:      newSessionRepository(),
		accountEventHandlers:   newHandlerMap(),
		pendingTxEventHandlers: newHandlerMap(),
	}

	go rm.listenToAccountEvents()
	go rm.listenToPendingTxEvents()

	return rm
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
}

func (rm *repoManager) listenToAccountEvents() {
	for event := range rm.accountRepository.chEvents {
		time.Sleep(time.Millisecond)

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
		time.Sleep(time.Millisecond)

		if handlers, ok := rm.pendingTxEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.PendingTxEventHandler)(event)
			}
		}
	}
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
