package tabregistry

import (
	"context"
	"sync"
	"time"

	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

const DefaultHeartbeatTimeout = 30 * time.Second

// Registry keeps track of the tabs connected to the background worker.
// A tab is alive as long as it has at least one open connection that
// sent a heartbeat within the timeout.
type Registry interface {
	ports.TabLivenessOracle
	// Register records a new connection for the tab.
	Register(tabID int)
	// Unregister removes one connection of the tab and returns whether it
	// was the last one.
	Unregister(tabID int) bool
	// Heartbeat refreshes the liveness of the tab.
	Heartbeat(tabID int)
	// Tabs returns the ids of the tabs currently alive.
	Tabs() []int
}

type tab struct {
	connections int
	lastSeen    time.Time
}

type registry struct {
	tabs    map[int]*tab
	timeout time.Duration
	now     func() time.Time
	lock    *sync.RWMutex
}

func NewRegistry(heartbeatTimeout time.Duration) Registry {
	return newRegistry(heartbeatTimeout, time.Now)
}

func newRegistry(heartbeatTimeout time.Duration, now func() time.Time) *registry {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	return &registry{
		tabs:    make(map[int]*tab),
		timeout: heartbeatTimeout,
		now:     now,
		lock:    &sync.RWMutex{},
	}
}

func (r *registry) Register(tabID int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.tabs[tabID]
	if !ok {
		t = &tab{}
		r.tabs[tabID] = t
	}
	t.connections++
	t.lastSeen = r.now()
}

func (r *registry) Unregister(tabID int) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.tabs[tabID]
	if !ok {
		return false
	}
	t.connections--
	if t.connections > 0 {
		return false
	}
	delete(r.tabs, tabID)
	return true
}

func (r *registry) Heartbeat(tabID int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if t, ok := r.tabs[tabID]; ok {
		t.lastSeen = r.now()
	}
}

func (r *registry) IsTabAlive(_ context.Context, tabID int) (bool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	t, ok := r.tabs[tabID]
	if !ok {
		return false, nil
	}
	return r.isAlive(t), nil
}

func (r *registry) Tabs() []int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	tabs := make([]int, 0, len(r.tabs))
	for id, t := range r.tabs {
		if r.isAlive(t) {
			tabs = append(tabs, id)
		}
	}
	return tabs
}

func (r *registry) isAlive(t *tab) bool {
	return t.connections > 0 && r.now().Sub(t.lastSeen) <= r.timeout
}
