package application_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

// ports.Broadcaster
type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	args := m.Called(ctx, txHex)
	return args.String(0), args.Error(1)
}

func (m *mockBroadcaster) Close() {}

// ports.TabLivenessOracle
type fakeTabOracle struct {
	tabs map[int]bool
	lock *sync.RWMutex
}

func newFakeTabOracle(openTabs ...int) *fakeTabOracle {
	tabs := make(map[int]bool)
	for _, tab := range openTabs {
		tabs[tab] = true
	}
	return &fakeTabOracle{tabs, &sync.RWMutex{}}
}

func (o *fakeTabOracle) IsTabAlive(_ context.Context, tabID int) (bool, error) {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return o.tabs[tabID], nil
}

func (o *fakeTabOracle) open(tabID int) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.tabs[tabID] = true
}

func (o *fakeTabOracle) close(tabID int) {
	o.lock.Lock()
	defer o.lock.Unlock()
	delete(o.tabs, tabID)
}

// domain.WizardSessionRepository
type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) GetSession(
	ctx context.Context,
) (*domain.WizardSession, error) {
	args := m.Called(ctx)
	var res *domain.WizardSession
	if a := args.Get(0); a != nil {
		res = a.(*domain.WizardSession)
	}
	return res, args.Error(1)
}

func (m *mockSessionRepository) InsertSession(
	ctx context.Context, session *domain.WizardSession,
) (bool, error) {
	args := m.Called(ctx, session)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepository) UpdateSession(
	ctx context.Context,
	updateFn func(s *domain.WizardSession) (*domain.WizardSession, error),
) (*domain.WizardSession, error) {
	args := m.Called(ctx, updateFn)
	var res *domain.WizardSession
	if a := args.Get(0); a != nil {
		res = a.(*domain.WizardSession)
	}
	return res, args.Error(1)
}

func (m *mockSessionRepository) DeleteSession(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// repoManagerWithSessionRepo replaces the session repository of a
// ports.RepoManager.
type repoManagerWithSessionRepo struct {
	ports.RepoManager
	sessionRepo domain.WizardSessionRepository
}

func (rm *repoManagerWithSessionRepo) WizardSessionRepository() domain.WizardSessionRepository {
	return rm.sessionRepo
}
