package application

import (
	"context"

	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
)

// Notification service has the very simple task of making the event channels
// of the used domain.PendingTxRepository and domain.AccountRepository
// accessible by external clients so that they can get real-time updates on the
// status of the pending transactions.
type NotificationService struct {
	repoManager ports.RepoManager
}

func NewNotificationService(
	repoManager ports.RepoManager,
) *NotificationService {
	return &NotificationService{repoManager}
}

func (ns *NotificationService) GetPendingTxChannel(
	ctx context.Context,
) (chan domain.PendingTxEvent, error) {
	return ns.repoManager.PendingTxRepository().GetEventChannel(), nil
}

func (ns *NotificationService) GetAccountChannel(
	ctx context.Context,
) (chan domain.AccountEvent, error) {
	return ns.repoManager.AccountRepository().GetEventChannel(), nil
}
