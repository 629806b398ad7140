package ws_handler

import (
	"context"
	"fmt"

	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

var ErrConnectionClosed = fmt.Errorf("connection closed by server")

type NotificationHandler struct {
	appSvc  *application.NotificationService
	chClose chan struct{}
}

func NewNotificationHandler(
	appSvc *application.NotificationService, chClose chan struct{},
) *NotificationHandler {
	return &NotificationHandler{appSvc, chClose}
}

// PendingTxNotifications forwards every pending tx event to the given send
// function until the context is done or the handler is closed.
func (n *NotificationHandler) PendingTxNotifications(
	ctx context.Context, send func(message.Response),
) error {
	chEvents, err := n.appSvc.GetPendingTxChannel(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case e, ok := <-chEvents:
			if !ok {
				return nil
			}
			if e.PendingTx == nil {
				continue
			}
			info := application.PendingTxInfo(*e.PendingTx)
			send(message.Response{
				Type:    message.PendingTxNotification,
				Success: true,
				Payload: message.PendingTxEvent{
					EventType: parsePendingTxEventType(e.EventType),
					PendingTx: parsePendingTx(&info),
				},
			})
		case <-ctx.Done():
			return nil
		case <-n.chClose:
			return ErrConnectionClosed
		}
	}
}
