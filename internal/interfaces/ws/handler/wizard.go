package ws_handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

// WizardHandler serves the messages of the account setup wizard. Every
// message acts on behalf of the tab that sent it.
type WizardHandler struct {
	sessionSvc *application.SessionService
	accountSvc *application.AccountService
}

func NewWizardHandler(
	sessionSvc *application.SessionService,
	accountSvc *application.AccountService,
) *WizardHandler {
	return &WizardHandler{sessionSvc, accountSvc}
}

func (h *WizardHandler) CreateSession(
	ctx context.Context, tabID int, _ json.RawMessage,
) (interface{}, error) {
	return h.sessionSvc.CreateSession(ctx, tabID)
}

func (h *WizardHandler) GetSession(
	ctx context.Context, _ int, _ json.RawMessage,
) (interface{}, error) {
	session, err := h.sessionSvc.GetActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	return message.WizardGetSessionResponse{Session: session}, nil
}

func (h *WizardHandler) UpdateSession(
	ctx context.Context, tabID int, payload json.RawMessage,
) (interface{}, error) {
	var req message.WizardUpdateSessionRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.Step == nil && req.State == nil {
		return nil, fmt.Errorf("%w: missing step and state", ErrInvalidRequest)
	}

	return h.sessionSvc.UpdateSession(ctx, application.SessionUpdate{
		TabID:               tabID,
		WizardSessionUpdate: req,
	})
}

func (h *WizardHandler) DeleteSession(
	ctx context.Context, tabID int, _ json.RawMessage,
) (interface{}, error) {
	if err := h.sessionSvc.DeleteSessionByTabID(ctx, tabID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *WizardHandler) PreviewAddress(
	ctx context.Context, _ int, _ json.RawMessage,
) (interface{}, error) {
	addr, err := h.accountSvc.PreviewAddress(ctx)
	if err != nil {
		return nil, err
	}
	return message.WizardPreviewAddressResponse{Address: addr}, nil
}

func (h *WizardHandler) Complete(
	ctx context.Context, tabID int, _ json.RawMessage,
) (interface{}, error) {
	account, err := h.accountSvc.CreateAccount(ctx, tabID)
	if err != nil {
		return nil, err
	}
	return parseAccount(account), nil
}
