package ws_handler

import (
	"context"
	"encoding/json"

	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

type AccountHandler struct {
	accountSvc *application.AccountService
}

func NewAccountHandler(accountSvc *application.AccountService) *AccountHandler {
	return &AccountHandler{accountSvc}
}

func (h *AccountHandler) GetMultisigAccounts(
	ctx context.Context, _ int, _ json.RawMessage,
) (interface{}, error) {
	accounts, err := h.accountSvc.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return message.GetAccountsResponse{Accounts: parseAccounts(accounts)}, nil
}

func (h *AccountHandler) DeriveMultisigAddress(
	ctx context.Context, _ int, payload json.RawMessage,
) (interface{}, error) {
	var req message.DeriveAddressRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}

	var (
		info *application.AddressInfo
		err  error
	)
	if req.Index != nil {
		info, err = h.accountSvc.DeriveAddress(
			ctx, req.AccountIndex, req.Chain, *req.Index,
		)
	} else {
		info, err = h.accountSvc.DeriveNextAddress(ctx, req.AccountIndex, req.Chain)
	}
	if err != nil {
		return nil, err
	}
	return parseAddress(info), nil
}
