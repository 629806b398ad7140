package ws_handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

type WalletHandler struct {
	walletSvc *application.WalletService
}

func NewWalletHandler(walletSvc *application.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc}
}

func (h *WalletHandler) GenSeed(
	ctx context.Context, _ int, _ json.RawMessage,
) (interface{}, error) {
	words, err := h.walletSvc.GenSeed(ctx)
	if err != nil {
		return nil, err
	}
	return message.GenSeedResponse{Mnemonic: strings.Join(words, " ")}, nil
}

func (h *WalletHandler) UnlockWallet(
	ctx context.Context, _ int, payload json.RawMessage,
) (interface{}, error) {
	var req message.UnlockWalletRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	words, err := parseMnemonic(req.Mnemonic)
	if err != nil {
		return nil, err
	}

	fingerprint, err := h.walletSvc.Unlock(ctx, words)
	if err != nil {
		return nil, err
	}
	return message.UnlockWalletResponse{Fingerprint: fingerprint}, nil
}

func (h *WalletHandler) LockWallet(
	ctx context.Context, _ int, _ json.RawMessage,
) (interface{}, error) {
	h.walletSvc.Lock(ctx)
	return nil, nil
}

func (h *WalletHandler) GetAccountXpub(
	ctx context.Context, _ int, payload json.RawMessage,
) (interface{}, error) {
	var req message.GetAccountXpubRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	addressType, err := parseAddressType(req.AddressType)
	if err != nil {
		return nil, err
	}

	info, err := h.walletSvc.AccountXpub(ctx, addressType, req.Account)
	if err != nil {
		return nil, err
	}
	return message.GetAccountXpubResponse{
		Xpub:           info.Xpub,
		Fingerprint:    info.Fingerprint,
		DerivationPath: info.DerivationPath,
	}, nil
}
