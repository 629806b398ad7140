package ws_handler

import (
	"context"
	"encoding/json"

	"github.com/vulpemventures/ocean-multisig/internal/core/application"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/interfaces/ws/message"
)

type SigningHandler struct {
	signingSvc   *application.SigningService
	broadcastSvc *application.BroadcastService
}

func NewSigningHandler(
	signingSvc *application.SigningService,
	broadcastSvc *application.BroadcastService,
) *SigningHandler {
	return &SigningHandler{signingSvc, broadcastSvc}
}

func (h *SigningHandler) SignMultisigTransaction(
	ctx context.Context, _ int, payload json.RawMessage,
) (interface{}, error) {
	var req message.SignRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	psbtB64, err := parsePsbt(req.PsbtBase64)
	if err != nil {
		return nil, err
	}

	info, err := h.signingSvc.SignMultisigTransaction(
		ctx, req.AccountIndex, psbtB64,
	)
	if err != nil {
		return nil, err
	}
	return message.SignResponse{
		Txid:                info.TxID,
		PsbtBase64:          info.Psbt,
		SignaturesCollected: info.CollectedSignatures,
		SignaturesRequired:  info.RequiredSignatures,
		SignatureStatus:     parseSignatureStatus(info.SignatureStatus),
	}, nil
}

func (h *SigningHandler) ImportPsbt(
	ctx context.Context, _ int, payload json.RawMessage,
) (interface{}, error) {
	var req message.ImportPsbtRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	psbtB64, err := parsePsbt(req.PsbtBase64)
	if err != nil {
		return nil, err
	}
	txid, err := parseOptionalTxid(req.Txid)
	if err != nil {
		return nil, err
	}

	info, err := h.signingSvc.ImportPsbt(ctx, txid, psbtB64)
	if err != nil {
		return nil, err
	}
	return message.ImportPsbtResponse{
		Txid:                info.TxID,
		PsbtBase64:          info.Psbt,
		SignaturesCollected: info.CollectedSignatures,
		SignaturesRequired:  info.RequiredSignatures,
		Metadata:            parseMetadata(info.Metadata),
	}, nil
}

func (h *SigningHandler) BroadcastMultisigTransaction(
	ctx context.Context, _ int, payload json.RawMessage,
) (interface{}, error) {
	var req message.BroadcastRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	psbtB64, err := parsePsbt(req.PsbtBase64)
	if err != nil {
		return nil, err
	}

	txid, err := h.broadcastSvc.BroadcastMultisigTransaction(
		ctx, req.AccountIndex, psbtB64,
	)
	if err != nil {
		return nil, err
	}
	return message.BroadcastResponse{Txid: txid}, nil
}

func (h *SigningHandler) GetPendingMultisigTxs(
	ctx context.Context, _ int, payload json.RawMessage,
) (interface{}, error) {
	var req message.GetPendingTxsRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}

	txs, err := h.signingSvc.GetPendingTxs(ctx, req.AccountIndex)
	if err != nil {
		return nil, err
	}
	return message.GetPendingTxsResponse{PendingTxs: parsePendingTxs(txs)}, nil
}

func (h *SigningHandler) DeletePendingMultisigTx(
	ctx context.Context, _ int, payload json.RawMessage,
) (interface{}, error) {
	var req message.DeletePendingTxRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	txid, err := parseTxid(req.Txid)
	if err != nil {
		return nil, err
	}

	if err := h.signingSvc.DeletePendingTx(ctx, txid); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *SigningHandler) CreatePendingMultisigTx(
	ctx context.Context, _ int, payload json.RawMessage,
) (interface{}, error) {
	var req message.CreatePendingTxRequest
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	psbtB64, err := parsePsbt(req.PsbtBase64)
	if err != nil {
		return nil, err
	}

	info, err := h.signingSvc.CreatePendingTx(
		ctx, req.AccountIndex, psbtB64, domain.PendingTxMetadata{
			Amount:    req.Metadata.Amount,
			Recipient: req.Metadata.Recipient,
			Fee:       req.Metadata.Fee,
			Note:      req.Metadata.Note,
		},
	)
	if err != nil {
		return nil, err
	}
	return parsePendingTx(info), nil
}
