package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

// BroadcastService finalizes fully signed multisig transactions and
// publishes them through the configured broadcaster.
//
// The broadcaster is called exactly once per request. If it fails, the
// pending transaction is left as is so that the user can retry without
// signing again. Otherwise the pending transaction is marked as broadcast and
// kept until it expires, so that it can't be signed or broadcast again.
type BroadcastService struct {
	repoManager ports.RepoManager
	broadcaster ports.Broadcaster

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewBroadcastService(
	repoManager ports.RepoManager, broadcaster ports.Broadcaster,
) *BroadcastService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("broadcast service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("broadcast service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &BroadcastService{repoManager, broadcaster, logFn, warnFn}
}

// BroadcastMultisigTransaction merges the given psbt with the stored pending
// tx, if any, finalizes and broadcasts it. It returns the hash of the
// published transaction.
func (bs *BroadcastService) BroadcastMultisigTransaction(
	ctx context.Context, accountIndex uint32, psbtB64 string,
) (string, error) {
	account, err := bs.repoManager.AccountRepository().GetAccount(
		ctx, accountIndex,
	)
	if err != nil {
		return "", err
	}
	packet, err := decodeAccountPsbt(account, psbtB64)
	if err != nil {
		return "", err
	}

	repo := bs.repoManager.PendingTxRepository()
	txid := multisig.UnsignedTxID(packet)
	pendingTx, err := repo.GetPendingTx(ctx, txid)
	if err != nil && !errors.Is(err, domain.ErrPendingTxNotFound) {
		return "", err
	}
	if pendingTx != nil {
		if pendingTx.AccountIndex != account.Index {
			return "", ErrForeignPsbt
		}
		if pendingTx.Status == domain.PendingTxBroadcast {
			return "", ErrAlreadyBroadcast
		}
		if pendingTx.IsExpired(time.Now()) {
			return "", ErrPendingTxExpired
		}
		storedPacket, err := multisig.DecodePsbt(pendingTx.Psbt)
		if err != nil {
			return "", err
		}
		if packet, err = multisig.CombinePsbt(storedPacket, packet); err != nil {
			if errors.Is(err, multisig.ErrDifferentTransaction) {
				return "", ErrPsbtMismatch
			}
			return "", err
		}
	}

	collected, signed, err := countSignatures(account, packet)
	if err != nil {
		return "", err
	}
	if collected < account.RequiredSignatures {
		return "", ErrNotFullySigned
	}

	txHex, finalTxid, err := multisig.FinalizeAndExtractHex(packet)
	if err != nil {
		if errors.Is(err, multisig.ErrNotEnoughSignatures) {
			return "", ErrNotFullySigned
		}
		return "", err
	}

	broadcastTxid, err := bs.broadcaster.BroadcastTransaction(ctx, txHex)
	if err != nil {
		bs.warn(err, "failed to broadcast tx %s", finalTxid)
		return "", &BroadcastError{Cause: err}
	}
	if len(broadcastTxid) <= 0 {
		broadcastTxid = finalTxid
	}
	bs.log("broadcasted tx %s", broadcastTxid)

	finalPsbt, err := multisig.EncodePsbt(packet)
	if err != nil {
		bs.warn(err, "failed to encode psbt of broadcast tx %s", txid)
		return broadcastTxid, nil
	}
	if pendingTx == nil {
		bs.addBroadcastTx(
			ctx, account, txid, finalPsbt, broadcastTxid, collected, signed,
		)
		return broadcastTxid, nil
	}
	if err := repo.UpdatePendingTx(
		ctx, txid,
		func(p *domain.PendingMultisigTransaction) (*domain.PendingMultisigTransaction, error) {
			if err := p.UpdateSignatures(finalPsbt, collected, signed); err != nil {
				return nil, err
			}
			if err := p.MarkBroadcast(broadcastTxid); err != nil {
				return nil, err
			}
			return p, nil
		},
	); err != nil {
		bs.warn(err, "failed to mark pending tx %s as broadcast", txid)
	}

	return broadcastTxid, nil
}

// addBroadcastTx stores a broadcast record for a tx that had no pending tx.
func (bs *BroadcastService) addBroadcastTx(
	ctx context.Context, account *domain.MultisigAccount,
	txid, psbtB64, broadcastTxid string, collected int, signed map[string]bool,
) {
	tx, err := domain.NewPendingMultisigTransaction(
		txid, account.Index, psbtB64, account.RequiredSignatures,
		account.Roster(), domain.PendingTxMetadata{}, time.Now(), 0,
	)
	if err == nil {
		err = tx.UpdateSignatures(psbtB64, collected, signed)
	}
	if err == nil {
		err = tx.MarkBroadcast(broadcastTxid)
	}
	if err == nil {
		_, err = bs.repoManager.PendingTxRepository().AddPendingTx(ctx, tx)
	}
	if err != nil {
		bs.warn(err, "failed to store broadcast tx %s", txid)
	}
}
