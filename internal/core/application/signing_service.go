package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
	"github.com/vulpemventures/ocean-multisig/internal/core/ports"
	"github.com/vulpemventures/ocean-multisig/pkg/multisig"
)

// SigningService is responsible for collecting the signatures of the
// cosigners of a multisig account:
//   - Create a pending transaction for a psbt spending the account's coins.
//   - Sign a psbt with the local key. The psbt is merged with the stored one first, so no signature collected so far is lost.
//   - Import a psbt signed by other cosigners and merge their signatures.
//   - List and delete pending transactions, and sweep the expired ones.
//
// The number of collected signatures is always counted from the valid
// signatures found in the psbt, never incremented by hand.
// Every change to a pending transaction goes through the repository's
// UpdatePendingTx, therefore it's either fully applied or not at all.
type SigningService struct {
	repoManager  ports.RepoManager
	keyStore     ports.KeyStore
	pendingTxTTL time.Duration

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewSigningService(
	repoManager ports.RepoManager, keyStore ports.KeyStore,
	pendingTxTTL time.Duration,
) *SigningService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("signing service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("signing service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	if pendingTxTTL <= 0 {
		pendingTxTTL = domain.DefaultPendingTxTTL
	}
	return &SigningService{repoManager, keyStore, pendingTxTTL, logFn, warnFn}
}

// CreatePendingTx stores a new pending tx for the given psbt. Valid
// signatures already in the psbt are counted, invalid ones are dropped. If a
// pending tx for the same unsigned tx exists, it's returned as is, unless
// already broadcast. An expired one not yet swept is replaced.
func (ss *SigningService) CreatePendingTx(
	ctx context.Context, accountIndex uint32, psbtB64 string,
	metadata domain.PendingTxMetadata,
) (*PendingTxInfo, error) {
	account, err := ss.getAccount(ctx, accountIndex)
	if err != nil {
		return nil, err
	}
	packet, err := decodeAccountPsbt(account, psbtB64)
	if err != nil {
		return nil, err
	}

	repo := ss.repoManager.PendingTxRepository()
	txid := multisig.UnsignedTxID(packet)
	stored, err := repo.GetPendingTx(ctx, txid)
	if err != nil && !errors.Is(err, domain.ErrPendingTxNotFound) {
		return nil, err
	}
	if stored != nil {
		if stored.AccountIndex != account.Index {
			return nil, ErrForeignPsbt
		}
		if !stored.IsExpired(time.Now()) {
			if stored.IsFinalized() {
				return nil, ErrAlreadyFullySigned
			}
			return (*PendingTxInfo)(stored), nil
		}
		if err := repo.DeletePendingTx(ctx, txid); err != nil {
			return nil, err
		}
		ss.log("replacing expired pending tx %s", txid)
	}

	pendingTx, err := ss.newPendingTx(account, packet, metadata)
	if err != nil {
		return nil, err
	}
	added, err := repo.AddPendingTx(ctx, pendingTx)
	if err != nil {
		return nil, err
	}
	if !added {
		stored, err := repo.GetPendingTx(ctx, txid)
		if err != nil {
			return nil, err
		}
		return (*PendingTxInfo)(stored), nil
	}

	ss.log(
		"created pending tx %s for account %d with %d/%d signatures",
		txid, account.Index, pendingTx.CollectedSignatures,
		pendingTx.RequiredSignatures,
	)
	return (*PendingTxInfo)(pendingTx), nil
}

// SignMultisigTransaction signs the given psbt with the local key of the
// account. Signing twice with the same key is a no-op.
func (ss *SigningService) SignMultisigTransaction(
	ctx context.Context, accountIndex uint32, psbtB64 string,
) (*PendingTxInfo, error) {
	account, err := ss.getAccount(ctx, accountIndex)
	if err != nil {
		return nil, err
	}
	local, ok := account.LocalCosigner()
	if !ok {
		return nil, ErrMissingLocalKey
	}

	masterKey, err := ss.keyStore.Get()
	if err != nil {
		return nil, ErrWalletLocked
	}
	fingerprint, err := multisig.MasterFingerprint(masterKey)
	if err != nil {
		return nil, err
	}
	if multisig.FingerprintToString(fingerprint) != local.Fingerprint {
		return nil, ErrWrongLocalKey
	}

	packet, err := decodeAccountPsbt(account, psbtB64)
	if err != nil {
		return nil, err
	}

	sign := func(base *psbt.Packet) (*psbt.Packet, error) {
		collected, _, err := countSignatures(account, base)
		if err != nil {
			return nil, err
		}
		if collected >= account.RequiredSignatures {
			return nil, ErrAlreadyFullySigned
		}

		signed, err := multisig.ClonePsbt(base)
		if err != nil {
			return nil, err
		}
		count, err := multisig.SignPsbt(multisig.SignPsbtArgs{
			Packet:    signed,
			MasterKey: masterKey,
		})
		if err != nil {
			return nil, err
		}
		ss.log(
			"added %d signature(s) to tx %s", count, multisig.UnsignedTxID(signed),
		)
		return signed, nil
	}

	return ss.mergeIntoPendingTx(ctx, account, packet, sign)
}

// ImportPsbt merges the signatures of the given psbt into the related pending
// tx. If txid is empty, the pending tx is looked up by the psbt's unsigned tx.
// If none is found, a new pending tx is created for the account owning the
// psbt, unless it spends the same coins of another pending tx of the account.
func (ss *SigningService) ImportPsbt(
	ctx context.Context, txid, psbtB64 string,
) (*PendingTxInfo, error) {
	packet, err := multisig.DecodePsbt(psbtB64)
	if err != nil {
		return nil, err
	}

	explicit := len(txid) > 0
	if !explicit {
		txid = multisig.UnsignedTxID(packet)
	}

	stored, err := ss.repoManager.PendingTxRepository().GetPendingTx(ctx, txid)
	if err != nil {
		if !errors.Is(err, domain.ErrPendingTxNotFound) || explicit {
			return nil, err
		}

		account, err := ss.findAccount(ctx, packet)
		if err != nil {
			return nil, err
		}
		return ss.mergeIntoPendingTx(ctx, account, packet, nil)
	}

	storedPacket, err := multisig.DecodePsbt(stored.Psbt)
	if err != nil {
		return nil, err
	}
	if !multisig.SameUnsignedTx(storedPacket, packet) {
		return nil, ErrPsbtMismatch
	}
	if stored.IsFinalized() {
		return nil, ErrAlreadyFullySigned
	}

	account, err := ss.getAccount(ctx, stored.AccountIndex)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(account, packet); err != nil {
		return nil, err
	}
	return ss.mergeIntoPendingTx(ctx, account, packet, nil)
}

// GetPendingTxs returns the pending txs of the given account, or all of them
// if accountIndex is nil. Expired and broadcast ones are left out.
func (ss *SigningService) GetPendingTxs(
	ctx context.Context, accountIndex *uint32,
) (PendingTxsInfo, error) {
	txs, err := ss.repoManager.PendingTxRepository().GetPendingTxs(
		ctx, accountIndex,
	)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	info := make(PendingTxsInfo, 0, len(txs))
	for _, tx := range txs {
		if tx.IsExpired(now) || tx.IsFinalized() {
			continue
		}
		info = append(info, (*PendingTxInfo)(tx))
	}
	return info, nil
}

// GetPendingTx returns the pending tx with the given id, broadcast ones
// included.
func (ss *SigningService) GetPendingTx(
	ctx context.Context, txid string,
) (*PendingTxInfo, error) {
	tx, err := ss.repoManager.PendingTxRepository().GetPendingTx(ctx, txid)
	if err != nil {
		return nil, err
	}
	return (*PendingTxInfo)(tx), nil
}

// DeletePendingTx removes the pending tx with the given id. It's a no-op if
// not found. Broadcast txs can't be deleted, they're swept once expired.
func (ss *SigningService) DeletePendingTx(
	ctx context.Context, txid string,
) error {
	repo := ss.repoManager.PendingTxRepository()
	stored, err := repo.GetPendingTx(ctx, txid)
	if err != nil {
		if errors.Is(err, domain.ErrPendingTxNotFound) {
			return nil
		}
		return err
	}
	if stored.IsFinalized() {
		return domain.ErrPendingTxFinalized
	}

	if err := repo.DeletePendingTx(ctx, txid); err != nil {
		return err
	}
	ss.log("deleted pending tx %s", txid)
	return nil
}

// SweepExpiredPendingTxs deletes all expired pending txs, broadcast ones
// included, and returns how many have been removed.
func (ss *SigningService) SweepExpiredPendingTxs(
	ctx context.Context,
) (int, error) {
	repo := ss.repoManager.PendingTxRepository()
	txs, err := repo.GetPendingTxs(ctx, nil)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	count := 0
	for _, tx := range txs {
		if !tx.IsExpired(now) {
			continue
		}
		if err := repo.DeletePendingTx(ctx, tx.TxID); err != nil {
			ss.warn(err, "failed to delete expired pending tx %s", tx.TxID)
			continue
		}
		count++
	}
	if count > 0 {
		ss.log("swept %d expired pending tx(s)", count)
	}
	return count, nil
}

// mergeIntoPendingTx combines packet with the stored pending tx, if any,
// applies transform to the result and stores it. If no pending tx exists, a
// new one is created for the account. Broadcast and expired pending txs are
// never changed.
func (ss *SigningService) mergeIntoPendingTx(
	ctx context.Context, account *domain.MultisigAccount, packet *psbt.Packet,
	transform func(*psbt.Packet) (*psbt.Packet, error),
) (*PendingTxInfo, error) {
	if transform == nil {
		transform = func(p *psbt.Packet) (*psbt.Packet, error) { return p, nil }
	}

	repo := ss.repoManager.PendingTxRepository()
	txid := multisig.UnsignedTxID(packet)

	if _, err := repo.GetPendingTx(ctx, txid); err != nil {
		if !errors.Is(err, domain.ErrPendingTxNotFound) {
			return nil, err
		}
		if err := ss.checkConflicts(ctx, account, packet); err != nil {
			return nil, err
		}

		result, err := transform(packet)
		if err != nil {
			return nil, err
		}
		pendingTx, err := ss.newPendingTx(account, result, domain.PendingTxMetadata{})
		if err != nil {
			return nil, err
		}
		added, err := repo.AddPendingTx(ctx, pendingTx)
		if err != nil {
			return nil, err
		}
		if added {
			ss.log(
				"created pending tx %s with %d/%d signatures", txid,
				pendingTx.CollectedSignatures, pendingTx.RequiredSignatures,
			)
			return (*PendingTxInfo)(pendingTx), nil
		}
	}

	var updatedTx *domain.PendingMultisigTransaction
	if err := repo.UpdatePendingTx(
		ctx, txid,
		func(p *domain.PendingMultisigTransaction) (*domain.PendingMultisigTransaction, error) {
			if p.AccountIndex != account.Index {
				return nil, ErrForeignPsbt
			}
			if p.IsFinalized() {
				return nil, ErrAlreadyFullySigned
			}
			if p.IsExpired(time.Now()) {
				return nil, fmt.Errorf(
					"%w, create it again to collect signatures", ErrPendingTxExpired,
				)
			}
			storedPacket, err := multisig.DecodePsbt(p.Psbt)
			if err != nil {
				return nil, err
			}
			combined, err := multisig.CombinePsbt(storedPacket, packet)
			if err != nil {
				if errors.Is(err, multisig.ErrDifferentTransaction) {
					return nil, ErrPsbtMismatch
				}
				return nil, err
			}
			result, err := transform(combined)
			if err != nil {
				return nil, err
			}

			psbtB64, err := multisig.EncodePsbt(result)
			if err != nil {
				return nil, err
			}
			collected, signed, err := countSignatures(account, result)
			if err != nil {
				return nil, err
			}
			if err := p.UpdateSignatures(psbtB64, collected, signed); err != nil {
				return nil, err
			}
			updatedTx = p
			return p, nil
		},
	); err != nil {
		return nil, err
	}

	ss.log(
		"pending tx %s has %d/%d signatures", txid,
		updatedTx.CollectedSignatures, updatedTx.RequiredSignatures,
	)
	return (*PendingTxInfo)(updatedTx), nil
}

func (ss *SigningService) newPendingTx(
	account *domain.MultisigAccount, packet *psbt.Packet,
	metadata domain.PendingTxMetadata,
) (*domain.PendingMultisigTransaction, error) {
	packet, err := multisig.ClonePsbt(packet)
	if err != nil {
		return nil, err
	}
	removed, err := multisig.RemoveInvalidSignatures(packet)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		ss.log(
			"dropped %d invalid signature(s) of tx %s",
			removed, multisig.UnsignedTxID(packet),
		)
	}

	psbtB64, err := multisig.EncodePsbt(packet)
	if err != nil {
		return nil, err
	}
	collected, signed, err := countSignatures(account, packet)
	if err != nil {
		return nil, err
	}

	pendingTx, err := domain.NewPendingMultisigTransaction(
		multisig.UnsignedTxID(packet), account.Index, psbtB64,
		account.RequiredSignatures, account.Roster(), metadata,
		time.Now(), ss.pendingTxTTL,
	)
	if err != nil {
		return nil, err
	}
	if err := pendingTx.UpdateSignatures(psbtB64, collected, signed); err != nil {
		return nil, err
	}
	return pendingTx, nil
}

// checkConflicts makes sure packet doesn't spend any coin of another active
// pending tx of the account, that is it's not a different version of it.
func (ss *SigningService) checkConflicts(
	ctx context.Context, account *domain.MultisigAccount, packet *psbt.Packet,
) error {
	txs, err := ss.repoManager.PendingTxRepository().GetPendingTxs(
		ctx, &account.Index,
	)
	if err != nil {
		return err
	}

	now := time.Now()
	txid := multisig.UnsignedTxID(packet)
	for _, tx := range txs {
		if tx.TxID == txid || tx.IsFinalized() || tx.IsExpired(now) {
			continue
		}
		other, err := multisig.DecodePsbt(tx.Psbt)
		if err != nil {
			ss.warn(err, "failed to decode psbt of pending tx %s", tx.TxID)
			continue
		}
		if multisig.SharesInputs(packet, other) {
			ss.log("psbt of tx %s spends coins of pending tx %s", txid, tx.TxID)
			return fmt.Errorf(
				"%w: it spends the same coins of pending tx %s",
				ErrPsbtMismatch, tx.TxID,
			)
		}
	}
	return nil
}

func (ss *SigningService) getAccount(
	ctx context.Context, accountIndex uint32,
) (*domain.MultisigAccount, error) {
	return ss.repoManager.AccountRepository().GetAccount(ctx, accountIndex)
}

// findAccount returns the account whose key set locks all the psbt inputs.
func (ss *SigningService) findAccount(
	ctx context.Context, packet *psbt.Packet,
) (*domain.MultisigAccount, error) {
	accounts, err := ss.repoManager.AccountRepository().GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if err := checkOwnership(account, packet); err == nil {
			return account, nil
		}
	}
	return nil, ErrForeignPsbt
}

func decodeAccountPsbt(
	account *domain.MultisigAccount, psbtB64 string,
) (*psbt.Packet, error) {
	packet, err := multisig.DecodePsbt(psbtB64)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(account, packet); err != nil {
		return nil, err
	}
	return packet, nil
}

func checkOwnership(account *domain.MultisigAccount, packet *psbt.Packet) error {
	cosigners, err := account.MultisigCosigners()
	if err != nil {
		return err
	}
	if err := multisig.CheckOwnership(
		packet, cosigners, account.RequiredSignatures,
	); err != nil {
		return fmt.Errorf("%w: %s", ErrForeignPsbt, err)
	}
	return nil
}

// countSignatures returns the number of account cosigners who validly signed
// all inputs, and the signed status of each of them by fingerprint.
func countSignatures(
	account *domain.MultisigAccount, packet *psbt.Packet,
) (int, map[string]bool, error) {
	status, err := multisig.SignedFingerprints(packet)
	if err != nil {
		return 0, nil, err
	}

	signed := make(map[string]bool)
	collected := 0
	for fingerprint, ok := range status {
		key := multisig.FingerprintToString(fingerprint)
		if !ok || !account.HasFingerprint(key) {
			continue
		}
		signed[key] = true
		collected++
	}
	return collected, signed, nil
}
