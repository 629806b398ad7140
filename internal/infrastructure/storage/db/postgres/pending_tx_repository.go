package postgresdb

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/ocean-multisig/internal/core/domain"
)

const (
	insertPendingTxQuery = `INSERT INTO pending_tx (
		txid, account_index, psbt, required_signatures, collected_signatures,
		amount, recipient, fee, note, status, broadcast_txid, created_at,
		expires_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (txid) DO NOTHING`
	insertSignatureQuery = `INSERT INTO pending_tx_signature (
		fk_txid, fingerprint, name, signed
	) VALUES ($1, $2, $3, $4)
	ON CONFLICT (fk_txid, fingerprint) DO UPDATE
	SET name = EXCLUDED.name, signed = EXCLUDED.signed`
	selectPendingTxsQuery = `SELECT txid, account_index, psbt,
		required_signatures, collected_signatures, amount, recipient, fee, note,
		status, broadcast_txid, created_at, expires_at
	FROM pending_tx`
	selectSignaturesQuery = `SELECT fingerprint, name, signed
	FROM pending_tx_signature WHERE fk_txid = $1`
	updatePendingTxQuery = `UPDATE pending_tx SET psbt = $2,
		collected_signatures = $3, amount = $4, recipient = $5, fee = $6,
		note = $7, status = $8, broadcast_txid = $9, expires_at = $10
	WHERE txid = $1`
	deletePendingTxQuery = "DELETE FROM pending_tx WHERE txid = $1"
)

type pendingTxRepositoryPg struct {
	pgxPool          *pgxpool.Pool
	chLock           *sync.Mutex
	chEvents         chan domain.PendingTxEvent
	externalChEvents chan domain.PendingTxEvent
}

func NewPendingTxRepositoryPgImpl(
	pgxPool *pgxpool.Pool,
) domain.PendingTxRepository {
	return newPendingTxRepositoryPg(pgxPool)
}

func newPendingTxRepositoryPg(pgxPool *pgxpool.Pool) *pendingTxRepositoryPg {
	return &pendingTxRepositoryPg{
		pgxPool:          pgxPool,
		chLock:           &sync.Mutex{},
		chEvents:         make(chan domain.PendingTxEvent),
		externalChEvents: make(chan domain.PendingTxEvent),
	}
}

func (p *pendingTxRepositoryPg) AddPendingTx(
	ctx context.Context, pendingTx *domain.PendingMultisigTransaction,
) (bool, error) {
	inserted := false
	if err := withTx(ctx, p.pgxPool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(
			ctx, insertPendingTxQuery, pendingTx.TxID,
			int64(pendingTx.AccountIndex), pendingTx.Psbt,
			pendingTx.RequiredSignatures, pendingTx.CollectedSignatures,
			int64(pendingTx.Metadata.Amount), pendingTx.Metadata.Recipient,
			int64(pendingTx.Metadata.Fee), pendingTx.Metadata.Note,
			int(pendingTx.Status), pendingTx.BroadcastTxID,
			pendingTx.CreatedAt, pendingTx.ExpiresAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if err := upsertSignatures(ctx, tx, pendingTx); err != nil {
			return err
		}
		inserted = true
		return nil
	}); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	if inserted {
		go p.publishEvent(domain.PendingTxEvent{
			EventType: domain.PendingTxAdded,
			PendingTx: pendingTx,
		})
	}
	return inserted, nil
}

func (p *pendingTxRepositoryPg) GetPendingTx(
	ctx context.Context, txid string,
) (*domain.PendingMultisigTransaction, error) {
	return getPendingTx(ctx, p.pgxPool, txid, false)
}

func (p *pendingTxRepositoryPg) GetPendingTxs(
	ctx context.Context, accountIndex *uint32,
) ([]*domain.PendingMultisigTransaction, error) {
	query := selectPendingTxsQuery
	args := make([]interface{}, 0, 1)
	if accountIndex != nil {
		query += " WHERE account_index = $1"
		args = append(args, int64(*accountIndex))
	}
	query += " ORDER BY created_at, txid"

	rows, err := p.pgxPool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	txs := make([]*domain.PendingMultisigTransaction, 0)
	for rows.Next() {
		pendingTx, err := scanPendingTx(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		txs = append(txs, pendingTx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, pendingTx := range txs {
		status, err := getSignatures(ctx, p.pgxPool, pendingTx.TxID)
		if err != nil {
			return nil, err
		}
		pendingTx.SignatureStatus = status
	}
	return txs, nil
}

// UpdatePendingTx locks the pending tx row for the whole duration of
// updateFn, concurrent updates of the same record are serialized.
func (p *pendingTxRepositoryPg) UpdatePendingTx(
	ctx context.Context, txid string,
	updateFn func(
		p *domain.PendingMultisigTransaction,
	) (*domain.PendingMultisigTransaction, error),
) error {
	var updatedTx *domain.PendingMultisigTransaction
	if err := withTx(ctx, p.pgxPool, func(tx pgx.Tx) error {
		pendingTx, err := getPendingTx(ctx, tx, txid, true)
		if err != nil {
			return err
		}

		updatedTx, err = updateFn(pendingTx)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(
			ctx, updatePendingTxQuery, txid, updatedTx.Psbt,
			updatedTx.CollectedSignatures, int64(updatedTx.Metadata.Amount),
			updatedTx.Metadata.Recipient, int64(updatedTx.Metadata.Fee),
			updatedTx.Metadata.Note, int(updatedTx.Status),
			updatedTx.BroadcastTxID, updatedTx.ExpiresAt,
		); err != nil {
			return err
		}
		return upsertSignatures(ctx, tx, updatedTx)
	}); err != nil {
		return err
	}

	eventType := domain.PendingTxUpdated
	if updatedTx.Status == domain.PendingTxBroadcast {
		eventType = domain.PendingTxBroadcasted
	}
	go p.publishEvent(domain.PendingTxEvent{
		EventType: eventType,
		PendingTx: updatedTx,
	})
	return nil
}

func (p *pendingTxRepositoryPg) DeletePendingTx(
	ctx context.Context, txid string,
) error {
	var pendingTx *domain.PendingMultisigTransaction
	if err := withTx(ctx, p.pgxPool, func(tx pgx.Tx) error {
		var err error
		pendingTx, err = getPendingTx(ctx, tx, txid, true)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, deletePendingTxQuery, txid)
		return err
	}); err != nil {
		if errors.Is(err, domain.ErrPendingTxNotFound) {
			return nil
		}
		return err
	}

	go p.publishEvent(domain.PendingTxEvent{
		EventType: domain.PendingTxRemoved,
		PendingTx: pendingTx,
	})
	return nil
}

func (p *pendingTxRepositoryPg) GetEventChannel() chan domain.PendingTxEvent {
	return p.externalChEvents
}

func (p *pendingTxRepositoryPg) publishEvent(event domain.PendingTxEvent) {
	p.chLock.Lock()
	defer p.chLock.Unlock()

	p.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case p.externalChEvents <- event:
	default:
	}
}

func (p *pendingTxRepositoryPg) close() {
	close(p.chEvents)
	close(p.externalChEvents)
}

func getPendingTx(
	ctx context.Context, q querier, txid string, forUpdate bool,
) (*domain.PendingMultisigTransaction, error) {
	query := selectPendingTxsQuery + " WHERE txid = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	pendingTx, err := scanPendingTx(q.QueryRow(ctx, query, txid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPendingTxNotFound
		}
		return nil, err
	}

	status, err := getSignatures(ctx, q, txid)
	if err != nil {
		return nil, err
	}
	pendingTx.SignatureStatus = status
	return pendingTx, nil
}

func getSignatures(
	ctx context.Context, q querier, txid string,
) (map[string]domain.SignatureStatus, error) {
	rows, err := q.Query(ctx, selectSignaturesQuery, txid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	status := make(map[string]domain.SignatureStatus)
	for rows.Next() {
		var fingerprint string
		var s domain.SignatureStatus
		if err := rows.Scan(&fingerprint, &s.Name, &s.Signed); err != nil {
			return nil, err
		}
		status[fingerprint] = s
	}
	return status, rows.Err()
}

func upsertSignatures(
	ctx context.Context, q querier, pendingTx *domain.PendingMultisigTransaction,
) error {
	for fingerprint, s := range pendingTx.SignatureStatus {
		if _, err := q.Exec(
			ctx, insertSignatureQuery, pendingTx.TxID, fingerprint, s.Name,
			s.Signed,
		); err != nil {
			return err
		}
	}
	return nil
}

func scanPendingTx(row pgx.Row) (*domain.PendingMultisigTransaction, error) {
	var (
		accountIndex, amount, fee int64
		status                    int
		pendingTx                 domain.PendingMultisigTransaction
	)
	if err := row.Scan(
		&pendingTx.TxID, &accountIndex, &pendingTx.Psbt,
		&pendingTx.RequiredSignatures, &pendingTx.CollectedSignatures,
		&amount, &pendingTx.Metadata.Recipient, &fee, &pendingTx.Metadata.Note,
		&status, &pendingTx.BroadcastTxID, &pendingTx.CreatedAt,
		&pendingTx.ExpiresAt,
	); err != nil {
		return nil, err
	}
	pendingTx.AccountIndex = uint32(accountIndex)
	pendingTx.Metadata.Amount = uint64(amount)
	pendingTx.Metadata.Fee = uint64(fee)
	pendingTx.Status = domain.PendingTxStatus(status)
	return &pendingTx, nil
}
