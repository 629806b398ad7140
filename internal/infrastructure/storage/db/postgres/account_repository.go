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
	insertAccountQuery = `INSERT INTO multisig_account (
		account_index, name, required_signatures, address_type, network,
		first_address, next_external_index, next_internal_index, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (account_index) DO NOTHING`
	insertCosignerQuery = `INSERT INTO cosigner (
		fk_account_index, position, name, fingerprint, xpub, derivation_path,
		is_local
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	selectAccountsQuery = `SELECT account_index, name, required_signatures,
		address_type, network, first_address, next_external_index,
		next_internal_index, created_at
	FROM multisig_account`
	selectCosignersQuery = `SELECT name, fingerprint, xpub, derivation_path,
		is_local
	FROM cosigner WHERE fk_account_index = $1 ORDER BY position`
	updateAccountQuery = `UPDATE multisig_account SET name = $2,
		required_signatures = $3, next_external_index = $4,
		next_internal_index = $5
	WHERE account_index = $1`
	deleteAccountQuery = "DELETE FROM multisig_account WHERE account_index = $1"
)

type accountRepositoryPg struct {
	pgxPool          *pgxpool.Pool
	chLock           *sync.Mutex
	chEvents         chan domain.AccountEvent
	externalChEvents chan domain.AccountEvent
}

func NewAccountRepositoryPgImpl(pgxPool *pgxpool.Pool) domain.AccountRepository {
	return newAccountRepositoryPg(pgxPool)
}

func newAccountRepositoryPg(pgxPool *pgxpool.Pool) *accountRepositoryPg {
	return &accountRepositoryPg{
		pgxPool:          pgxPool,
		chLock:           &sync.Mutex{},
		chEvents:         make(chan domain.AccountEvent),
		externalChEvents: make(chan domain.AccountEvent),
	}
}

func (a *accountRepositoryPg) AddAccount(
	ctx context.Context, account *domain.MultisigAccount,
) (bool, error) {
	inserted := false
	if err := withTx(ctx, a.pgxPool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(
			ctx, insertAccountQuery, int64(account.Index), account.Name,
			account.RequiredSignatures, account.AddressType, account.Network,
			account.FirstAddress, int64(account.NextExternalIndex),
			int64(account.NextInternalIndex), account.CreatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		for i, c := range account.Cosigners {
			if _, err := tx.Exec(
				ctx, insertCosignerQuery, int64(account.Index), i, c.Name,
				c.Fingerprint, c.Xpub, c.DerivationPath, c.IsLocal,
			); err != nil {
				return err
			}
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
		go a.publishEvent(domain.AccountEvent{
			EventType: domain.AccountCreated,
			Account:   account,
		})
	}
	return inserted, nil
}

func (a *accountRepositoryPg) GetAccount(
	ctx context.Context, index uint32,
) (*domain.MultisigAccount, error) {
	return a.getAccount(ctx, a.pgxPool, index, false)
}

func (a *accountRepositoryPg) GetAccounts(
	ctx context.Context,
) ([]*domain.MultisigAccount, error) {
	rows, err := a.pgxPool.Query(
		ctx, selectAccountsQuery+" ORDER BY account_index",
	)
	if err != nil {
		return nil, err
	}

	accounts := make([]*domain.MultisigAccount, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		accounts = append(accounts, account)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, account := range accounts {
		cosigners, err := getCosigners(ctx, a.pgxPool, account.Index)
		if err != nil {
			return nil, err
		}
		account.Cosigners = cosigners
	}
	return accounts, nil
}

// UpdateAccount locks the account row for the whole duration of updateFn.
// Only the mutable fields are persisted, cosigners never change.
func (a *accountRepositoryPg) UpdateAccount(
	ctx context.Context, index uint32,
	updateFn func(a *domain.MultisigAccount) (*domain.MultisigAccount, error),
) error {
	var updatedAccount *domain.MultisigAccount
	if err := withTx(ctx, a.pgxPool, func(tx pgx.Tx) error {
		account, err := a.getAccount(ctx, tx, index, true)
		if err != nil {
			return err
		}

		updatedAccount, err = updateFn(account)
		if err != nil {
			return err
		}

		_, err = tx.Exec(
			ctx, updateAccountQuery, int64(index), updatedAccount.Name,
			updatedAccount.RequiredSignatures,
			int64(updatedAccount.NextExternalIndex),
			int64(updatedAccount.NextInternalIndex),
		)
		return err
	}); err != nil {
		return err
	}

	go a.publishEvent(domain.AccountEvent{
		EventType: domain.AccountAddressDerived,
		Account:   updatedAccount,
	})
	return nil
}

func (a *accountRepositoryPg) DeleteAccount(
	ctx context.Context, index uint32,
) error {
	account, err := a.getAccount(ctx, a.pgxPool, index, false)
	if err != nil {
		return err
	}

	tag, err := a.pgxPool.Exec(ctx, deleteAccountQuery, int64(index))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	go a.publishEvent(domain.AccountEvent{
		EventType: domain.AccountDeleted,
		Account:   account,
	})
	return nil
}

func (a *accountRepositoryPg) GetEventChannel() chan domain.AccountEvent {
	return a.externalChEvents
}

func (a *accountRepositoryPg) publishEvent(event domain.AccountEvent) {
	a.chLock.Lock()
	defer a.chLock.Unlock()

	a.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case a.externalChEvents <- event:
	default:
	}
}

func (a *accountRepositoryPg) close() {
	close(a.chEvents)
	close(a.externalChEvents)
}

func (a *accountRepositoryPg) getAccount(
	ctx context.Context, q querier, index uint32, forUpdate bool,
) (*domain.MultisigAccount, error) {
	query := selectAccountsQuery + " WHERE account_index = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	account, err := scanAccount(q.QueryRow(ctx, query, int64(index)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}

	cosigners, err := getCosigners(ctx, q, index)
	if err != nil {
		return nil, err
	}
	account.Cosigners = cosigners
	return account, nil
}

func getCosigners(
	ctx context.Context, q querier, index uint32,
) ([]domain.Cosigner, error) {
	rows, err := q.Query(ctx, selectCosignersQuery, int64(index))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cosigners := make([]domain.Cosigner, 0)
	for rows.Next() {
		var c domain.Cosigner
		if err := rows.Scan(
			&c.Name, &c.Fingerprint, &c.Xpub, &c.DerivationPath, &c.IsLocal,
		); err != nil {
			return nil, err
		}
		cosigners = append(cosigners, c)
	}
	return cosigners, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.MultisigAccount, error) {
	var (
		index, nextExternal, nextInternal int64
		account                           domain.MultisigAccount
	)
	if err := row.Scan(
		&index, &account.Name, &account.RequiredSignatures,
		&account.AddressType, &account.Network, &account.FirstAddress,
		&nextExternal, &nextInternal, &account.CreatedAt,
	); err != nil {
		return nil, err
	}
	account.Index = uint32(index)
	account.NextExternalIndex = uint32(nextExternal)
	account.NextInternalIndex = uint32(nextInternal)
	return &account, nil
}
