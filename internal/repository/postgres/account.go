package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/models"
)

type AccountRepo struct {
	DB DBTX
}

const accountColumns = `id, wallet_id, currency, balance, active, deleted, created_at`

func (r *AccountRepo) Create(ctx context.Context, account models.CurrencyAccount) error {
	const createAccount = `
	INSERT INTO currency_accounts (id, wallet_id, currency, balance, active, deleted, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.DB.Exec(ctx, createAccount,
		account.ID, account.WalletID, account.Currency, account.Balance.Amount,
		account.Active, account.Deleted, account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// CreateOrGet inserts the account, or returns the row a concurrent create
// for the same wallet and currency already committed.
func (r *AccountRepo) CreateOrGet(ctx context.Context, account models.CurrencyAccount) (models.CurrencyAccount, error) {
	const createOrGetAccount = `
	WITH insert_account AS (
		INSERT INTO currency_accounts (id, wallet_id, currency, balance, active, deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (wallet_id, currency) DO NOTHING
		RETURNING ` + accountColumns + `
	)
	SELECT ` + accountColumns + ` FROM insert_account
	UNION
	SELECT ` + accountColumns + ` FROM currency_accounts WHERE wallet_id = $2 AND currency = $3
	`

	rows, _ := r.DB.Query(ctx, createOrGetAccount,
		account.ID, account.WalletID, account.Currency, account.Balance.Amount,
		account.Active, account.Deleted, account.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToAccount)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

// GetForUpdate serializes concurrent balance mutations on the same account:
// the row lock is held until the enclosing transaction ends, so two debits
// can never both pass the sufficiency check.
func (r *AccountRepo) GetForUpdate(ctx context.Context, accountID uuid.UUID) (models.CurrencyAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM currency_accounts WHERE id = $1 FOR UPDATE`

	rows, _ := r.DB.Query(ctx, query, accountID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	case err != nil:
		return account, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (r *AccountRepo) GetByWalletCurrency(ctx context.Context, walletID uuid.UUID, currency models.Currency, forUpdate bool) (models.CurrencyAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM currency_accounts WHERE wallet_id = $1 AND currency = $2 AND NOT deleted`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, _ := r.DB.Query(ctx, query, walletID, currency)
	account, err := pgx.CollectOneRow(rows, rowToAccount)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	case err != nil:
		return account, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

// UpdateBalance writes the balance computed by the aggregate. A negative
// write fails on the schema level CHECK (balance >= 0).
func (r *AccountRepo) UpdateBalance(ctx context.Context, account models.CurrencyAccount) error {
	const updateBalance = `UPDATE currency_accounts SET balance = $2 WHERE id = $1`

	tag, err := r.DB.Exec(ctx, updateBalance, account.ID, account.Balance.Amount)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

func rowToAccount(row pgx.CollectableRow) (models.CurrencyAccount, error) {
	var a models.CurrencyAccount
	err := row.Scan(&a.ID, &a.WalletID, &a.Currency, &a.Balance.Amount, &a.Active, &a.Deleted, &a.CreatedAt)
	a.Balance.Currency = a.Currency
	return a, err
}
