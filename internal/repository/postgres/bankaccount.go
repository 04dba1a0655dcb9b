package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/models"
)

type BankAccountRepo struct {
	DB DBTX
}

func (r *BankAccountRepo) Create(ctx context.Context, a models.BankAccount) error {
	const createBankAccount = `
	INSERT INTO bank_accounts (id, wallet_id, number, bank_name, is_default, active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.DB.Exec(ctx, createBankAccount,
		a.ID, a.WalletID, a.Number, a.BankName, a.Default, a.Active, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return apperrors.ErrDuplicateBankAccount
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *BankAccountRepo) Update(ctx context.Context, a models.BankAccount) error {
	const updateBankAccount = `
	UPDATE bank_accounts SET is_default = $2, active = $3 WHERE id = $1
	`

	tag, err := r.DB.Exec(ctx, updateBankAccount, a.ID, a.Default, a.Active)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrBankAccountNotFound
	}
	return nil
}

func (r *BankAccountRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]models.BankAccount, error) {
	const listBankAccounts = `
	SELECT id, wallet_id, number, bank_name, is_default, active, created_at
	FROM bank_accounts WHERE wallet_id = $1 ORDER BY created_at
	`

	rows, _ := r.DB.Query(ctx, listBankAccounts, walletID)
	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.BankAccount, error) {
		var a models.BankAccount
		err := row.Scan(&a.ID, &a.WalletID, &a.Number, &a.BankName, &a.Default, &a.Active, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return accounts, nil
}
