package postgres

import (
	"errors"
	"fmt"

	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/models"
)

type WalletRepo struct {
	DB DBTX
}

func (r *WalletRepo) CreateWallet(ctx context.Context, wallet models.Wallet) (models.Wallet, error) {
	const createWallet = `
	INSERT INTO wallets (id, user_id, active, created_at)
	VALUES ($1, $2, $3, $4)
	`

	_, err := r.DB.Exec(ctx, createWallet, wallet.ID, wallet.UserID, wallet.Active, wallet.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return wallet, fmt.Errorf("wallet already exists for user %s: %w", wallet.UserID, err)
		}
		return wallet, fmt.Errorf("db error: %w", err)
	}

	for i := range wallet.Accounts {
		acc := &AccountRepo{DB: r.DB}
		if err := acc.Create(ctx, wallet.Accounts[i]); err != nil {
			return wallet, err
		}
	}

	return wallet, nil
}

func (r *WalletRepo) GetByUser(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	return r.get(ctx, "user_id", userID)
}

func (r *WalletRepo) GetByID(ctx context.Context, walletID uuid.UUID) (models.Wallet, error) {
	return r.get(ctx, "id", walletID)
}

func (r *WalletRepo) get(ctx context.Context, column string, id uuid.UUID) (models.Wallet, error) {
	// column is one of two compile-time constants, never user input
	query := fmt.Sprintf(`SELECT id, user_id, active, created_at FROM wallets WHERE %s = $1`, column)

	var w models.Wallet
	err := r.DB.QueryRow(ctx, query, id).Scan(&w.ID, &w.UserID, &w.Active, &w.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWalletNotFound
	case err != nil:
		return w, fmt.Errorf("db error: %w", err)
	}

	if err := r.loadChildren(ctx, &w); err != nil {
		return w, err
	}
	return w, nil
}

func (r *WalletRepo) loadChildren(ctx context.Context, w *models.Wallet) error {
	const listAccounts = `
	SELECT id, wallet_id, currency, balance, active, deleted, created_at
	FROM currency_accounts WHERE wallet_id = $1 ORDER BY created_at
	`

	rows, _ := r.DB.Query(ctx, listAccounts, w.ID)
	accounts, err := pgx.CollectRows(rows, rowToAccount)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	w.Accounts = accounts

	bankAccounts, err := (&BankAccountRepo{DB: r.DB}).ListByWallet(ctx, w.ID)
	if err != nil {
		return err
	}
	w.BankAccounts = bankAccounts

	const listCredits = `
	SELECT id, wallet_id, credit_limit, currency, used_credit, granted_date, due_date,
	       settled_date, settlement_transaction_id, status, description
	FROM credits WHERE wallet_id = $1 ORDER BY granted_date
	`

	rows, _ = r.DB.Query(ctx, listCredits, w.ID)
	credits, err := pgx.CollectRows(rows, rowToCredit)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	w.Credits = credits

	return nil
}

func (r *WalletRepo) SetActive(ctx context.Context, walletID uuid.UUID, active bool) error {
	const setActive = `UPDATE wallets SET active = $2 WHERE id = $1`

	tag, err := r.DB.Exec(ctx, setActive, walletID, active)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrWalletNotFound
	}
	return nil
}
