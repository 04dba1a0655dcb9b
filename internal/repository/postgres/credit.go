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

type CreditRepo struct {
	DB DBTX
}

func (r *CreditRepo) Create(ctx context.Context, c models.Credit) error {
	const createCredit = `
	INSERT INTO credits (
		id, wallet_id, credit_limit, currency, used_credit, granted_date,
		due_date, settled_date, settlement_transaction_id, status, description
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.DB.Exec(ctx, createCredit,
		c.ID, c.WalletID, c.CreditLimit.Amount, c.CreditLimit.Currency, c.UsedCredit.Amount,
		c.GrantedDate, c.DueDate, c.SettledDate, c.SettlementTransactionID, c.Status, c.Description,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return apperrors.ErrActiveCreditExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetUnsettledByWallet locks the credit row so usage and settlement
// serialize per wallet.
func (r *CreditRepo) GetUnsettledByWallet(ctx context.Context, walletID uuid.UUID) (models.Credit, error) {
	const getUnsettled = `
	SELECT id, wallet_id, credit_limit, currency, used_credit, granted_date, due_date,
	       settled_date, settlement_transaction_id, status, description
	FROM credits
	WHERE wallet_id = $1 AND status != 'settled'
	FOR UPDATE
	`

	rows, _ := r.DB.Query(ctx, getUnsettled, walletID)
	c, err := pgx.CollectOneRow(rows, rowToCredit)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return c, apperrors.ErrCreditNotFound
	case err != nil:
		return c, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *CreditRepo) Update(ctx context.Context, c models.Credit) error {
	const updateCredit = `
	UPDATE credits
	SET used_credit = $2, due_date = $3, settled_date = $4,
	    settlement_transaction_id = $5, status = $6
	WHERE id = $1
	`

	tag, err := r.DB.Exec(ctx, updateCredit,
		c.ID, c.UsedCredit.Amount, c.DueDate, c.SettledDate, c.SettlementTransactionID, c.Status,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrCreditNotFound
	}
	return nil
}

func rowToCredit(row pgx.CollectableRow) (models.Credit, error) {
	var c models.Credit
	var currency models.Currency
	err := row.Scan(
		&c.ID, &c.WalletID, &c.CreditLimit.Amount, &currency, &c.UsedCredit.Amount,
		&c.GrantedDate, &c.DueDate, &c.SettledDate, &c.SettlementTransactionID,
		&c.Status, &c.Description,
	)
	c.CreditLimit.Currency = currency
	c.UsedCredit.Currency = currency
	return c, err
}
