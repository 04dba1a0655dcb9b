package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/models"
)

type TransactionRepo struct {
	DB DBTX
}

const transactionColumns = `
	id, number, wallet_id, account_id, user_id, amount, currency, direction,
	type, status, related_transaction_id, order_context, payment_reference_id,
	description, created_at, processed_at`

// Create persists the transaction and assigns its human-readable number
// from a sequence. The partial unique index on (order_context) turns a
// concurrent duplicate purchase into ErrDuplicatePurchase.
func (r *TransactionRepo) Create(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	const createTransaction = `
	INSERT INTO transactions (
		id, number, wallet_id, account_id, user_id, amount, currency, direction,
		type, status, related_transaction_id, order_context, payment_reference_id,
		description, created_at, processed_at
	)
	VALUES ($1, 'TRX-' || lpad(nextval('transaction_number_seq')::text, 9, '0'),
	        $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NULLIF($12, ''), $13, $14, $15)
	RETURNING number
	`

	err := r.DB.QueryRow(ctx, createTransaction,
		t.ID, t.WalletID, t.AccountID, t.UserID, t.Amount.Amount, t.Amount.Currency,
		t.Direction, t.Type, t.Status, t.RelatedTransactionID, t.OrderContext,
		t.PaymentReferenceID, t.Description, t.CreatedAt, t.ProcessedAt,
	).Scan(&t.Number)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return t, apperrors.ErrDuplicatePurchase
		}
		return t, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *TransactionRepo) Update(ctx context.Context, t models.Transaction) error {
	const updateTransaction = `
	UPDATE transactions SET status = $2, processed_at = $3 WHERE id = $1
	`

	tag, err := r.DB.Exec(ctx, updateTransaction, t.ID, t.Status, t.ProcessedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE id = $1`

	rows, _ := r.DB.Query(ctx, query, id)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	case err != nil:
		return t, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *TransactionRepo) GetPendingDeposit(ctx context.Context, paymentReferenceID string) (models.Transaction, error) {
	query := `SELECT` + transactionColumns + `
	FROM transactions
	WHERE payment_reference_id = $1 AND type = 'deposit' AND status = 'pending'
	`

	rows, _ := r.DB.Query(ctx, query, paymentReferenceID)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTopUpNotFound
	case err != nil:
		return t, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *TransactionRepo) FindPurchaseByOrderContext(ctx context.Context, orderContext string) (models.Transaction, error) {
	query := `SELECT` + transactionColumns + `
	FROM transactions
	WHERE order_context = $1 AND type = 'purchase'
	  AND status IN ('pending', 'processing', 'completed')
	`

	rows, _ := r.DB.Query(ctx, query, orderContext)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	case err != nil:
		return t, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *TransactionRepo) SumRefunded(ctx context.Context, purchaseID uuid.UUID) (models.Money, error) {
	const sumRefunded = `
	SELECT COALESCE(sum(amount), 0), max(currency)
	FROM transactions
	WHERE related_transaction_id = $1 AND type = 'refund' AND status = 'completed'
	`

	var total decimal.Decimal
	var currency *models.Currency
	err := r.DB.QueryRow(ctx, sumRefunded, purchaseID).Scan(&total, &currency)
	if err != nil {
		return models.Money{}, fmt.Errorf("db error: %w", err)
	}
	if currency == nil {
		return models.Money{Amount: total}, nil
	}
	return models.Money{Amount: total, Currency: *currency}, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	var orderContext, paymentReference *string
	err := row.Scan(
		&t.ID, &t.Number, &t.WalletID, &t.AccountID, &t.UserID, &t.Amount.Amount,
		&t.Amount.Currency, &t.Direction, &t.Type, &t.Status, &t.RelatedTransactionID,
		&orderContext, &paymentReference, &t.Description, &t.CreatedAt, &t.ProcessedAt,
	)
	if orderContext != nil {
		t.OrderContext = *orderContext
	}
	if paymentReference != nil {
		t.PaymentReferenceID = *paymentReference
	}
	return t, err
}
