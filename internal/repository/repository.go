// Package repository declares the persistence ports of the wallet service.
// Implementations live in repository/postgres.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/events"
	"github.com/tripsettle/tripsettle/internal/models"
)

// WalletRepo loads and stores wallet aggregates with their children.
type WalletRepo interface {
	// Create wallet for user. One wallet per user; a second create fails
	// with a wrapped unique-violation error.
	CreateWallet(ctx context.Context, wallet models.Wallet) (models.Wallet, error)

	// Load wallet with accounts, bank accounts and credits.
	// Must return apperrors.ErrWalletNotFound when missing.
	GetByUser(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	GetByID(ctx context.Context, walletID uuid.UUID) (models.Wallet, error)

	// Wallets are never deleted, only deactivated.
	SetActive(ctx context.Context, walletID uuid.UUID, active bool) error
}

type AccountRepo interface {
	Create(ctx context.Context, account models.CurrencyAccount) error

	// CreateOrGet inserts the account or, when a concurrent create for the
	// same wallet and currency won the race, returns the existing row.
	CreateOrGet(ctx context.Context, account models.CurrencyAccount) (models.CurrencyAccount, error)

	// GetForUpdate locks the account row for the duration of the enclosing
	// transaction. All balance mutations must go through this lock so that
	// concurrent debits serialize per account.
	GetForUpdate(ctx context.Context, accountID uuid.UUID) (models.CurrencyAccount, error)
	GetByWalletCurrency(ctx context.Context, walletID uuid.UUID, currency models.Currency, forUpdate bool) (models.CurrencyAccount, error)

	// UpdateBalance persists the balance produced by ProcessTransaction.
	// Only valid inside the transaction that holds the row lock.
	UpdateBalance(ctx context.Context, account models.CurrencyAccount) error
}

type TransactionRepo interface {
	// Create persists a transaction. A purchase or pending deposit whose
	// order context is already claimed must fail with
	// apperrors.ErrDuplicatePurchase.
	Create(ctx context.Context, tx models.Transaction) (models.Transaction, error)

	// Update persists status and processed-at changes.
	Update(ctx context.Context, tx models.Transaction) error

	GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// GetPendingDeposit finds the top-up transaction for a gateway
	// reference. Must return apperrors.ErrTopUpNotFound when missing.
	GetPendingDeposit(ctx context.Context, paymentReferenceID string) (models.Transaction, error)

	// FindPurchaseByOrderContext returns the open or completed purchase
	// claimed for the order context, apperrors.ErrTransactionNotFound if none.
	FindPurchaseByOrderContext(ctx context.Context, orderContext string) (models.Transaction, error)

	// SumRefunded returns the total of completed refunds referencing the
	// given purchase.
	SumRefunded(ctx context.Context, purchaseID uuid.UUID) (models.Money, error)
}

type CreditRepo interface {
	Create(ctx context.Context, credit models.Credit) error

	// GetUnsettledByWallet locks and returns the single unsettled credit.
	// Must return apperrors.ErrCreditNotFound when there is none.
	GetUnsettledByWallet(ctx context.Context, walletID uuid.UUID) (models.Credit, error)

	Update(ctx context.Context, credit models.Credit) error
}

type BankAccountRepo interface {
	Create(ctx context.Context, account models.BankAccount) error
	Update(ctx context.Context, account models.BankAccount) error
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]models.BankAccount, error)
}

// InboxRepo stores processed-event markers for at-most-once effects
// despite at-least-once delivery.
type InboxRepo interface {
	// Seen reports whether the handler already processed the event.
	Seen(ctx context.Context, handler string, eventID uuid.UUID) (bool, error)

	// MarkProcessed records the marker. Returns false when the marker
	// already existed (lost race with a concurrent redelivery).
	MarkProcessed(ctx context.Context, handler string, eventID uuid.UUID) (bool, error)
}

// OutboxRepo captures integration events transactionally and hands them
// to the dispatcher.
type OutboxRepo interface {
	Enqueue(ctx context.Context, event events.Event) error

	// ClaimBatch locks up to limit due messages, skipping ones claimed by
	// concurrent dispatchers.
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]models.OutboxMessage, error)

	MarkSent(ctx context.Context, id int64, now time.Time) error

	// Reschedule bumps the attempt counter and sets the next attempt time;
	// when attempts exceeded the bound the message is marked failed.
	Reschedule(ctx context.Context, id int64, attempts int, nextAttempt time.Time, failed bool) error
}

// Storage aggregates the repositories and runs closures in one database
// transaction.
type Storage interface {
	Wallet() WalletRepo
	Account() AccountRepo
	Transaction() TransactionRepo
	Credit() CreditRepo
	BankAccount() BankAccountRepo
	Inbox() InboxRepo
	Outbox() OutboxRepo

	// InTx runs fn against a transaction-backed Storage. Commit happens
	// only when fn returns nil.
	InTx(ctx context.Context, fn func(Storage) error) error
}
