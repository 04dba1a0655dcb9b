package events

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger-side integration events. The wallet service writes them to the
// outbox in the transaction that applied the movement; the dispatcher
// publishes them after commit.

type WalletDepositedEvent struct {
	EventID       uuid.UUID       `json:"event_id" validate:"required"`
	WalletID      uuid.UUID       `json:"wallet_id" validate:"required"`
	UserID        uuid.UUID       `json:"user_id" validate:"required"`
	TransactionID uuid.UUID       `json:"transaction_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Currency      string          `json:"currency" validate:"required"`
}

func (WalletDepositedEvent) Kind() string    { return "WalletDepositedEvent" }
func (e WalletDepositedEvent) ID() uuid.UUID { return e.EventID }

type RefundCompletedEvent struct {
	EventID              uuid.UUID       `json:"event_id" validate:"required"`
	WalletID             uuid.UUID       `json:"wallet_id" validate:"required"`
	UserID               uuid.UUID       `json:"user_id" validate:"required"`
	TransactionID        uuid.UUID       `json:"transaction_id" validate:"required"`
	RelatedTransactionID uuid.UUID       `json:"related_transaction_id" validate:"required"`
	Amount               decimal.Decimal `json:"amount" validate:"required"`
	Currency             string          `json:"currency" validate:"required"`
}

func (RefundCompletedEvent) Kind() string    { return "RefundCompletedEvent" }
func (e RefundCompletedEvent) ID() uuid.UUID { return e.EventID }

type TransferInitiatedEvent struct {
	EventID       uuid.UUID       `json:"event_id" validate:"required"`
	WalletID      uuid.UUID       `json:"wallet_id" validate:"required"`
	UserID        uuid.UUID       `json:"user_id" validate:"required"`
	TransactionID uuid.UUID       `json:"transaction_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Currency      string          `json:"currency" validate:"required"`
}

func (TransferInitiatedEvent) Kind() string    { return "TransferInitiatedEvent" }
func (e TransferInitiatedEvent) ID() uuid.UUID { return e.EventID }

type TransferCompletedEvent struct {
	EventID              uuid.UUID       `json:"event_id" validate:"required"`
	WalletID             uuid.UUID       `json:"wallet_id" validate:"required"`
	UserID               uuid.UUID       `json:"user_id" validate:"required"`
	TransactionID        uuid.UUID       `json:"transaction_id" validate:"required"`
	RelatedTransactionID uuid.UUID       `json:"related_transaction_id" validate:"required"`
	Amount               decimal.Decimal `json:"amount" validate:"required"`
	Currency             string          `json:"currency" validate:"required"`
}

func (TransferCompletedEvent) Kind() string    { return "TransferCompletedEvent" }
func (e TransferCompletedEvent) ID() uuid.UUID { return e.EventID }
