package models

import "github.com/google/uuid"

// Event is a domain event produced by applying a transaction. Mutating
// methods return events instead of buffering them on the aggregate; the
// service layer persists the mutation and the events in one unit.
type Event interface {
	EventName() string
}

type WalletDeposited struct {
	WalletID      uuid.UUID
	AccountID     uuid.UUID
	UserID        uuid.UUID
	TransactionID uuid.UUID
	Amount        Money
}

func (WalletDeposited) EventName() string { return "WalletDeposited" }

type WalletWithdrawn struct {
	WalletID      uuid.UUID
	AccountID     uuid.UUID
	UserID        uuid.UUID
	TransactionID uuid.UUID
	Amount        Money
	OrderContext  string
}

func (WalletWithdrawn) EventName() string { return "WalletWithdrawn" }

type RefundCompleted struct {
	WalletID             uuid.UUID
	AccountID            uuid.UUID
	UserID               uuid.UUID
	TransactionID        uuid.UUID
	RelatedTransactionID uuid.UUID
	Amount               Money
}

func (RefundCompleted) EventName() string { return "RefundCompleted" }

type TransferInitiated struct {
	WalletID      uuid.UUID
	AccountID     uuid.UUID
	UserID        uuid.UUID
	TransactionID uuid.UUID
	Amount        Money
}

func (TransferInitiated) EventName() string { return "TransferInitiated" }

type TransferCompleted struct {
	WalletID             uuid.UUID
	AccountID            uuid.UUID
	UserID               uuid.UUID
	TransactionID        uuid.UUID
	RelatedTransactionID uuid.UUID
	Amount               Money
}

func (TransferCompleted) EventName() string { return "TransferCompleted" }
