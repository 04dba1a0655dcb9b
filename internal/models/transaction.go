package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/apperrors"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type TransactionType string

const (
	TypeDeposit     TransactionType = "deposit"
	TypePurchase    TransactionType = "purchase"
	TypeRefund      TransactionType = "refund"
	TypeTransferIn  TransactionType = "transfer_in"
	TypeTransferOut TransactionType = "transfer_out"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
)

// Transaction records a single balance movement. Once completed the amount,
// direction and type are immutable; only an account may apply it.
type Transaction struct {
	ID                   uuid.UUID
	Number               string
	WalletID             uuid.UUID
	AccountID            uuid.UUID
	UserID               uuid.UUID
	Amount               Money
	Direction            Direction
	Type                 TransactionType
	Status               TransactionStatus
	RelatedTransactionID *uuid.UUID
	OrderContext         string
	PaymentReferenceID   string
	Description          string
	CreatedAt            time.Time
	ProcessedAt          *time.Time
}

// Open reports whether the transaction may still be applied or failed.
func (t *Transaction) Open() bool {
	return t.Status == StatusPending || t.Status == StatusProcessing
}

func (t *Transaction) markCompleted(now time.Time) error {
	if !t.Open() {
		return apperrors.ErrTransactionNotPending
	}
	t.Status = StatusCompleted
	t.ProcessedAt = &now
	return nil
}

// MarkFailed transitions an open transaction to its failed terminal state.
func (t *Transaction) MarkFailed(now time.Time) error {
	if !t.Open() {
		return apperrors.ErrTransactionNotPending
	}
	t.Status = StatusFailed
	t.ProcessedAt = &now
	return nil
}

// MarkCancelled is used when a pending top-up is abandoned before its
// gateway callback ever arrives.
func (t *Transaction) MarkCancelled(now time.Time) error {
	if t.Status != StatusPending {
		return apperrors.ErrTransactionNotPending
	}
	t.Status = StatusCancelled
	t.ProcessedAt = &now
	return nil
}
