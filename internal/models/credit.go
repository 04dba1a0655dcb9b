package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/apperrors"
)

type CreditStatus string

const (
	CreditActive  CreditStatus = "active"
	CreditOverdue CreditStatus = "overdue"
	CreditSettled CreditStatus = "settled"
)

// Credit is a B2B credit line granted to a wallet. At most one credit per
// wallet may be active; the Wallet aggregate enforces that.
type Credit struct {
	ID                      uuid.UUID
	WalletID                uuid.UUID
	CreditLimit             Money
	UsedCredit              Money
	GrantedDate             time.Time
	DueDate                 time.Time
	SettledDate             *time.Time
	SettlementTransactionID *uuid.UUID
	Status                  CreditStatus
	Description             string
}

func (c *Credit) AvailableCredit() Money {
	available, err := c.CreditLimit.Sub(c.UsedCredit)
	if err != nil {
		return ZeroMoney(c.CreditLimit.Currency)
	}
	return available
}

// Use consumes part of the credit line. A usage attempt past the due date
// transitions the credit to overdue before failing; the caller must
// persist that transition even though the usage itself is rejected.
func (c *Credit) Use(amount Money, now time.Time) error {
	if c.Status == CreditOverdue {
		return apperrors.ErrCreditOverdue
	}
	if c.Status != CreditActive {
		return apperrors.ErrCreditNotActive
	}
	if now.After(c.DueDate) {
		c.Status = CreditOverdue
		return apperrors.ErrCreditOverdue
	}
	if !amount.IsPositive() {
		return apperrors.ErrAmountNotPositive
	}
	ok, err := c.AvailableCredit().GreaterOrEqual(amount)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrCreditLimitExceeded
	}

	used, err := c.UsedCredit.Add(amount)
	if err != nil {
		return err
	}
	c.UsedCredit = used
	return nil
}

// Settle is an idempotent terminal transition. Settling an already settled
// credit is a no-op and keeps the original settlement reference.
func (c *Credit) Settle(settlementTransactionID uuid.UUID, now time.Time) {
	if c.Status == CreditSettled {
		return
	}
	c.Status = CreditSettled
	c.SettledDate = &now
	c.SettlementTransactionID = &settlementTransactionID
}

// ExtendDueDate moves the due date forward and reverts an overdue credit
// back to active.
func (c *Credit) ExtendDueDate(newDate time.Time) error {
	if c.Status == CreditSettled {
		return apperrors.ErrCreditNotActive
	}
	if !newDate.After(c.DueDate) {
		return apperrors.ErrCreditDueDateInvalid
	}
	c.DueDate = newDate
	if c.Status == CreditOverdue {
		c.Status = CreditActive
	}
	return nil
}
