package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tripsettle/tripsettle/internal/apperrors"
)

func newTestCredit(t *testing.T, limit int64, dueDate time.Time) *Credit {
	t.Helper()

	l, err := MoneyFromInt(limit, CurrencyIRR)
	require.NoError(t, err)

	return &Credit{
		ID:          uuid.New(),
		WalletID:    uuid.New(),
		CreditLimit: l,
		UsedCredit:  ZeroMoney(CurrencyIRR),
		GrantedDate: time.Now(),
		DueDate:     dueDate,
		Status:      CreditActive,
	}
}

func TestCreditUse(t *testing.T) {
	now := time.Now()
	dueDate := now.Add(30 * 24 * time.Hour)

	t.Run("use ok", func(t *testing.T) {
		c := newTestCredit(t, 1000, dueDate)
		amount, _ := MoneyFromInt(300, CurrencyIRR)

		err := c.Use(amount, now)

		require.NoError(t, err)
		require.True(t, c.UsedCredit.Equal(amount))
		require.True(t, c.AvailableCredit().Amount.Equal(decimalFromInt(700)))
	})

	t.Run("limit enforced", func(t *testing.T) {
		c := newTestCredit(t, 1000, dueDate)
		amount, _ := MoneyFromInt(1001, CurrencyIRR)

		err := c.Use(amount, now)

		require.ErrorIs(t, err, apperrors.ErrCreditLimitExceeded)
		require.True(t, c.UsedCredit.IsZero())
	})

	t.Run("use past due date transitions to overdue", func(t *testing.T) {
		c := newTestCredit(t, 1000, now.Add(-time.Hour))
		amount, _ := MoneyFromInt(100, CurrencyIRR)

		err := c.Use(amount, now)

		require.ErrorIs(t, err, apperrors.ErrCreditOverdue)
		require.Equal(t, CreditOverdue, c.Status, "the overdue transition must stick even though usage failed")
		require.True(t, c.UsedCredit.IsZero())
	})

	t.Run("overdue credit rejects usage", func(t *testing.T) {
		c := newTestCredit(t, 1000, dueDate)
		c.Status = CreditOverdue
		amount, _ := MoneyFromInt(100, CurrencyIRR)

		err := c.Use(amount, now)

		require.ErrorIs(t, err, apperrors.ErrCreditOverdue)
	})

	t.Run("settled credit rejects usage", func(t *testing.T) {
		c := newTestCredit(t, 1000, dueDate)
		c.Settle(uuid.New(), now)
		amount, _ := MoneyFromInt(100, CurrencyIRR)

		err := c.Use(amount, now)

		require.ErrorIs(t, err, apperrors.ErrCreditNotActive)
	})
}

func TestCreditSettle(t *testing.T) {
	now := time.Now()

	t.Run("settle is idempotent", func(t *testing.T) {
		c := newTestCredit(t, 1000, now.Add(time.Hour))
		firstTx := uuid.New()

		c.Settle(firstTx, now)
		c.Settle(uuid.New(), now.Add(time.Minute))

		require.Equal(t, CreditSettled, c.Status)
		require.Equal(t, firstTx, *c.SettlementTransactionID, "repeat settle must keep the original reference")
		require.Equal(t, now, *c.SettledDate)
	})
}

func TestCreditExtendDueDate(t *testing.T) {
	now := time.Now()
	dueDate := now.Add(24 * time.Hour)

	t.Run("extend ok", func(t *testing.T) {
		c := newTestCredit(t, 1000, dueDate)
		newDate := dueDate.Add(7 * 24 * time.Hour)

		err := c.ExtendDueDate(newDate)

		require.NoError(t, err)
		require.Equal(t, newDate, c.DueDate)
	})

	t.Run("extend reverts overdue to active", func(t *testing.T) {
		c := newTestCredit(t, 1000, dueDate)
		c.Status = CreditOverdue

		err := c.ExtendDueDate(dueDate.Add(7 * 24 * time.Hour))

		require.NoError(t, err)
		require.Equal(t, CreditActive, c.Status)
	})

	t.Run("new date must be after current", func(t *testing.T) {
		c := newTestCredit(t, 1000, dueDate)

		err := c.ExtendDueDate(dueDate.Add(-time.Hour))

		require.ErrorIs(t, err, apperrors.ErrCreditDueDateInvalid)
	})

	t.Run("settled credit not extendable", func(t *testing.T) {
		c := newTestCredit(t, 1000, dueDate)
		c.Settle(uuid.New(), now)

		err := c.ExtendDueDate(dueDate.Add(time.Hour))

		require.ErrorIs(t, err, apperrors.ErrCreditNotActive)
	})
}
