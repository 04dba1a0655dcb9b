package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tripsettle/tripsettle/internal/apperrors"
)

// Currency is the ISO-like code of a ledger currency.
type Currency string

const (
	CurrencyIRR Currency = "IRR"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// SupportedCurrencies is the allow-list for currency account creation.
var SupportedCurrencies = []Currency{CurrencyIRR, CurrencyUSD, CurrencyEUR}

func (c Currency) Supported() bool {
	for _, s := range SupportedCurrencies {
		if c == s {
			return true
		}
	}
	return false
}

// Money is an immutable amount + currency pair.
// Arithmetic between two values requires equal currency.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewMoney rejects negative amounts. Debit magnitudes are expressed as
// positive amounts with an explicit direction on the transaction.
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if amount.IsNegative() {
		return Money{}, apperrors.ErrNegativeAmount
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// MoneyFromInt is a convenience constructor for whole amounts.
func MoneyFromInt(amount int64, currency Currency) (Money, error) {
	return NewMoney(decimal.NewFromInt(amount), currency)
}

func ZeroMoney(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", apperrors.ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub fails when the result would be negative. The ledger never represents
// negative money, it represents debits as positive amounts with direction.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", apperrors.ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	if m.Amount.LessThan(other.Amount) {
		return Money{}, apperrors.ErrNegativeAmount
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

func (m Money) GreaterOrEqual(other Money) (bool, error) {
	if m.Currency != other.Currency {
		return false, fmt.Errorf("%w: %s vs %s", apperrors.ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return m.Amount.GreaterThanOrEqual(other.Amount), nil
}

func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.String() + " " + string(m.Currency)
}
