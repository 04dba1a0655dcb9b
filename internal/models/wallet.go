package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tripsettle/tripsettle/internal/apperrors"
)

const (
	MaxCurrencyAccounts = 5
	MaxBankAccounts     = 5
)

// Wallet is the aggregate root owning currency accounts, bank accounts and
// at most one active credit per user. Children are created only through
// the wallet's methods.
type Wallet struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Active       bool
	Accounts     []CurrencyAccount
	BankAccounts []BankAccount
	Credits      []Credit
	CreatedAt    time.Time
}

func NewWallet(userID uuid.UUID) Wallet {
	return Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

// Account returns the account for currency, skipping deleted ones.
func (w *Wallet) Account(currency Currency) (*CurrencyAccount, bool) {
	for i := range w.Accounts {
		if w.Accounts[i].Currency == currency && !w.Accounts[i].Deleted {
			return &w.Accounts[i], true
		}
	}
	return nil, false
}

// CreateCurrencyAccount is idempotent: an existing account for the
// currency is returned as is.
func (w *Wallet) CreateCurrencyAccount(currency Currency) (*CurrencyAccount, error) {
	if !w.Active {
		return nil, apperrors.ErrWalletInactive
	}
	if acc, ok := w.Account(currency); ok {
		return acc, nil
	}
	if !currency.Supported() {
		return nil, apperrors.ErrCurrencyNotSupported
	}
	if len(w.Accounts) >= MaxCurrencyAccounts {
		return nil, apperrors.ErrTooManyAccounts
	}

	w.Accounts = append(w.Accounts, CurrencyAccount{
		ID:        uuid.New(),
		WalletID:  w.ID,
		Currency:  currency,
		Balance:   ZeroMoney(currency),
		Active:    true,
		CreatedAt: time.Now(),
	})
	return &w.Accounts[len(w.Accounts)-1], nil
}

// AddBankAccount enforces the per-wallet count limit and account number
// uniqueness. The first account becomes the default automatically.
func (w *Wallet) AddBankAccount(number string, bankName string) (*BankAccount, error) {
	if !w.Active {
		return nil, apperrors.ErrWalletInactive
	}
	active := 0
	for i := range w.BankAccounts {
		if w.BankAccounts[i].Number == number && w.BankAccounts[i].Active {
			return nil, apperrors.ErrDuplicateBankAccount
		}
		if w.BankAccounts[i].Active {
			active++
		}
	}
	if active >= MaxBankAccounts {
		return nil, apperrors.ErrTooManyBankAccounts
	}

	w.BankAccounts = append(w.BankAccounts, BankAccount{
		ID:        uuid.New(),
		WalletID:  w.ID,
		Number:    number,
		BankName:  bankName,
		Default:   active == 0,
		Active:    true,
		CreatedAt: time.Now(),
	})
	return &w.BankAccounts[len(w.BankAccounts)-1], nil
}

// RemoveBankAccount deactivates the account. When the default is removed
// the first remaining active account is promoted.
func (w *Wallet) RemoveBankAccount(id uuid.UUID) error {
	var removed *BankAccount
	for i := range w.BankAccounts {
		if w.BankAccounts[i].ID == id && w.BankAccounts[i].Active {
			removed = &w.BankAccounts[i]
			break
		}
	}
	if removed == nil {
		return apperrors.ErrBankAccountNotFound
	}

	wasDefault := removed.Default
	removed.Active = false
	removed.Default = false

	if wasDefault {
		for i := range w.BankAccounts {
			if w.BankAccounts[i].Active {
				w.BankAccounts[i].Default = true
				break
			}
		}
	}
	return nil
}

// ActiveCredit returns the single active or overdue credit, if any.
func (w *Wallet) ActiveCredit() (*Credit, bool) {
	for i := range w.Credits {
		if w.Credits[i].Status != CreditSettled {
			return &w.Credits[i], true
		}
	}
	return nil, false
}

// AssignCredit grants a credit line. Only one unsettled credit may exist
// per wallet at a time.
func (w *Wallet) AssignCredit(limit Money, dueDate time.Time, description string) (*Credit, error) {
	if !w.Active {
		return nil, apperrors.ErrWalletInactive
	}
	if _, ok := w.ActiveCredit(); ok {
		return nil, apperrors.ErrActiveCreditExists
	}
	if !limit.IsPositive() {
		return nil, apperrors.ErrAmountNotPositive
	}
	now := time.Now()
	if !dueDate.After(now) {
		return nil, apperrors.ErrCreditDueDateInvalid
	}

	w.Credits = append(w.Credits, Credit{
		ID:          uuid.New(),
		WalletID:    w.ID,
		CreditLimit: limit,
		UsedCredit:  ZeroMoney(limit.Currency),
		GrantedDate: now,
		DueDate:     dueDate,
		Status:      CreditActive,
		Description: description,
	})
	return &w.Credits[len(w.Credits)-1], nil
}

// TotalBalanceIRR sums the balances of active IRR accounts. Other
// currencies are not converted here; conversion is a collaborator concern.
func (w *Wallet) TotalBalanceIRR() Money {
	total := decimal.Zero
	for i := range w.Accounts {
		acc := &w.Accounts[i]
		if acc.Currency == CurrencyIRR && acc.Active && !acc.Deleted {
			total = total.Add(acc.Balance.Amount)
		}
	}
	return Money{Amount: total, Currency: CurrencyIRR}
}
