package apperrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrWalletInactive = errors.New("wallet is not active")

	ErrAccountNotFound      = errors.New("currency account not found")
	ErrAccountInactive      = errors.New("currency account is not active")
	ErrAccountDeleted       = errors.New("currency account is deleted")
	ErrTooManyAccounts      = errors.New("wallet reached the currency account limit")
	ErrCurrencyNotSupported = errors.New("currency is not supported")
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrAmountNotPositive    = errors.New("amount must be positive")
	ErrNegativeAmount       = errors.New("amount must not be negative")

	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrTransactionNotPending = errors.New("transaction is not pending")
	ErrTransactionCompleted  = errors.New("completed transaction is immutable")
	ErrTransactionMismatch   = errors.New("transaction belongs to another account")
	ErrDuplicatePurchase     = errors.New("purchase already exists for this order")
	ErrRefundExceedsPurchase = errors.New("refund amount exceeds refundable purchase amount")
	ErrNotRefundable         = errors.New("transaction is not a completed purchase")
	ErrTopUpNotFound         = errors.New("pending top-up not found for reference")

	ErrTooManyBankAccounts  = errors.New("wallet reached the bank account limit")
	ErrDuplicateBankAccount = errors.New("bank account number already registered in wallet")
	ErrBankAccountNotFound  = errors.New("bank account not found")

	ErrActiveCreditExists   = errors.New("wallet already has an active credit")
	ErrCreditNotFound       = errors.New("credit not found")
	ErrCreditNotActive      = errors.New("credit is not active")
	ErrCreditOverdue        = errors.New("credit is overdue")
	ErrCreditLimitExceeded  = errors.New("credit limit exceeded")
	ErrCreditDueDateInvalid = errors.New("credit due date must be after the current due date")

	ErrOrderAlreadyPaid = errors.New("order is already paid")

	ErrInsufficientBalance = errors.New("insufficient balance")
)

// InsufficientBalanceError carries the context callers need to build a
// top-up requirement. errors.Is(err, ErrInsufficientBalance) matches it.
type InsufficientBalanceError struct {
	WalletID  uuid.UUID
	Requested string
	Available string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: wallet %s requested %s available %s", e.WalletID, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
