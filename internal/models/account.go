package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/apperrors"
)

// CurrencyAccount holds the balance of one currency inside a wallet.
// The balance never goes below zero and is mutated only by
// ProcessTransaction. Callers must serialize concurrent processing per
// account (the postgres repository does it with a row lock).
type CurrencyAccount struct {
	ID        uuid.UUID
	WalletID  uuid.UUID
	Currency  Currency
	Balance   Money
	Active    bool
	Deleted   bool
	CreatedAt time.Time
}

func (a *CurrencyAccount) usable() error {
	switch {
	case a.Deleted:
		return apperrors.ErrAccountDeleted
	case !a.Active:
		return apperrors.ErrAccountInactive
	default:
		return nil
	}
}

// TxOption tweaks a transaction built by CreateTransaction.
type TxOption func(*Transaction)

func WithOrderContext(orderContext string) TxOption {
	return func(t *Transaction) { t.OrderContext = orderContext }
}

func WithPaymentReference(reference string) TxOption {
	return func(t *Transaction) { t.PaymentReferenceID = reference }
}

func WithRelatedTransaction(id uuid.UUID) TxOption {
	return func(t *Transaction) { t.RelatedTransactionID = &id }
}

func WithTransactionID(id uuid.UUID) TxOption {
	return func(t *Transaction) { t.ID = id }
}

// CreateTransaction validates the movement and returns it in pending state.
// It does not touch the balance. Outgoing movements require sufficient
// balance at creation time; ProcessTransaction re-checks before applying.
func (a *CurrencyAccount) CreateTransaction(userID uuid.UUID, amount Money, direction Direction, txType TransactionType, description string, opts ...TxOption) (Transaction, error) {
	if err := a.usable(); err != nil {
		return Transaction{}, err
	}
	if amount.Currency != a.Currency {
		return Transaction{}, apperrors.ErrCurrencyMismatch
	}
	if !amount.IsPositive() {
		return Transaction{}, apperrors.ErrAmountNotPositive
	}
	if direction == DirectionOut && !a.HasSufficientBalance(amount) {
		return Transaction{}, &apperrors.InsufficientBalanceError{
			WalletID:  a.WalletID,
			Requested: amount.String(),
			Available: a.Balance.String(),
		}
	}

	t := Transaction{
		ID:          uuid.New(),
		WalletID:    a.WalletID,
		AccountID:   a.ID,
		UserID:      userID,
		Amount:      amount,
		Direction:   direction,
		Type:        txType,
		Status:      StatusPending,
		Description: description,
		CreatedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t, nil
}

// PreparePurchaseWithTopUp builds a pending purchase that the balance does
// not yet cover and returns the shortfall a gateway top-up must raise.
// The purchase is only applied after the matching deposit, so the usual
// sufficiency check at creation time is deliberately skipped.
func (a *CurrencyAccount) PreparePurchaseWithTopUp(userID uuid.UUID, amount Money, orderContext string) (Transaction, Money, error) {
	if err := a.usable(); err != nil {
		return Transaction{}, Money{}, err
	}
	if amount.Currency != a.Currency {
		return Transaction{}, Money{}, apperrors.ErrCurrencyMismatch
	}
	if !amount.IsPositive() {
		return Transaction{}, Money{}, apperrors.ErrAmountNotPositive
	}
	shortfall, err := amount.Sub(a.Balance)
	if err != nil {
		return Transaction{}, Money{}, err
	}

	t := Transaction{
		ID:           uuid.New(),
		WalletID:     a.WalletID,
		AccountID:    a.ID,
		UserID:       userID,
		Amount:       amount,
		Direction:    DirectionOut,
		Type:         TypePurchase,
		Status:       StatusPending,
		OrderContext: orderContext,
		Description:  "purchase pending top-up",
		CreatedAt:    time.Now(),
	}
	return t, shortfall, nil
}

// ProcessTransaction applies the movement to the balance, marks the
// transaction completed and returns the domain event for the movement.
// It either fully applies or fully fails; outgoing movements are
// re-validated right before applying to close the check-then-act window.
func (a *CurrencyAccount) ProcessTransaction(t *Transaction, now time.Time) ([]Event, error) {
	if t.AccountID != a.ID {
		return nil, apperrors.ErrTransactionMismatch
	}
	if err := a.usable(); err != nil {
		return nil, err
	}
	if !t.Open() {
		return nil, apperrors.ErrTransactionNotPending
	}

	var newBalance Money
	var err error
	switch t.Direction {
	case DirectionIn:
		newBalance, err = a.Balance.Add(t.Amount)
	case DirectionOut:
		if !a.HasSufficientBalance(t.Amount) {
			return nil, &apperrors.InsufficientBalanceError{
				WalletID:  a.WalletID,
				Requested: t.Amount.String(),
				Available: a.Balance.String(),
			}
		}
		newBalance, err = a.Balance.Sub(t.Amount)
	default:
		return nil, apperrors.ErrTransactionNotPending
	}
	if err != nil {
		return nil, err
	}

	if err := t.markCompleted(now); err != nil {
		return nil, err
	}
	a.Balance = newBalance

	return []Event{a.eventFor(t)}, nil
}

func (a *CurrencyAccount) eventFor(t *Transaction) Event {
	var related uuid.UUID
	if t.RelatedTransactionID != nil {
		related = *t.RelatedTransactionID
	}

	switch t.Type {
	case TypePurchase:
		return WalletWithdrawn{WalletID: a.WalletID, AccountID: a.ID, UserID: t.UserID, TransactionID: t.ID, Amount: t.Amount, OrderContext: t.OrderContext}
	case TypeRefund:
		return RefundCompleted{WalletID: a.WalletID, AccountID: a.ID, UserID: t.UserID, TransactionID: t.ID, RelatedTransactionID: related, Amount: t.Amount}
	case TypeTransferOut:
		return TransferInitiated{WalletID: a.WalletID, AccountID: a.ID, UserID: t.UserID, TransactionID: t.ID, Amount: t.Amount}
	case TypeTransferIn:
		return TransferCompleted{WalletID: a.WalletID, AccountID: a.ID, UserID: t.UserID, TransactionID: t.ID, RelatedTransactionID: related, Amount: t.Amount}
	default:
		return WalletDeposited{WalletID: a.WalletID, AccountID: a.ID, UserID: t.UserID, TransactionID: t.ID, Amount: t.Amount}
	}
}

// HasSufficientBalance reports whether an outgoing movement of amount may
// be created against the account.
func (a *CurrencyAccount) HasSufficientBalance(amount Money) bool {
	if a.usable() != nil {
		return false
	}
	ok, err := a.Balance.GreaterOrEqual(amount)
	return err == nil && ok
}
