// Package wallet implements the ledger operations: deposits, purchases
// with gateway top-up, refunds, transfers and credit management. The
// ledger is the only shared mutable resource in the system and is mutated
// exclusively here, one locked account row at a time.
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/events"
	"github.com/tripsettle/tripsettle/internal/logger"
	"github.com/tripsettle/tripsettle/internal/models"
	"github.com/tripsettle/tripsettle/internal/repository"
	"github.com/tripsettle/tripsettle/internal/service/gateway"
)

// topUpGateway is the black-box payment gateway capability the integrated
// purchase flow needs.
type topUpGateway interface {
	RequestTopUp(ctx context.Context, amount models.Money, orderContext string) (string, error)
	Verify(ctx context.Context, authority string) (gateway.VerifiedTopUp, error)
}

type Service struct {
	storage repository.Storage
	gateway topUpGateway
	logger  logger.Logger
	now     func() time.Time
}

func NewService(storage repository.Storage, gw topUpGateway, log logger.Logger) *Service {
	return &Service{
		storage: storage,
		gateway: gw,
		logger:  log,
		now:     time.Now,
	}
}

// CreateWallet registers the per-user wallet with its default IRR account.
// Called once at user registration; wallets are never deleted afterwards.
// Wallet and account rows commit together: a failed create leaves nothing
// behind, so the registration can simply be retried.
func (s *Service) CreateWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	w := models.NewWallet(userID)
	if _, err := w.CreateCurrencyAccount(models.CurrencyIRR); err != nil {
		return w, err
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		created, err := st.Wallet().CreateWallet(ctx, w)
		if err != nil {
			return fmt.Errorf("can't create wallet. Err: %w", err)
		}
		w = created
		return nil
	})
	return w, err
}

func (s *Service) DeactivateWallet(ctx context.Context, userID uuid.UUID) error {
	w, err := s.storage.Wallet().GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.storage.Wallet().SetActive(ctx, w.ID, false)
}

// CreateCurrencyAccount opens an account for the currency, idempotently.
func (s *Service) CreateCurrencyAccount(ctx context.Context, userID uuid.UUID, currency models.Currency) (models.CurrencyAccount, error) {
	var account models.CurrencyAccount

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().GetByUser(ctx, userID)
		if err != nil {
			return err
		}

		existing := len(w.Accounts)
		acc, err := w.CreateCurrencyAccount(currency)
		if err != nil {
			return err
		}
		account = *acc

		if len(w.Accounts) > existing {
			// A concurrent create for the same currency may have won the
			// race after the wallet was read; the loser gets that row.
			account, err = st.Account().CreateOrGet(ctx, account)
			return err
		}
		return nil
	})
	return account, err
}

// Deposit credits the user's account in the deposit currency.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount models.Money, description string) (models.Transaction, error) {
	var deposit models.Transaction

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := s.lockAccount(ctx, st, userID, amount.Currency)
		if err != nil {
			return err
		}

		deposit, err = account.CreateTransaction(userID, amount, models.DirectionIn, models.TypeDeposit, description)
		if err != nil {
			return err
		}
		if deposit, err = st.Transaction().Create(ctx, deposit); err != nil {
			return err
		}
		return s.apply(ctx, st, &account, &deposit)
	})
	return deposit, err
}

// Refund reverses part or all of a completed purchase. The refund always
// references the original purchase and may not exceed what is left
// unrefunded of it.
func (s *Service) Refund(ctx context.Context, purchaseID uuid.UUID, amount models.Money, description string) (models.Transaction, error) {
	var refund models.Transaction

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		original, err := st.Transaction().GetByID(ctx, purchaseID)
		if err != nil {
			return err
		}
		if original.Type != models.TypePurchase || original.Status != models.StatusCompleted {
			return apperrors.ErrNotRefundable
		}

		refunded, err := st.Transaction().SumRefunded(ctx, purchaseID)
		if err != nil {
			return err
		}
		refundable := original.Amount
		if !refunded.Amount.IsZero() {
			if refundable, err = original.Amount.Sub(models.Money{Amount: refunded.Amount, Currency: original.Amount.Currency}); err != nil {
				return err
			}
		}
		ok, err := refundable.GreaterOrEqual(amount)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.ErrRefundExceedsPurchase
		}

		account, err := st.Account().GetForUpdate(ctx, original.AccountID)
		if err != nil {
			return err
		}

		refund, err = account.CreateTransaction(original.UserID, amount, models.DirectionIn, models.TypeRefund, description,
			models.WithRelatedTransaction(original.ID))
		if err != nil {
			return err
		}
		if refund, err = st.Transaction().Create(ctx, refund); err != nil {
			return err
		}
		return s.apply(ctx, st, &account, &refund)
	})
	return refund, err
}

// TotalBalanceIRR sums the active IRR accounts of the user's wallet.
func (s *Service) TotalBalanceIRR(ctx context.Context, userID uuid.UUID) (models.Money, error) {
	w, err := s.storage.Wallet().GetByUser(ctx, userID)
	if err != nil {
		return models.Money{}, err
	}
	return w.TotalBalanceIRR(), nil
}

// AddBankAccount registers a payout account on the wallet; the first one
// becomes the default.
func (s *Service) AddBankAccount(ctx context.Context, userID uuid.UUID, number string, bankName string) (models.BankAccount, error) {
	var account models.BankAccount

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		acc, err := w.AddBankAccount(number, bankName)
		if err != nil {
			return err
		}
		account = *acc
		return st.BankAccount().Create(ctx, account)
	})
	return account, err
}

// RemoveBankAccount deactivates the bank account and, when it was the
// default, promotes the first remaining active one.
func (s *Service) RemoveBankAccount(ctx context.Context, userID uuid.UUID, bankAccountID uuid.UUID) error {
	return s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := w.RemoveBankAccount(bankAccountID); err != nil {
			return err
		}
		for i := range w.BankAccounts {
			if err := st.BankAccount().Update(ctx, w.BankAccounts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// lockAccount resolves the user's account for the currency and takes the
// per-account row lock for the rest of the enclosing transaction.
func (s *Service) lockAccount(ctx context.Context, st repository.Storage, userID uuid.UUID, currency models.Currency) (models.CurrencyAccount, error) {
	w, err := st.Wallet().GetByUser(ctx, userID)
	if err != nil {
		return models.CurrencyAccount{}, err
	}
	if !w.Active {
		return models.CurrencyAccount{}, apperrors.ErrWalletInactive
	}
	return st.Account().GetByWalletCurrency(ctx, w.ID, currency, true)
}

// apply runs ProcessTransaction and persists its effects plus the
// resulting integration events as one unit inside the caller's
// transaction scope.
func (s *Service) apply(ctx context.Context, st repository.Storage, account *models.CurrencyAccount, t *models.Transaction) error {
	domainEvents, err := account.ProcessTransaction(t, s.now())
	if err != nil {
		return err
	}
	if err := st.Account().UpdateBalance(ctx, *account); err != nil {
		return err
	}
	if err := st.Transaction().Update(ctx, *t); err != nil {
		return err
	}
	for _, event := range domainEvents {
		if err := st.Outbox().Enqueue(ctx, integrationEvent(event)); err != nil {
			return err
		}
	}
	return nil
}

// integrationEvent maps a ledger domain event to its outbox contract.
func integrationEvent(event models.Event) events.Event {
	switch e := event.(type) {
	case models.WalletWithdrawn:
		charged := events.WalletChargedEvent{
			EventID:       uuid.New(),
			UserID:        e.UserID,
			TransactionID: e.TransactionID,
			Amount:        e.Amount.Amount,
			Currency:      string(e.Amount.Currency),
		}
		// Order contexts are order ids; keep the reference when it parses.
		if orderID, err := uuid.Parse(e.OrderContext); err == nil {
			charged.OrderID = &orderID
		}
		return charged

	case models.RefundCompleted:
		return events.RefundCompletedEvent{
			EventID:              uuid.New(),
			WalletID:             e.WalletID,
			UserID:               e.UserID,
			TransactionID:        e.TransactionID,
			RelatedTransactionID: e.RelatedTransactionID,
			Amount:               e.Amount.Amount,
			Currency:             string(e.Amount.Currency),
		}

	case models.TransferInitiated:
		return events.TransferInitiatedEvent{
			EventID:       uuid.New(),
			WalletID:      e.WalletID,
			UserID:        e.UserID,
			TransactionID: e.TransactionID,
			Amount:        e.Amount.Amount,
			Currency:      string(e.Amount.Currency),
		}

	case models.TransferCompleted:
		return events.TransferCompletedEvent{
			EventID:              uuid.New(),
			WalletID:             e.WalletID,
			UserID:               e.UserID,
			TransactionID:        e.TransactionID,
			RelatedTransactionID: e.RelatedTransactionID,
			Amount:               e.Amount.Amount,
			Currency:             string(e.Amount.Currency),
		}

	case models.WalletDeposited:
		return events.WalletDepositedEvent{
			EventID:       uuid.New(),
			WalletID:      e.WalletID,
			UserID:        e.UserID,
			TransactionID: e.TransactionID,
			Amount:        e.Amount.Amount,
			Currency:      string(e.Amount.Currency),
		}

	default:
		// Every domain event has a mapping; reaching this is a bug.
		panic(fmt.Sprintf("no integration contract for domain event %T", event))
	}
}
