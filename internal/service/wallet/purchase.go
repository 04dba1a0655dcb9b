package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/models"
	"github.com/tripsettle/tripsettle/internal/repository"
)

// TopUpRequirement tells the caller how much must be raised through the
// payment gateway before the purchase can complete.
type TopUpRequirement struct {
	Amount    models.Money
	Authority string
	DepositID uuid.UUID
}

type PurchaseResult struct {
	// Paid is true when the balance covered the purchase and the debit
	// completed synchronously.
	Paid     bool
	Purchase models.Transaction

	// TopUp is set when the balance did not cover the purchase. The
	// purchase stays pending until ConfirmTopUp.
	TopUp *TopUpRequirement
}

// Purchase pays amount for the order identified by orderContext. When the
// balance covers it the debit happens synchronously; otherwise the
// shortfall is requested from the gateway and a pending deposit plus a
// pending purchase are recorded, to be applied together by ConfirmTopUp.
//
// Requests are idempotent per orderContext: any open or completed
// purchase for the same order rejects the retry without touching balance.
func (s *Service) Purchase(ctx context.Context, userID uuid.UUID, amount models.Money, orderContext string) (PurchaseResult, error) {
	var result PurchaseResult
	var shortfall models.Money
	needTopUp := false

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := s.lockAccount(ctx, st, userID, amount.Currency)
		if err != nil {
			return err
		}
		if err := s.rejectDuplicate(ctx, st, orderContext); err != nil {
			return err
		}

		if !account.HasSufficientBalance(amount) {
			_, shortfall, err = account.PreparePurchaseWithTopUp(userID, amount, orderContext)
			if err != nil {
				return err
			}
			needTopUp = true
			return nil
		}

		purchase, err := account.CreateTransaction(userID, amount, models.DirectionOut, models.TypePurchase, "order payment",
			models.WithOrderContext(orderContext))
		if err != nil {
			return err
		}
		if purchase, err = st.Transaction().Create(ctx, purchase); err != nil {
			return err
		}
		if err := s.apply(ctx, st, &account, &purchase); err != nil {
			return err
		}

		result = PurchaseResult{Paid: true, Purchase: purchase}
		return nil
	})
	if err != nil {
		return result, err
	}
	if !needTopUp {
		return result, nil
	}

	return s.requestTopUp(ctx, userID, amount, shortfall, orderContext)
}

// requestTopUp is the suspension point of the purchase flow: the gateway
// call happens outside any database transaction. Local state is recorded
// only after the gateway accepted the request.
func (s *Service) requestTopUp(ctx context.Context, userID uuid.UUID, amount models.Money, shortfall models.Money, orderContext string) (PurchaseResult, error) {
	var result PurchaseResult

	authority, err := s.gateway.RequestTopUp(ctx, shortfall, orderContext)
	if err != nil {
		return result, fmt.Errorf("top-up request failed: %w", err)
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := s.lockAccount(ctx, st, userID, amount.Currency)
		if err != nil {
			return err
		}
		if err := s.rejectDuplicate(ctx, st, orderContext); err != nil {
			return err
		}

		purchase, _, err := account.PreparePurchaseWithTopUp(userID, amount, orderContext)
		if err != nil {
			return err
		}
		if purchase, err = st.Transaction().Create(ctx, purchase); err != nil {
			return err
		}

		deposit, err := account.CreateTransaction(userID, shortfall, models.DirectionIn, models.TypeDeposit, "purchase top-up",
			models.WithPaymentReference(authority),
			models.WithRelatedTransaction(purchase.ID))
		if err != nil {
			return err
		}
		if deposit, err = st.Transaction().Create(ctx, deposit); err != nil {
			return err
		}

		result = PurchaseResult{
			Purchase: purchase,
			TopUp: &TopUpRequirement{
				Amount:    shortfall,
				Authority: authority,
				DepositID: deposit.ID,
			},
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	s.logger.Info("Purchase pending gateway top-up",
		"order_context", orderContext, "shortfall", shortfall.String(), "authority", authority)
	return result, nil
}

// ConfirmTopUp handles the gateway callback for a top-up authority. It
// verifies the authority with the gateway, then applies the deposit and
// the pending purchase in one database transaction: a concurrent reader
// never observes the topped-up balance without the purchase debit.
func (s *Service) ConfirmTopUp(ctx context.Context, authority string) (models.Transaction, error) {
	verified, err := s.gateway.Verify(ctx, authority)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("top-up verification failed: %w", err)
	}

	var purchase models.Transaction
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		deposit, err := st.Transaction().GetPendingDeposit(ctx, authority)
		if err != nil {
			return err
		}
		if !deposit.Amount.Amount.Equal(verified.Amount) {
			return fmt.Errorf("gateway settled %s but pending deposit holds %s", verified.Amount, deposit.Amount.Amount)
		}

		account, err := st.Account().GetForUpdate(ctx, deposit.AccountID)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, st, &account, &deposit); err != nil {
			return err
		}

		if deposit.RelatedTransactionID == nil {
			return apperrors.ErrTransactionNotFound
		}
		purchase, err = st.Transaction().GetByID(ctx, *deposit.RelatedTransactionID)
		if err != nil {
			return err
		}
		return s.apply(ctx, st, &account, &purchase)
	})
	if err != nil {
		return purchase, err
	}

	s.logger.Info("Top-up confirmed, purchase completed",
		"authority", authority, "order_context", purchase.OrderContext, "amount", purchase.Amount.String())
	return purchase, nil
}

func (s *Service) rejectDuplicate(ctx context.Context, st repository.Storage, orderContext string) error {
	_, err := st.Transaction().FindPurchaseByOrderContext(ctx, orderContext)
	switch {
	case err == nil:
		return apperrors.ErrDuplicatePurchase
	case errors.Is(err, apperrors.ErrTransactionNotFound):
		return nil
	default:
		return err
	}
}
