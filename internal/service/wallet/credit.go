package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/models"
	"github.com/tripsettle/tripsettle/internal/repository"
)

// AssignCredit grants a B2B credit line to the wallet. Only one unsettled
// credit may exist per wallet; the partial unique index backs the
// aggregate check under concurrency.
func (s *Service) AssignCredit(ctx context.Context, userID uuid.UUID, limit models.Money, dueDate time.Time, description string) (models.Credit, error) {
	var credit models.Credit

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		c, err := w.AssignCredit(limit, dueDate, description)
		if err != nil {
			return err
		}
		credit = *c
		return st.Credit().Create(ctx, credit)
	})
	return credit, err
}

// UseCredit consumes part of the wallet's active credit line. A usage
// attempt past the due date fails with ErrCreditOverdue, and the overdue
// transition it caused is committed even though the usage is rejected.
func (s *Service) UseCredit(ctx context.Context, userID uuid.UUID, amount models.Money) (models.Credit, error) {
	var credit models.Credit
	var domainErr error

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		credit, err = st.Credit().GetUnsettledByWallet(ctx, w.ID)
		if err != nil {
			return err
		}

		useErr := credit.Use(amount, s.now())
		if useErr != nil {
			if errors.Is(useErr, apperrors.ErrCreditOverdue) {
				// Persist the auto-transition to overdue before failing.
				if err := st.Credit().Update(ctx, credit); err != nil {
					return err
				}
			}
			domainErr = useErr
			return nil
		}

		return st.Credit().Update(ctx, credit)
	})
	if err != nil {
		return credit, err
	}
	return credit, domainErr
}

// SettleCredit closes the credit line. Settling twice is a no-op.
func (s *Service) SettleCredit(ctx context.Context, userID uuid.UUID, settlementTransactionID uuid.UUID) (models.Credit, error) {
	var credit models.Credit

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		credit, err = st.Credit().GetUnsettledByWallet(ctx, w.ID)
		if errors.Is(err, apperrors.ErrCreditNotFound) {
			// Already settled; keep the operation idempotent.
			return nil
		}
		if err != nil {
			return err
		}

		credit.Settle(settlementTransactionID, s.now())
		return st.Credit().Update(ctx, credit)
	})
	return credit, err
}

// ExtendCreditDueDate pushes the due date forward; an overdue credit
// reverts to active.
func (s *Service) ExtendCreditDueDate(ctx context.Context, userID uuid.UUID, newDate time.Time) (models.Credit, error) {
	var credit models.Credit

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		w, err := st.Wallet().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		credit, err = st.Credit().GetUnsettledByWallet(ctx, w.ID)
		if err != nil {
			return err
		}
		if err := credit.ExtendDueDate(newDate); err != nil {
			return err
		}
		return st.Credit().Update(ctx, credit)
	})
	return credit, err
}
