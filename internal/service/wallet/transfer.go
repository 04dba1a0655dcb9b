package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/models"
	"github.com/tripsettle/tripsettle/internal/repository"
)

type TransferResult struct {
	Out models.Transaction
	In  models.Transaction
}

// Transfer moves amount between two wallets as two linked transactions.
// The source debit and destination credit are separate units; when the
// destination application fails after the source committed, the source is
// compensated with a reversing transaction instead of being left
// half-applied.
func (s *Service) Transfer(ctx context.Context, fromUserID uuid.UUID, toUserID uuid.UUID, amount models.Money, description string) (TransferResult, error) {
	var result TransferResult

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := s.lockAccount(ctx, st, fromUserID, amount.Currency)
		if err != nil {
			return err
		}

		out, err := account.CreateTransaction(fromUserID, amount, models.DirectionOut, models.TypeTransferOut, description)
		if err != nil {
			return err
		}
		if out, err = st.Transaction().Create(ctx, out); err != nil {
			return err
		}
		if err := s.apply(ctx, st, &account, &out); err != nil {
			return err
		}
		result.Out = out
		return nil
	})
	if err != nil {
		return result, err
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := s.lockAccount(ctx, st, toUserID, amount.Currency)
		if err != nil {
			return err
		}

		in, err := account.CreateTransaction(toUserID, amount, models.DirectionIn, models.TypeTransferIn, description,
			models.WithRelatedTransaction(result.Out.ID))
		if err != nil {
			return err
		}
		if in, err = st.Transaction().Create(ctx, in); err != nil {
			return err
		}
		if err := s.apply(ctx, st, &account, &in); err != nil {
			return err
		}
		result.In = in
		return nil
	})
	if err != nil {
		return result, s.compensateTransfer(ctx, fromUserID, result.Out, err)
	}

	return result, nil
}

// compensateTransfer restores the source balance after a failed
// destination credit by applying a reversing transaction that references
// the original debit.
func (s *Service) compensateTransfer(ctx context.Context, fromUserID uuid.UUID, out models.Transaction, cause error) error {
	reverseErr := s.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := st.Account().GetForUpdate(ctx, out.AccountID)
		if err != nil {
			return err
		}

		reversal, err := account.CreateTransaction(fromUserID, out.Amount, models.DirectionIn, models.TypeRefund, "transfer reversal",
			models.WithRelatedTransaction(out.ID))
		if err != nil {
			return err
		}
		if reversal, err = st.Transaction().Create(ctx, reversal); err != nil {
			return err
		}
		return s.apply(ctx, st, &account, &reversal)
	})
	if reverseErr != nil {
		// Source stays debited; this needs an operator.
		s.logger.Error("Transfer compensation failed",
			"transfer_out", out.ID, "error", reverseErr, "cause", cause)
		return fmt.Errorf("transfer failed and compensation failed: %w (cause: %v)", reverseErr, cause)
	}

	s.logger.Warn("Transfer reversed after destination failure", "transfer_out", out.ID, "error", cause)
	return fmt.Errorf("transfer failed, source reversed: %w", cause)
}
