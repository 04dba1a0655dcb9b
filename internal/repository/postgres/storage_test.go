package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/events"
	"github.com/tripsettle/tripsettle/internal/models"
	"github.com/tripsettle/tripsettle/internal/repository"
	"github.com/tripsettle/tripsettle/internal/testutil"
)

func newWalletWithAccount(t *testing.T) models.Wallet {
	t.Helper()

	w := models.NewWallet(uuid.New())
	_, err := w.CreateCurrencyAccount(models.CurrencyIRR)
	require.NoError(t, err)
	return w
}

func pendingDeposit(t *testing.T, w *models.Wallet, amount int64, opts ...models.TxOption) models.Transaction {
	t.Helper()

	acc, ok := w.Account(models.CurrencyIRR)
	require.True(t, ok)
	m, err := models.MoneyFromInt(amount, models.CurrencyIRR)
	require.NoError(t, err)
	tx, err := acc.CreateTransaction(w.UserID, m, models.DirectionIn, models.TypeDeposit, "", opts...)
	require.NoError(t, err)
	return tx
}

func TestStorage(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Create transaction and storage on the transaction
	// May be called several times(aka transaction in transaction)
	withTx := func(t *testing.T, tx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.WithTx(tx, t, func(ttx pgx.Tx) {
			fn(ttx, NewStorage(ttx))
		})
	}

	t.Run("Wallet", func(t *testing.T) {
		t.Run("create and load", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)

				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				loaded, err := s.Wallet().GetByUser(t.Context(), w.UserID)
				require.NoError(t, err)
				require.Equal(t, w.ID, loaded.ID)
				require.True(t, loaded.Active)
				require.Len(t, loaded.Accounts, 1)
				require.Equal(t, models.CurrencyIRR, loaded.Accounts[0].Currency)
				require.True(t, loaded.Accounts[0].Balance.IsZero())
			})
		})

		t.Run("one wallet per user", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				second := models.NewWallet(w.UserID)
				_, err = s.Wallet().CreateWallet(t.Context(), second)

				require.Error(t, err, "second wallet for the same user must be rejected")
			})
		})

		t.Run("missing wallet", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				_, err := s.Wallet().GetByUser(t.Context(), uuid.New())

				require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
			})
		})

		t.Run("deactivate", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				require.NoError(t, s.Wallet().SetActive(t.Context(), w.ID, false))

				loaded, err := s.Wallet().GetByID(t.Context(), w.ID)
				require.NoError(t, err)
				require.False(t, loaded.Active)

				require.ErrorIs(t, s.Wallet().SetActive(t.Context(), uuid.New(), false), apperrors.ErrWalletNotFound)
			})
		})
	})

	t.Run("Account", func(t *testing.T) {
		t.Run("update balance", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				acc, err := s.Account().GetForUpdate(t.Context(), w.Accounts[0].ID)
				require.NoError(t, err)

				acc.Balance, err = models.MoneyFromInt(1000, models.CurrencyIRR)
				require.NoError(t, err)
				require.NoError(t, s.Account().UpdateBalance(t.Context(), acc))

				reloaded, err := s.Account().GetByWalletCurrency(t.Context(), w.ID, models.CurrencyIRR, false)
				require.NoError(t, err)
				require.Equal(t, "1000 IRR", reloaded.Balance.String())
			})
		})

		t.Run("negative balance rejected by schema", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				acc := w.Accounts[0]
				_, err = tx.Exec(t.Context(), `UPDATE currency_accounts SET balance = -1 WHERE id = $1`, acc.ID)

				require.Error(t, err, "CHECK constraint must reject negative balances")
			})
		})

		t.Run("missing account", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				_, err := s.Account().GetForUpdate(t.Context(), uuid.New())

				require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
			})
		})

		t.Run("create or get", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				// A lost currency-create race: same wallet and currency,
				// different candidate row. The existing account wins.
				loser := models.CurrencyAccount{
					ID:        uuid.New(),
					WalletID:  w.ID,
					Currency:  models.CurrencyIRR,
					Balance:   models.ZeroMoney(models.CurrencyIRR),
					Active:    true,
					CreatedAt: time.Now(),
				}
				got, err := s.Account().CreateOrGet(t.Context(), loser)

				require.NoError(t, err)
				require.Equal(t, w.Accounts[0].ID, got.ID)

				fresh := models.CurrencyAccount{
					ID:        uuid.New(),
					WalletID:  w.ID,
					Currency:  models.CurrencyUSD,
					Balance:   models.ZeroMoney(models.CurrencyUSD),
					Active:    true,
					CreatedAt: time.Now(),
				}
				got, err = s.Account().CreateOrGet(t.Context(), fresh)

				require.NoError(t, err)
				require.Equal(t, fresh.ID, got.ID, "no existing row means the insert wins")
			})
		})
	})

	t.Run("Transaction", func(t *testing.T) {
		t.Run("create assigns number", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				created, err := s.Transaction().Create(t.Context(), pendingDeposit(t, &w, 100))

				require.NoError(t, err)
				require.Regexp(t, `^TRX-\d{9}$`, created.Number)

				loaded, err := s.Transaction().GetByID(t.Context(), created.ID)
				require.NoError(t, err)
				require.Equal(t, created.Number, loaded.Number)
				require.Equal(t, models.StatusPending, loaded.Status)
				require.Equal(t, "100 IRR", loaded.Amount.String())
			})
		})

		t.Run("duplicate purchase order context", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				acc, err := s.Account().GetForUpdate(t.Context(), w.Accounts[0].ID)
				require.NoError(t, err)
				acc.Balance, _ = models.MoneyFromInt(1000, models.CurrencyIRR)
				require.NoError(t, s.Account().UpdateBalance(t.Context(), acc))

				amount, _ := models.MoneyFromInt(100, models.CurrencyIRR)
				first, err := acc.CreateTransaction(w.UserID, amount, models.DirectionOut, models.TypePurchase, "", models.WithOrderContext("order-1"))
				require.NoError(t, err)
				_, err = s.Transaction().Create(t.Context(), first)
				require.NoError(t, err)

				second, err := acc.CreateTransaction(w.UserID, amount, models.DirectionOut, models.TypePurchase, "", models.WithOrderContext("order-1"))
				require.NoError(t, err)
				_, err = s.Transaction().Create(t.Context(), second)

				require.ErrorIs(t, err, apperrors.ErrDuplicatePurchase)
			})
		})

		t.Run("failed purchase frees the order context", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				acc, err := s.Account().GetForUpdate(t.Context(), w.Accounts[0].ID)
				require.NoError(t, err)
				acc.Balance, _ = models.MoneyFromInt(1000, models.CurrencyIRR)
				require.NoError(t, s.Account().UpdateBalance(t.Context(), acc))

				amount, _ := models.MoneyFromInt(100, models.CurrencyIRR)
				first, err := acc.CreateTransaction(w.UserID, amount, models.DirectionOut, models.TypePurchase, "", models.WithOrderContext("order-1"))
				require.NoError(t, err)
				first, err = s.Transaction().Create(t.Context(), first)
				require.NoError(t, err)

				require.NoError(t, first.MarkFailed(time.Now()))
				require.NoError(t, s.Transaction().Update(t.Context(), first))

				retry, err := acc.CreateTransaction(w.UserID, amount, models.DirectionOut, models.TypePurchase, "", models.WithOrderContext("order-1"))
				require.NoError(t, err)
				_, err = s.Transaction().Create(t.Context(), retry)

				require.NoError(t, err, "a failed purchase must not block a retry for the same order")
			})
		})

		t.Run("pending deposit lookup", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				created, err := s.Transaction().Create(t.Context(), pendingDeposit(t, &w, 100, models.WithPaymentReference("AUTH-42")))
				require.NoError(t, err)

				found, err := s.Transaction().GetPendingDeposit(t.Context(), "AUTH-42")
				require.NoError(t, err)
				require.Equal(t, created.ID, found.ID)
				require.Equal(t, "AUTH-42", found.PaymentReferenceID)

				_, err = s.Transaction().GetPendingDeposit(t.Context(), "AUTH-00")
				require.ErrorIs(t, err, apperrors.ErrTopUpNotFound)
			})
		})

		t.Run("sum refunded", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				w := newWalletWithAccount(t)
				_, err := s.Wallet().CreateWallet(t.Context(), w)
				require.NoError(t, err)

				acc, err := s.Account().GetForUpdate(t.Context(), w.Accounts[0].ID)
				require.NoError(t, err)
				acc.Balance, _ = models.MoneyFromInt(1000, models.CurrencyIRR)
				require.NoError(t, s.Account().UpdateBalance(t.Context(), acc))

				amount, _ := models.MoneyFromInt(500, models.CurrencyIRR)
				purchase, err := acc.CreateTransaction(w.UserID, amount, models.DirectionOut, models.TypePurchase, "", models.WithOrderContext("order-1"))
				require.NoError(t, err)
				purchase, err = s.Transaction().Create(t.Context(), purchase)
				require.NoError(t, err)

				total, err := s.Transaction().SumRefunded(t.Context(), purchase.ID)
				require.NoError(t, err)
				require.True(t, total.IsZero(), "no refunds yet")

				refundAmount, _ := models.MoneyFromInt(200, models.CurrencyIRR)
				refund, err := acc.CreateTransaction(w.UserID, refundAmount, models.DirectionIn, models.TypeRefund, "", models.WithRelatedTransaction(purchase.ID))
				require.NoError(t, err)
				refund, err = s.Transaction().Create(t.Context(), refund)
				require.NoError(t, err)

				// Only completed refunds count
				total, err = s.Transaction().SumRefunded(t.Context(), purchase.ID)
				require.NoError(t, err)
				require.True(t, total.IsZero())

				_, err = acc.ProcessTransaction(&refund, time.Now())
				require.NoError(t, err)
				require.NoError(t, s.Transaction().Update(t.Context(), refund))

				total, err = s.Transaction().SumRefunded(t.Context(), purchase.ID)
				require.NoError(t, err)
				require.Equal(t, "200 IRR", total.String())
			})
		})
	})

	t.Run("Inbox", func(t *testing.T) {
		t.Run("mark and seen", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				eventID := uuid.New()

				seen, err := s.Inbox().Seen(t.Context(), "saga.payment_completed", eventID)
				require.NoError(t, err)
				require.False(t, seen)

				inserted, err := s.Inbox().MarkProcessed(t.Context(), "saga.payment_completed", eventID)
				require.NoError(t, err)
				require.True(t, inserted)

				seen, err = s.Inbox().Seen(t.Context(), "saga.payment_completed", eventID)
				require.NoError(t, err)
				require.True(t, seen)
			})
		})

		t.Run("repeat mark reports lost race", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				eventID := uuid.New()

				inserted, err := s.Inbox().MarkProcessed(t.Context(), "saga.payment_completed", eventID)
				require.NoError(t, err)
				require.True(t, inserted)

				inserted, err = s.Inbox().MarkProcessed(t.Context(), "saga.payment_completed", eventID)
				require.NoError(t, err)
				require.False(t, inserted)
			})
		})

		t.Run("marker scoped per handler", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				eventID := uuid.New()

				_, err := s.Inbox().MarkProcessed(t.Context(), "saga.payment_completed", eventID)
				require.NoError(t, err)

				seen, err := s.Inbox().Seen(t.Context(), "saga.wallet_charged", eventID)
				require.NoError(t, err)
				require.False(t, seen, "same event may be processed once per handler")
			})
		})
	})

	t.Run("Outbox", func(t *testing.T) {
		charged := func() events.Event {
			return events.WalletChargedEvent{
				EventID:       uuid.New(),
				UserID:        uuid.New(),
				TransactionID: uuid.New(),
				Amount:        decimal.NewFromInt(100),
				Currency:      "IRR",
			}
		}

		t.Run("enqueue and claim", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				event := charged()
				require.NoError(t, s.Outbox().Enqueue(t.Context(), event))

				messages, err := s.Outbox().ClaimBatch(t.Context(), 10, time.Now())
				require.NoError(t, err)
				require.Len(t, messages, 1)
				require.Equal(t, "WalletChargedEvent", messages[0].Kind)
				require.Equal(t, models.OutboxPending, messages[0].Status)
				require.Contains(t, string(messages[0].Payload), event.ID().String())
			})
		})

		t.Run("sent messages not reclaimed", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				require.NoError(t, s.Outbox().Enqueue(t.Context(), charged()))

				messages, err := s.Outbox().ClaimBatch(t.Context(), 10, time.Now())
				require.NoError(t, err)
				require.Len(t, messages, 1)

				require.NoError(t, s.Outbox().MarkSent(t.Context(), messages[0].ID, time.Now()))

				messages, err = s.Outbox().ClaimBatch(t.Context(), 10, time.Now())
				require.NoError(t, err)
				require.Empty(t, messages)
			})
		})

		t.Run("rescheduled message waits for next attempt", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				require.NoError(t, s.Outbox().Enqueue(t.Context(), charged()))

				now := time.Now()
				messages, err := s.Outbox().ClaimBatch(t.Context(), 10, now)
				require.NoError(t, err)
				require.Len(t, messages, 1)

				require.NoError(t, s.Outbox().Reschedule(t.Context(), messages[0].ID, 1, now.Add(time.Minute), false))

				messages, err = s.Outbox().ClaimBatch(t.Context(), 10, now)
				require.NoError(t, err)
				require.Empty(t, messages, "not due yet")

				messages, err = s.Outbox().ClaimBatch(t.Context(), 10, now.Add(2*time.Minute))
				require.NoError(t, err)
				require.Len(t, messages, 1)
				require.Equal(t, 1, messages[0].Attempts)
			})
		})

		t.Run("failed message parked", func(t *testing.T) {
			withTx(t, pg.Pool, func(tx pgx.Tx, s repository.Storage) {
				require.NoError(t, s.Outbox().Enqueue(t.Context(), charged()))

				now := time.Now()
				messages, err := s.Outbox().ClaimBatch(t.Context(), 10, now)
				require.NoError(t, err)
				require.Len(t, messages, 1)

				require.NoError(t, s.Outbox().Reschedule(t.Context(), messages[0].ID, 10, now, true))

				messages, err = s.Outbox().ClaimBatch(t.Context(), 10, now.Add(time.Hour))
				require.NoError(t, err)
				require.Empty(t, messages)
			})
		})
	})
}
