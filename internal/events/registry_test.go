package events

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	noop := func(ctx context.Context, body []byte) error { return nil }

	t.Run("register and resolve", func(t *testing.T) {
		r := NewRegistry()
		r.Register("ReservationConfirmedEvent", noop)
		r.Seal()

		_, ok := r.Handler("reservation.confirmed")
		require.True(t, ok, "handler must be resolvable by routing key")

		_, ok = r.Handler("payment.completed")
		require.False(t, ok)
	})

	t.Run("routing keys sorted", func(t *testing.T) {
		r := NewRegistry()
		r.Register("WalletChargedEvent", noop)
		r.Register("PaymentCompletedEvent", noop)
		r.Register("ReservationConfirmedEvent", noop)
		r.Seal()

		require.Equal(t, []string{"payment.completed", "reservation.confirmed", "wallet.charged"}, r.RoutingKeys())
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		r := NewRegistry()
		r.Register("WalletChargedEvent", noop)

		require.Panics(t, func() {
			r.Register("WalletChargedEvent", noop)
		})
	})

	t.Run("register after seal panics", func(t *testing.T) {
		r := NewRegistry()
		r.Seal()

		require.Panics(t, func() {
			r.Register("WalletChargedEvent", noop)
		})
	})
}

func TestTyped(t *testing.T) {
	v := validator.New()

	t.Run("decodes and dispatches", func(t *testing.T) {
		var got PaymentCompletedEvent
		handler := Typed(v, func(ctx context.Context, e PaymentCompletedEvent) error {
			got = e
			return nil
		})

		eventID := uuid.New()
		orderID := uuid.New()
		userID := uuid.New()
		txID := uuid.New()
		body := []byte(`{
			"event_id": "` + eventID.String() + `",
			"order_id": "` + orderID.String() + `",
			"user_id": "` + userID.String() + `",
			"payment_transaction_id": "` + txID.String() + `",
			"amount": "150000",
			"currency": "IRR"
		}`)

		err := handler(t.Context(), body)

		require.NoError(t, err)
		require.Equal(t, eventID, got.EventID)
		require.Equal(t, orderID, got.OrderID)
		require.True(t, got.Amount.Equal(decimal.NewFromInt(150000)))
	})

	t.Run("broken json is malformed", func(t *testing.T) {
		handler := Typed(v, func(ctx context.Context, e PaymentCompletedEvent) error { return nil })

		err := handler(t.Context(), []byte(`{not json`))

		var malformed *MalformedEventError
		require.ErrorAs(t, err, &malformed)
	})

	t.Run("missing required field is malformed", func(t *testing.T) {
		handler := Typed(v, func(ctx context.Context, e PaymentCompletedEvent) error { return nil })

		err := handler(t.Context(), []byte(`{"amount": "100", "currency": "IRR"}`))

		var malformed *MalformedEventError
		require.ErrorAs(t, err, &malformed)
	})
}
