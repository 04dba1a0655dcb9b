package orders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/events"
	"github.com/tripsettle/tripsettle/internal/logger"
	"github.com/tripsettle/tripsettle/internal/retry"
)

func newTestClient(addr string) *Client {
	c := NewClient(addr, logger.NewNoOpLogger())
	c.retry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	return c
}

func TestCreateOrder(t *testing.T) {
	cmd := CreateOrderCommand{
		ReservationID:     "res-1",
		UserID:            uuid.New(),
		ProviderReference: "prov-1",
		Passengers:        []events.Passenger{{FirstName: "Sara", LastName: "Ahmadi"}},
		Price:             decimal.NewFromInt(150000),
		Currency:          "IRR",
	}

	t.Run("create ok", func(t *testing.T) {
		orderID := uuid.New()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/api/orders", r.URL.Path)

			var got CreateOrderCommand
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			require.Equal(t, "res-1", got.ReservationID)
			require.Len(t, got.Passengers, 1)

			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": "` + orderID.String() + `", "number": "ORD-001", "user_id": "` + cmd.UserID.String() + `", "total_amount": "150000", "currency": "IRR"}`))
		}))
		defer srv.Close()

		order, err := newTestClient(srv.URL).CreateOrder(t.Context(), cmd)

		require.NoError(t, err)
		require.Equal(t, orderID, order.ID)
		require.Equal(t, "ORD-001", order.Number)
		require.True(t, order.TotalAmount.Equal(decimal.NewFromInt(150000)))
	})

	t.Run("existing order returned on replay", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The order side answers 200 instead of 201 for a reservation
			// it already created an order for.
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id": "` + uuid.NewString() + `", "number": "ORD-001"}`))
		}))
		defer srv.Close()

		order, err := newTestClient(srv.URL).CreateOrder(t.Context(), cmd)

		require.NoError(t, err)
		require.Equal(t, "ORD-001", order.Number)
	})

	t.Run("rejected command not retried", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).CreateOrder(t.Context(), cmd)

		require.Error(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("server errors retried", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).CreateOrder(t.Context(), cmd)

		require.Error(t, err)
		require.Equal(t, 3, calls)
	})
}

func TestMarkPaid(t *testing.T) {
	orderID := uuid.New()
	paymentTx := uuid.New()

	t.Run("mark paid ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/orders/"+orderID.String()+"/paid", r.URL.Path)

			var body struct {
				PaymentTransactionID uuid.UUID `json:"payment_transaction_id"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, paymentTx, body.PaymentTransactionID)

			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		err := newTestClient(srv.URL).MarkPaid(t.Context(), orderID, paymentTx)

		require.NoError(t, err)
	})

	t.Run("already paid surfaces sentinel", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		err := newTestClient(srv.URL).MarkPaid(t.Context(), orderID, paymentTx)

		require.ErrorIs(t, err, apperrors.ErrOrderAlreadyPaid)
		require.Equal(t, 1, calls, "conflict is terminal, not transient")
	})
}

func TestFulfill(t *testing.T) {
	orderID := uuid.New()

	t.Run("fulfill ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/orders/"+orderID.String()+"/fulfill", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		err := newTestClient(srv.URL).Fulfill(t.Context(), orderID)

		require.NoError(t, err)
	})

	t.Run("failure surfaces after retries", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		err := newTestClient(srv.URL).Fulfill(t.Context(), orderID)

		require.Error(t, err)
		require.Equal(t, 3, calls)
	})
}
