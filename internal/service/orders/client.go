// Package orders is the client for the order domain. The saga issues
// synchronous commands against it; the order service keeps its own
// idempotency (one order per reservation), which the saga leans on when a
// redelivered event re-issues a create command.
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/events"
	"github.com/tripsettle/tripsettle/internal/logger"
	"github.com/tripsettle/tripsettle/internal/retry"
)

const requestTimeout = 5 * time.Second

// CreateOrderCommand is built from a confirmed reservation.
type CreateOrderCommand struct {
	ReservationID     string             `json:"reservation_id"`
	UserID            uuid.UUID          `json:"user_id"`
	ProviderReference string             `json:"provider_reference"`
	Passengers        []events.Passenger `json:"passengers"`
	Price             decimal.Decimal    `json:"price"`
	Currency          string             `json:"currency"`
	ServiceDetails    string             `json:"service_details,omitempty"`
}

type Order struct {
	ID          uuid.UUID       `json:"id"`
	Number      string          `json:"number"`
	UserID      uuid.UUID       `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Paid        bool            `json:"paid"`
}

type Client struct {
	OrdersAddr string

	client *http.Client
	retry  retry.Policy
	logger logger.Logger
}

func NewClient(addr string, log logger.Logger) *Client {
	return &Client{
		OrdersAddr: addr,
		client:     &http.Client{},
		retry:      retry.DefaultPolicy,
		logger:     log,
	}
}

// CreateOrder is idempotent on the order side: re-sending the command for
// an already created reservation returns the existing order.
func (c *Client) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	var order Order

	payload, err := json.Marshal(cmd)
	if err != nil {
		return order, fmt.Errorf("marshal create order command: %w", err)
	}

	err = c.retry.Do(ctx, func() error {
		var reqErr error
		order, reqErr = c.post(ctx, "/api/orders", payload, http.StatusCreated, http.StatusOK)
		return reqErr
	})
	return order, err
}

// MarkPaid flags the order paid. An already paid order surfaces as
// apperrors.ErrOrderAlreadyPaid so callers can treat it as a no-op.
func (c *Client) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentTransactionID uuid.UUID) error {
	payload, err := json.Marshal(map[string]any{"payment_transaction_id": paymentTransactionID})
	if err != nil {
		return fmt.Errorf("marshal mark paid command: %w", err)
	}

	return c.retry.Do(ctx, func() error {
		_, reqErr := c.post(ctx, "/api/orders/"+orderID.String()+"/paid", payload, http.StatusOK)
		return reqErr
	})
}

// Fulfill triggers ticket issuance for a paid order.
func (c *Client) Fulfill(ctx context.Context, orderID uuid.UUID) error {
	return c.retry.Do(ctx, func() error {
		_, reqErr := c.post(ctx, "/api/orders/"+orderID.String()+"/fulfill", nil, http.StatusOK)
		return reqErr
	})
}

func (c *Client) post(ctx context.Context, path string, payload []byte, okStatuses ...int) (Order, error) {
	var order Order

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.OrdersAddr+path, bytes.NewReader(payload))
	if err != nil {
		return order, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return order, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	for _, ok := range okStatuses {
		if resp.StatusCode == ok {
			if decodeErr := json.NewDecoder(resp.Body).Decode(&order); decodeErr != nil {
				// Some commands respond with an empty body.
				return order, nil
			}
			return order, nil
		}
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return order, retry.Permanent(apperrors.ErrOrderAlreadyPaid)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return order, retry.Permanent(fmt.Errorf("order domain rejected command, status %d", resp.StatusCode))
	default:
		c.logger.Warn("Order domain call failed", "status_code", resp.StatusCode, "path", path)
		return order, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
}
