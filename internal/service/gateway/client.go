// Package gateway is the client for the external payment gateway. The
// gateway is a black box: the wallet only requests a top-up authority for
// a shortfall and later verifies that the authority settled.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tripsettle/tripsettle/internal/logger"
	"github.com/tripsettle/tripsettle/internal/models"
	"github.com/tripsettle/tripsettle/internal/retry"
)

const (
	CodeRejected = "rejected"
	CodePending  = "pending"
	CodeUnknown  = "unknown"
)

const requestTimeout = 5 * time.Second

type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: code %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// VerifiedTopUp is the settled state of a top-up authority.
type VerifiedTopUp struct {
	Authority string          `json:"authority"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Settled   bool            `json:"settled"`
}

type Client struct {
	GatewayAddr string

	client *http.Client
	retry  retry.Policy
	logger logger.Logger
}

func NewClient(addr string, log logger.Logger) *Client {
	return &Client{
		GatewayAddr: addr,
		client:      &http.Client{},
		retry:       retry.DefaultPolicy,
		logger:      log,
	}
}

// RequestTopUp asks the gateway to collect the shortfall and returns the
// gateway authority the pending deposit is tied to. Transient failures
// are retried with backoff; a rejected request is surfaced immediately.
func (c *Client) RequestTopUp(ctx context.Context, amount models.Money, orderContext string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":        amount.Amount,
		"currency":      amount.Currency,
		"order_context": orderContext,
	})
	if err != nil {
		return "", fmt.Errorf("marshal top-up request: %w", err)
	}

	var authority string
	err = c.retry.Do(ctx, func() error {
		var reqErr error
		authority, reqErr = c.requestTopUpOnce(ctx, payload)
		return reqErr
	})
	if err != nil {
		return "", err
	}
	return authority, nil
}

func (c *Client) requestTopUpOnce(ctx context.Context, payload []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GatewayAddr+"/api/topups", bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(newError(CodeUnknown, fmt.Errorf("failed to create request: %w", err)))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", newError(CodeUnknown, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var body struct {
			Authority string `json:"authority"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", newError(CodeUnknown, fmt.Errorf("failed to decode response: %w", err))
		}
		return body.Authority, nil

	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return "", retry.Permanent(newError(CodeRejected, fmt.Errorf("gateway rejected top-up, status %d", resp.StatusCode)))

	default:
		c.logger.Warn("Gateway top-up request failed", "status_code", resp.StatusCode)
		return "", newError(CodeUnknown, fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}
}

// Verify fetches the settled state of an authority. A not-yet-settled
// authority is a pending-coded error so the caller can distinguish it
// from a dead one.
func (c *Client) Verify(ctx context.Context, authority string) (VerifiedTopUp, error) {
	var verified VerifiedTopUp

	err := c.retry.Do(ctx, func() error {
		var reqErr error
		verified, reqErr = c.verifyOnce(ctx, authority)
		return reqErr
	})
	return verified, err
}

func (c *Client) verifyOnce(ctx context.Context, authority string) (VerifiedTopUp, error) {
	var verified VerifiedTopUp

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.GatewayAddr+"/api/topups/"+authority, nil)
	if err != nil {
		return verified, retry.Permanent(newError(CodeUnknown, fmt.Errorf("failed to create request: %w", err)))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return verified, newError(CodeUnknown, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&verified); err != nil {
			return verified, newError(CodeUnknown, fmt.Errorf("failed to decode response: %w", err))
		}
		if !verified.Settled {
			return verified, retry.Permanent(newError(CodePending, fmt.Errorf("authority %s not settled", authority)))
		}
		return verified, nil

	case http.StatusNotFound:
		return verified, retry.Permanent(newError(CodeRejected, fmt.Errorf("authority %s unknown to gateway", authority)))

	default:
		c.logger.Warn("Gateway verify failed", "status_code", resp.StatusCode, "authority", authority)
		return verified, newError(CodeUnknown, fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}
}
