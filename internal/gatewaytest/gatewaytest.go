// Package gatewaytest provides an in-memory payment gateway double for
// service tests. It hands out a fixed authority and settles on demand.
package gatewaytest

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tripsettle/tripsettle/internal/models"
	"github.com/tripsettle/tripsettle/internal/service/gateway"
)

// TopUpRequest records one RequestTopUp call.
type TopUpRequest struct {
	Amount       models.Money
	OrderContext string
}

// Gateway implements the top-up gateway interface of the wallet service.
// Zero value is not usable, construct with New.
type Gateway struct {
	Authority string

	// RequestErr and VerifyErr, when set, fail the corresponding call.
	RequestErr error
	VerifyErr  error

	mu       sync.Mutex
	Requests []TopUpRequest
	settled  *decimal.Decimal
}

func New() *Gateway {
	return &Gateway{Authority: "A-TEST-000001"}
}

func (g *Gateway) RequestTopUp(_ context.Context, amount models.Money, orderContext string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.RequestErr != nil {
		return "", g.RequestErr
	}
	g.Requests = append(g.Requests, TopUpRequest{Amount: amount, OrderContext: orderContext})
	return g.Authority, nil
}

func (g *Gateway) Verify(_ context.Context, authority string) (gateway.VerifiedTopUp, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.VerifyErr != nil {
		return gateway.VerifiedTopUp{}, g.VerifyErr
	}
	if authority != g.Authority {
		return gateway.VerifiedTopUp{}, errors.New("unknown authority")
	}
	if g.settled == nil {
		return gateway.VerifiedTopUp{}, errors.New("authority not settled")
	}
	return gateway.VerifiedTopUp{
		Authority: authority,
		Amount:    *g.settled,
		Currency:  string(models.CurrencyIRR),
		Settled:   true,
	}, nil
}

// SettleRequested marks the last requested amount as settled, as the real
// gateway would after the payer completed the checkout.
func (g *Gateway) SettleRequested() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.Requests) == 0 {
		panic("gatewaytest: nothing requested yet")
	}
	amount := g.Requests[len(g.Requests)-1].Amount.Amount
	g.settled = &amount
}

// SettleAmount settles the authority at an arbitrary amount, regardless of
// what was requested.
func (g *Gateway) SettleAmount(amount decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.settled = &amount
}
