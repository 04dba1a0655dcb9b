// Package saga coordinates the reservation → order → payment →
// fulfillment flow. The coordinator holds no cross-step state in memory:
// each handler reads only its event payload, issues at most one command
// and publishes at most one event, so the flow resumes safely from the
// event trail after a crash or a redelivery.
package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/apperrors"
	"github.com/tripsettle/tripsettle/internal/bus"
	"github.com/tripsettle/tripsettle/internal/events"
	"github.com/tripsettle/tripsettle/internal/logger"
	"github.com/tripsettle/tripsettle/internal/repository"
	"github.com/tripsettle/tripsettle/internal/service/orders"
)

// Handler marker names for the processed-event dedupe table.
const (
	handlerReservationConfirmed = "saga.reservation_confirmed"
	handlerPaymentCompleted     = "saga.payment_completed"
	handlerWalletCharged        = "saga.wallet_charged"
)

// orderDomain is the synchronous command surface of the order service.
type orderDomain interface {
	CreateOrder(ctx context.Context, cmd orders.CreateOrderCommand) (orders.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, paymentTransactionID uuid.UUID) error
	Fulfill(ctx context.Context, orderID uuid.UUID) error
}

type Coordinator struct {
	orders  orderDomain
	bus     bus.Publisher
	storage repository.Storage
	logger  logger.Logger
}

func NewCoordinator(orderDomain orderDomain, publisher bus.Publisher, storage repository.Storage, log logger.Logger) *Coordinator {
	return &Coordinator{
		orders:  orderDomain,
		bus:     publisher,
		storage: storage,
		logger:  log,
	}
}

// RegisterHandlers binds the coordinator to the registry the consumer
// queue is built from.
func (c *Coordinator) RegisterHandlers(r *events.Registry, v *validator.Validate) {
	r.Register(events.ReservationConfirmedEvent{}.Kind(), events.Typed(v, c.HandleReservationConfirmed))
	r.Register(events.PaymentCompletedEvent{}.Kind(), events.Typed(v, c.HandlePaymentCompleted))
	r.Register(events.WalletChargedEvent{}.Kind(), events.Typed(v, c.HandleWalletCharged))
}

// HandleReservationConfirmed turns a confirmed reservation into an order.
// On command failure it publishes the compensation event that lets the
// reservation side release the held seats; exactly one of the two events
// is published per distinct reservation event.
func (c *Coordinator) HandleReservationConfirmed(ctx context.Context, event events.ReservationConfirmedEvent) error {
	log := c.logger.With("reservation_id", event.ReservationID, "event_id", event.EventID)

	seen, err := c.storage.Inbox().Seen(ctx, handlerReservationConfirmed, event.EventID)
	if err != nil {
		return err
	}
	if seen {
		log.Debug("Reservation event already processed, skipping")
		return nil
	}

	order, err := c.orders.CreateOrder(ctx, orders.CreateOrderCommand{
		ReservationID:     event.ReservationID,
		UserID:            event.UserID,
		ProviderReference: event.ProviderReference,
		Passengers:        event.Passengers,
		Price:             event.Price,
		Currency:          event.Currency,
		ServiceDetails:    event.ServiceDetails,
	})
	if err != nil {
		log.Warn("Order creation failed, issuing compensation", "error", err)
		return c.compensateReservation(ctx, event, err)
	}

	if err := c.bus.Publish(ctx, events.OrderCreatedEvent{
		EventID:           uuid.New(),
		OrderID:           order.ID,
		UserID:            order.UserID,
		OrderNumber:       order.Number,
		TotalAmount:       order.TotalAmount,
		Currency:          order.Currency,
		ReservationID:     event.ReservationID,
		ProviderReference: event.ProviderReference,
	}); err != nil {
		// Not yet marked processed: redelivery re-runs the step and the
		// order domain's own idempotency absorbs the duplicate command.
		return fmt.Errorf("publish order created: %w", err)
	}

	if err := c.markProcessed(ctx, handlerReservationConfirmed, event.EventID); err != nil {
		return err
	}
	log.Info("Order created for reservation", "order_id", order.ID, "order_number", order.Number)
	return nil
}

func (c *Coordinator) compensateReservation(ctx context.Context, event events.ReservationConfirmedEvent, cause error) error {
	if err := c.bus.Publish(ctx, events.OrderCreationFailedEvent{
		EventID:           uuid.New(),
		ReservationID:     event.ReservationID,
		UserID:            event.UserID,
		ProviderReference: event.ProviderReference,
		Reason:            "order creation failed",
		ErrorDetails:      cause.Error(),
	}); err != nil {
		return fmt.Errorf("publish compensation: %w", err)
	}
	return c.markProcessed(ctx, handlerReservationConfirmed, event.EventID)
}

// HandlePaymentCompleted fulfills a paid order (ticket issuance). A
// fulfillment failure is returned so the delivery stays unacknowledged
// and the transport redelivers it; exhausted redeliveries park the event
// in the dead-letter queue for manual resolution. No automatic refund is
// issued on this path.
func (c *Coordinator) HandlePaymentCompleted(ctx context.Context, event events.PaymentCompletedEvent) error {
	log := c.logger.With("order_id", event.OrderID, "event_id", event.EventID)

	seen, err := c.storage.Inbox().Seen(ctx, handlerPaymentCompleted, event.EventID)
	if err != nil {
		return err
	}
	if seen {
		log.Debug("Payment event already processed, skipping")
		return nil
	}

	if err := c.orders.Fulfill(ctx, event.OrderID); err != nil {
		log.Error("Fulfillment failed, leaving event unacknowledged", "error", err)
		return fmt.Errorf("fulfill order %s: %w", event.OrderID, err)
	}

	if err := c.bus.Publish(ctx, events.OrderPaymentCompletedEvent{
		EventID: uuid.New(),
		OrderID: event.OrderID,
		UserID:  event.UserID,
	}); err != nil {
		return fmt.Errorf("publish order payment completed: %w", err)
	}

	if err := c.markProcessed(ctx, handlerPaymentCompleted, event.EventID); err != nil {
		return err
	}
	log.Info("Order fulfilled")
	return nil
}

// HandleWalletCharged retries the payment marking of an order after the
// wallet side reported a charge. If the order is already paid the handler
// is a no-op.
func (c *Coordinator) HandleWalletCharged(ctx context.Context, event events.WalletChargedEvent) error {
	log := c.logger.With("user_id", event.UserID, "event_id", event.EventID)

	if event.OrderID == nil {
		log.Debug("Wallet charge without order reference, nothing to retry")
		return nil
	}

	seen, err := c.storage.Inbox().Seen(ctx, handlerWalletCharged, event.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	err = c.orders.MarkPaid(ctx, *event.OrderID, event.TransactionID)
	switch {
	case errors.Is(err, apperrors.ErrOrderAlreadyPaid):
		log.Debug("Order already paid, nothing to do", "order_id", *event.OrderID)
	case err != nil:
		return fmt.Errorf("mark order %s paid: %w", *event.OrderID, err)
	default:
		log.Info("Order payment retried after wallet charge", "order_id", *event.OrderID)
	}

	return c.markProcessed(ctx, handlerWalletCharged, event.EventID)
}

func (c *Coordinator) markProcessed(ctx context.Context, handler string, eventID uuid.UUID) error {
	inserted, err := c.storage.Inbox().MarkProcessed(ctx, handler, eventID)
	if err != nil {
		return err
	}
	if !inserted {
		c.logger.Debug("Processed marker already present", "handler", handler, "event_id", eventID)
	}
	return nil
}
