// Package events holds the integration event contracts exchanged between
// the wallet service, the reservation side and the order domain, together
// with the routing key derivation and the handler registry.
package events

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is an integration event. Kind returns the event's type name and
// is the single source the routing key is derived from. ID is the natural
// dedupe key every event carries.
type Event interface {
	Kind() string
	ID() uuid.UUID
}

type Passenger struct {
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	NationalCode string `json:"national_code,omitempty"`
	BirthDate    string `json:"birth_date,omitempty"`
}

// ReservationConfirmedEvent arrives when the external provider has held
// seats for a user. It triggers order creation.
type ReservationConfirmedEvent struct {
	EventID           uuid.UUID       `json:"event_id" validate:"required"`
	ReservationID     string          `json:"reservation_id" validate:"required"`
	UserID            uuid.UUID       `json:"user_id" validate:"required"`
	ProviderReference string          `json:"provider_reference" validate:"required"`
	Passengers        []Passenger     `json:"passengers" validate:"required,min=1,dive"`
	Price             decimal.Decimal `json:"price" validate:"required"`
	Currency          string          `json:"currency" validate:"required"`
	ServiceDetails    string          `json:"service_details,omitempty"`
}

func (ReservationConfirmedEvent) Kind() string  { return "ReservationConfirmedEvent" }
func (e ReservationConfirmedEvent) ID() uuid.UUID { return e.EventID }

// OrderCreatedEvent is published after the order domain accepted the
// create-order command for a reservation.
type OrderCreatedEvent struct {
	EventID           uuid.UUID       `json:"event_id" validate:"required"`
	OrderID           uuid.UUID       `json:"order_id" validate:"required"`
	UserID            uuid.UUID       `json:"user_id" validate:"required"`
	OrderNumber       string          `json:"order_number" validate:"required"`
	TotalAmount       decimal.Decimal `json:"total_amount" validate:"required"`
	Currency          string          `json:"currency" validate:"required"`
	ReservationID     string          `json:"reservation_id" validate:"required"`
	ProviderReference string          `json:"provider_reference,omitempty"`
}

func (OrderCreatedEvent) Kind() string  { return "OrderCreatedEvent" }
func (e OrderCreatedEvent) ID() uuid.UUID { return e.EventID }

// OrderCreationFailedEvent is the compensation signal: it carries enough
// context for the reservation side to release the held seats.
type OrderCreationFailedEvent struct {
	EventID           uuid.UUID `json:"event_id" validate:"required"`
	ReservationID     string    `json:"reservation_id" validate:"required"`
	UserID            uuid.UUID `json:"user_id" validate:"required"`
	ProviderReference string    `json:"provider_reference,omitempty"`
	Reason            string    `json:"reason" validate:"required"`
	ErrorDetails      string    `json:"error_details,omitempty"`
	CompensationToken string    `json:"compensation_token,omitempty"`
}

func (OrderCreationFailedEvent) Kind() string  { return "OrderCreationFailedEvent" }
func (e OrderCreationFailedEvent) ID() uuid.UUID { return e.EventID }

// PaymentCompletedEvent arrives when funds for an order were captured.
type PaymentCompletedEvent struct {
	EventID              uuid.UUID       `json:"event_id" validate:"required"`
	OrderID              uuid.UUID       `json:"order_id" validate:"required"`
	UserID               uuid.UUID       `json:"user_id" validate:"required"`
	PaymentTransactionID uuid.UUID       `json:"payment_transaction_id" validate:"required"`
	Amount               decimal.Decimal `json:"amount" validate:"required"`
	Currency             string          `json:"currency" validate:"required"`
}

func (PaymentCompletedEvent) Kind() string  { return "PaymentCompletedEvent" }
func (e PaymentCompletedEvent) ID() uuid.UUID { return e.EventID }

// OrderPaymentCompletedEvent closes the saga: the order is fulfilled.
type OrderPaymentCompletedEvent struct {
	EventID uuid.UUID `json:"event_id" validate:"required"`
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	UserID  uuid.UUID `json:"user_id" validate:"required"`
}

func (OrderPaymentCompletedEvent) Kind() string  { return "OrderPaymentCompletedEvent" }
func (e OrderPaymentCompletedEvent) ID() uuid.UUID { return e.EventID }

// WalletChargedEvent is informational from the payment side and may
// trigger a retry of a previously failed order payment.
type WalletChargedEvent struct {
	EventID       uuid.UUID       `json:"event_id" validate:"required"`
	UserID        uuid.UUID       `json:"user_id" validate:"required"`
	TransactionID uuid.UUID       `json:"transaction_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Currency      string          `json:"currency" validate:"required"`
	OrderID       *uuid.UUID      `json:"order_id,omitempty"`
}

func (WalletChargedEvent) Kind() string  { return "WalletChargedEvent" }
func (e WalletChargedEvent) ID() uuid.UUID { return e.EventID }
