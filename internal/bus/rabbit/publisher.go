// Package rabbit is the RabbitMQ transport behind the bus abstraction:
// a topic exchange, persistent deliveries, publisher confirms and manual
// consumer acknowledgment with a dead-letter queue for parked messages.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tripsettle/tripsettle/internal/events"
)

const DefaultExchange = "tripsettle.events"

type Publisher struct {
	mu       sync.Mutex // amqp channels are not safe for concurrent publish
	ch       *amqp.Channel
	exchange string
	confirms <-chan amqp.Confirmation
}

// NewPublisher opens a confirm-mode channel on conn and declares the
// topic exchange.
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return &Publisher{
		ch:       ch,
		exchange: exchange,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// Publish sends the event with a routing key derived from its type name
// and waits for the broker confirm. An unconfirmed publish is an error so
// the caller (the outbox dispatcher) retries it.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Kind(), err)
	}
	return p.PublishRaw(ctx, event.Kind(), event.ID().String(), body)
}

// PublishRaw sends an already marshaled payload. The outbox dispatcher
// uses it to replay stored events without round-tripping through the
// typed representation.
func (p *Publisher) PublishRaw(ctx context.Context, kind string, messageID string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := events.RoutingKey(kind)
	err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         kind,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			return fmt.Errorf("publish %s: confirm channel closed", key)
		}
		if !confirm.Ack {
			return fmt.Errorf("publish %s: broker nacked delivery %d", key, confirm.DeliveryTag)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", key, ctx.Err())
	}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
