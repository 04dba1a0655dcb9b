package rabbit

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tripsettle/tripsettle/internal/events"
	"github.com/tripsettle/tripsettle/internal/logger"
)

const defaultPrefetch = 10

// Consumer binds one queue to the routing keys of a sealed registry and
// dispatches deliveries to it. Acknowledgment happens only after the
// handler returned nil; failed deliveries are requeued once and parked in
// the dead-letter queue afterwards.
type Consumer struct {
	conn     *amqp.Connection
	exchange string
	queue    string
	registry *events.Registry
	logger   logger.Logger
}

func NewConsumer(conn *amqp.Connection, exchange string, queue string, registry *events.Registry, log logger.Logger) *Consumer {
	return &Consumer{
		conn:     conn,
		exchange: exchange,
		queue:    queue,
		registry: registry,
		logger:   log,
	}
}

// Run consumes until the context is cancelled. It returns a channel that
// is closed when the consumer fully stopped.
func (c *Consumer) Run(ctx context.Context) (<-chan struct{}, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}
	if err := setupDeadLetter(ch); err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, deadLetterArgs()); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	for _, key := range c.registry.RoutingKeys() {
		if err := ch.QueueBind(c.queue, key, c.exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", c.queue, key, err)
		}
	}

	if err := ch.Qos(defaultPrefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	idleStopped := make(chan struct{})
	go func() {
		defer close(idleStopped)
		defer ch.Close() // nolint:errcheck

		for {
			select {
			case <-ctx.Done():
				c.logger.Debug("Consumer stopped by context", "queue", c.queue)
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("Delivery channel closed", "queue", c.queue)
					return
				}
				c.dispatch(ctx, d)
			}
		}
	}()

	return idleStopped, nil
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With("routing_key", d.RoutingKey, "message_id", d.MessageId)

	handler, ok := c.registry.Handler(d.RoutingKey)
	if !ok {
		log.Error("No handler bound for routing key, parking delivery")
		c.reject(d, false, log)
		return
	}

	err := handler(ctx, d.Body)

	var malformed *events.MalformedEventError
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("Failed to ack delivery", "error", ackErr)
		}

	case errors.As(err, &malformed):
		// Redelivery can not fix a broken payload, park it right away.
		log.Error("Malformed event payload, parking delivery", "error", err)
		c.reject(d, false, log)

	case d.Redelivered:
		log.Error("Handler failed on redelivery, parking in dead-letter queue", "error", err)
		c.reject(d, false, log)

	default:
		log.Warn("Handler failed, requeueing delivery", "error", err)
		c.reject(d, true, log)
	}
}

func (c *Consumer) reject(d amqp.Delivery, requeue bool, log logger.Logger) {
	if err := d.Nack(false, requeue); err != nil {
		log.Error("Failed to nack delivery", "error", err)
	}
}
