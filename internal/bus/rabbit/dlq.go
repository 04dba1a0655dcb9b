package rabbit

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName = "events.dlx"
	dlqName         = "events.dlq"
)

// setupDeadLetter declares the dead-letter exchange and the parked queue
// every consumer queue dead-letters into. Messages land here after the
// transport gives up redelivering; resolution is manual.
func setupDeadLetter(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(dlxExchangeName, "topic", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare dlx exchange: %w", err)
	}

	_, err = ch.QueueDeclare(dlqName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare dlq: %w", err)
	}

	if err := ch.QueueBind(dlqName, "#", dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind dlq: %w", err)
	}
	return nil
}

// deadLetterArgs are set on consumer queues so rejected deliveries are
// routed to the dead-letter exchange instead of being dropped.
func deadLetterArgs() amqp.Table {
	return amqp.Table{"x-dead-letter-exchange": dlxExchangeName}
}
