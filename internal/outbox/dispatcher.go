// Package outbox drains the transactional outbox to the message bus.
// Events are captured in the same database transaction as the ledger
// mutation that produced them; the dispatcher publishes them after
// commit, so the bus never sees an event for a rolled-back change.
package outbox

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tripsettle/tripsettle/internal/logger"
	"github.com/tripsettle/tripsettle/internal/repository"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 50
	defaultMaxAttempts  = 10
	defaultBaseDelay    = time.Second
)

// rawPublisher publishes an already marshaled payload. Satisfied by
// rabbit.Publisher.
type rawPublisher interface {
	PublishRaw(ctx context.Context, kind string, messageID string, body []byte) error
}

// Dispatcher polls the outbox table and publishes due messages. Multiple
// instances may run concurrently; ClaimBatch locks rows with SKIP LOCKED
// so a message is claimed by at most one of them at a time.
type Dispatcher struct {
	storage   repository.Storage
	publisher rawPublisher
	logger    logger.Logger

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	baseDelay    time.Duration
	now          func() time.Time
}

func NewDispatcher(storage repository.Storage, publisher rawPublisher, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		storage:      storage,
		publisher:    publisher,
		logger:       log,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		now:          time.Now,
	}
}

// Run polls until the context is cancelled. It returns a channel that is
// closed when the dispatcher fully stopped.
func (d *Dispatcher) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				d.logger.Debug("Outbox dispatcher stopped by context")
				return
			case <-ticker.C:
				if err := d.DispatchDue(ctx); err != nil {
					d.logger.Error("Outbox dispatch pass failed", "error", err)
				}
			}
		}
	}()

	return idleStopped
}

// DispatchDue publishes one batch of due messages. The claim, the
// publishes and the status updates share one transaction: the row locks
// taken by ClaimBatch are what keeps concurrent dispatchers off the
// batch until it is resolved.
func (d *Dispatcher) DispatchDue(ctx context.Context) error {
	return d.storage.InTx(ctx, func(s repository.Storage) error {
		now := d.now()

		messages, err := s.Outbox().ClaimBatch(ctx, d.batchSize, now)
		if err != nil {
			return err
		}

		for _, msg := range messages {
			log := d.logger.With("outbox_id", msg.ID, "kind", msg.Kind, "attempts", msg.Attempts)

			if err := d.publisher.PublishRaw(ctx, msg.Kind, messageID(msg.Payload), msg.Payload); err != nil {
				attempts := msg.Attempts + 1
				failed := attempts >= d.maxAttempts
				if failed {
					log.Error("Outbox message exhausted attempts, marking failed", "error", err)
				} else {
					log.Warn("Publish failed, rescheduling outbox message", "error", err)
				}
				if rErr := s.Outbox().Reschedule(ctx, msg.ID, attempts, now.Add(d.backoff(attempts)), failed); rErr != nil {
					return rErr
				}
				continue
			}

			if err := s.Outbox().MarkSent(ctx, msg.ID, now); err != nil {
				return err
			}
			log.Debug("Outbox message published")
		}
		return nil
	})
}

// backoff doubles the delay per attempt, capped at one minute.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempts-1))) * d.baseDelay
	if delay > time.Minute {
		return time.Minute
	}
	return delay
}

// messageID pulls the event id out of the stored payload for broker-side
// tracing. A payload without one gets an empty id, which is harmless.
func messageID(payload []byte) string {
	var envelope struct {
		EventID uuid.UUID `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.EventID == uuid.Nil {
		return ""
	}
	return envelope.EventID.String()
}
