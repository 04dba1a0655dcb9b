package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tripsettle/tripsettle/internal/events"
	"github.com/tripsettle/tripsettle/internal/models"
)

type OutboxRepo struct {
	DB DBTX
}

// Enqueue captures the event in the same transaction as the mutation that
// produced it, so an event is never published for a change that did not
// commit.
func (r *OutboxRepo) Enqueue(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Kind(), err)
	}

	const enqueue = `
	INSERT INTO outbox (kind, payload, status, attempts, next_attempt_at, created_at)
	VALUES ($1, $2, 'pending', 0, now(), now())
	`

	if _, err := r.DB.Exec(ctx, enqueue, event.Kind(), payload); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ClaimBatch locks due messages with SKIP LOCKED so concurrent dispatcher
// instances never double-publish from the same batch.
func (r *OutboxRepo) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]models.OutboxMessage, error) {
	const claimBatch = `
	SELECT id, kind, payload, status, attempts, next_attempt_at, created_at, sent_at
	FROM outbox
	WHERE status = 'pending' AND next_attempt_at <= $2
	ORDER BY created_at
	LIMIT $1
	FOR UPDATE SKIP LOCKED
	`

	rows, _ := r.DB.Query(ctx, claimBatch, limit, now)
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OutboxMessage, error) {
		var m models.OutboxMessage
		err := row.Scan(&m.ID, &m.Kind, &m.Payload, &m.Status, &m.Attempts, &m.NextAttemptAt, &m.CreatedAt, &m.SentAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return messages, nil
}

func (r *OutboxRepo) MarkSent(ctx context.Context, id int64, now time.Time) error {
	const markSent = `
	UPDATE outbox SET status = 'sent', sent_at = $2 WHERE id = $1
	`

	if _, err := r.DB.Exec(ctx, markSent, id, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *OutboxRepo) Reschedule(ctx context.Context, id int64, attempts int, nextAttempt time.Time, failed bool) error {
	status := models.OutboxPending
	if failed {
		status = models.OutboxFailed
	}

	const reschedule = `
	UPDATE outbox SET status = $2, attempts = $3, next_attempt_at = $4 WHERE id = $1
	`

	if _, err := r.DB.Exec(ctx, reschedule, id, status, attempts, nextAttempt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
