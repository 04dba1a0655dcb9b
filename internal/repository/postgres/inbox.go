package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InboxRepo stores processed-event markers. Redelivered events hit the
// primary key and are reported as already processed.
type InboxRepo struct {
	DB DBTX
}

func (r *InboxRepo) Seen(ctx context.Context, handler string, eventID uuid.UUID) (bool, error) {
	const seen = `
	SELECT 1 FROM processed_events WHERE handler = $1 AND event_id = $2
	`

	var one int
	err := r.DB.QueryRow(ctx, seen, handler, eventID).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *InboxRepo) MarkProcessed(ctx context.Context, handler string, eventID uuid.UUID) (bool, error) {
	const markProcessed = `
	INSERT INTO processed_events (handler, event_id, processed_at)
	VALUES ($1, $2, now())
	ON CONFLICT DO NOTHING
	`

	tag, err := r.DB.Exec(ctx, markProcessed, handler, eventID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
