package models

import "time"

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxMessage is an integration event captured in the same database
// transaction as the ledger mutation that produced it. A dispatcher
// publishes it to the bus after commit.
type OutboxMessage struct {
	ID            int64
	Kind          string
	Payload       []byte
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	CreatedAt     time.Time
	SentAt        *time.Time
}
