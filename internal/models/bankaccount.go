package models

import (
	"time"

	"github.com/google/uuid"
)

type BankAccount struct {
	ID        uuid.UUID
	WalletID  uuid.UUID
	Number    string
	BankName  string
	Default   bool
	Active    bool
	CreatedAt time.Time
}
