package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a single balance in minor units. The balance is only ever
// mutated through conditional UPDATEs executed while the wallet row is locked,
// so the struct itself carries no mutation methods.
type Wallet struct {
	ID        int64
	UUID      uuid.UUID
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
