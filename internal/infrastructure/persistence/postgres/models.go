package postgres

import (
	"time"

	"github.com/google/uuid"
)

type WalletModel struct {
	ID        int64
	UUID      uuid.UUID
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TransactionModel struct {
	ID                int64
	WalletID          int64
	Type              string
	Status            string
	Amount            int64
	ExecuteAt         *time.Time
	IdempotencyKey    *string
	ExternalReference *string
	BankReference     *string
	FailureReason     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ReconciliationTaskModel struct {
	ID            int64
	TransactionID int64
	Reason        string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
