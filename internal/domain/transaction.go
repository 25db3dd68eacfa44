package domain

import "time"

type TransactionType string

const (
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
)

type TransactionStatus string

const (
	StatusScheduled  TransactionStatus = "SCHEDULED"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusSucceeded  TransactionStatus = "SUCCEEDED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusUnknown    TransactionStatus = "UNKNOWN"
)

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Transaction is a ledger entry. Deposits are created directly in SUCCEEDED;
// withdrawals walk SCHEDULED -> PROCESSING -> {SUCCEEDED, FAILED, UNKNOWN}.
// After creation only the executor and reconciler change withdrawal status.
type Transaction struct {
	ID                int64
	WalletID          int64
	Type              TransactionType
	Status            TransactionStatus
	Amount            int64
	ExecuteAt         *time.Time
	IdempotencyKey    *string
	ExternalReference *string
	BankReference     *string
	FailureReason     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Failure reasons written by the executor and reconciler.
const (
	ReasonInsufficientFunds  = "INSUFFICIENT_FUNDS"
	ReasonBankTransferFailed = "BANK_TRANSFER_FAILED"
)
