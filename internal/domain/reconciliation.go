package domain

import "time"

type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "PENDING"
	ReconciliationResolved ReconciliationStatus = "RESOLVED"
)

// Reasons a reconciliation task is opened with.
const (
	ReconcileUnknownOutcome      = "UNKNOWN_TRANSFER_OUTCOME"
	ReconcileProcessingTimeout   = "PROCESSING_TIMEOUT_RECONCILIATION_REQUIRED"
	ReconcileStaleNoIdempotency  = "STALE_PROCESSING_WITHOUT_BANK_IDEMPOTENCY"
)

// Reasons a reconciliation task is resolved with.
const (
	ReconciledSuccess      = "RECONCILED_SUCCESS"
	ReconciledFinalFailure = "RECONCILED_FINAL_FAILURE"
	ReconciledAlreadyDone  = "ALREADY_SUCCEEDED"
	ReconciledAlreadyFailed = "ALREADY_FAILED"
)

// ReconciliationTask tracks a withdrawal whose bank outcome could not be
// determined. One task per transaction; it stays PENDING until the bank's
// status endpoint gives a definitive answer.
type ReconciliationTask struct {
	ID            int64
	TransactionID int64
	Reason        string
	Status        ReconciliationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
