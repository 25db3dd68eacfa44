package application

import (
	"context"
	"time"

	"github.com/finvault/wallet-ledger/internal/domain"
)

// TransferOutcome classifies what the bank did with a transfer request.
type TransferOutcome string

const (
	// OutcomeSuccess: the bank confirmed the transfer executed.
	OutcomeSuccess TransferOutcome = "SUCCESS"
	// OutcomeFinalFailure: the bank definitively rejected the transfer; the
	// money never moved and a refund is safe.
	OutcomeFinalFailure TransferOutcome = "FINAL_FAILURE"
	// OutcomeUnknown: the real execution state cannot be inferred (network
	// error, 5xx, unparseable body). No refund until reconciled.
	OutcomeUnknown TransferOutcome = "UNKNOWN"
)

// TransferResult is the classified answer from the bank gateway.
type TransferResult struct {
	Outcome     TransferOutcome
	Reference   string
	ErrorReason string
	RetryAfter  time.Duration
}

func SuccessResult(reference string) TransferResult {
	return TransferResult{Outcome: OutcomeSuccess, Reference: reference}
}

func FinalFailureResult(reason string) TransferResult {
	return TransferResult{Outcome: OutcomeFinalFailure, ErrorReason: reason}
}

func UnknownResult(reason string) TransferResult {
	return TransferResult{Outcome: OutcomeUnknown, ErrorReason: reason}
}

// TransferRequest is one outbound transfer attempt. The idempotency key is
// what makes re-sending this request safe at the bank; it never changes
// between retries.
type TransferRequest struct {
	IdempotencyKey string
	WalletOwnerRef string
	Amount         int64
	TransferID     int64
}

// StatusQuery looks up the fate of a previously attempted transfer.
type StatusQuery struct {
	IdempotencyKey string
	TransferID     int64
	Reference      string
}

// BankGateway is the port for the external bank transfer API.
type BankGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	// QueryTransferStatus resolves UNKNOWN outcomes during reconciliation.
	// Only callable when CanQueryStatus reports true.
	QueryTransferStatus(ctx context.Context, q StatusQuery) (TransferResult, error)
	CanQueryStatus() bool
}

// WalletRepository is the persistence port for wallet rows. Lock methods take
// row-level exclusive locks and must run inside a coordinator transaction.
type WalletRepository interface {
	Create(ctx context.Context, w *domain.Wallet) error
	FindByID(ctx context.Context, id int64) (*domain.Wallet, error)
	LockByID(ctx context.Context, id int64) (*domain.Wallet, error)
	// DebitIfSufficient runs the guarded debit
	// (balance = balance - amount WHERE balance >= amount) and reports
	// whether a row was updated.
	DebitIfSufficient(ctx context.Context, id int64, amount int64) (bool, error)
	Credit(ctx context.Context, id int64, amount int64) error
}

// TransactionFilter narrows transaction listings for the facade.
type TransactionFilter struct {
	Type   *domain.TransactionType
	Status *domain.TransactionStatus
}

// TransactionRepository is the persistence port for ledger transactions.
type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	FindByID(ctx context.Context, id int64) (*domain.Transaction, error)
	LockByID(ctx context.Context, id int64) (*domain.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	ListByWallet(ctx context.Context, walletID int64, filter TransactionFilter, limit, offset int) ([]*domain.Transaction, error)

	// Update persists the mutable transaction fields (status, keys,
	// references, failure reason) and advances updated_at.
	Update(ctx context.Context, t *domain.Transaction) error

	// LockNextDueWithdrawal locks the oldest SCHEDULED withdrawal with
	// execute_at <= now, skipping rows other workers hold. Nil when none.
	LockNextDueWithdrawal(ctx context.Context, now time.Time) (*domain.Transaction, error)
	// LockNextStaleProcessing locks the oldest PROCESSING withdrawal with
	// updated_at <= before. Nil when none.
	LockNextStaleProcessing(ctx context.Context, before time.Time) (*domain.Transaction, error)

	// InstallIdempotencyKey sets the key only if none is present yet and
	// reports whether the row was updated.
	InstallIdempotencyKey(ctx context.Context, id int64, key string) (bool, error)
	IdempotencyKeyExists(ctx context.Context, key string) (bool, error)
}

// ReconciliationRepository is the persistence port for reconciliation tasks.
type ReconciliationRepository interface {
	// GetOrCreate returns the task for the transaction, creating a PENDING
	// one with the given reason when absent. The bool reports creation.
	GetOrCreate(ctx context.Context, transactionID int64, reason string) (*domain.ReconciliationTask, bool, error)
	LockByID(ctx context.Context, id int64) (*domain.ReconciliationTask, error)
	ListPending(ctx context.Context, limit int) ([]*domain.ReconciliationTask, error)
	Update(ctx context.Context, task *domain.ReconciliationTask) error
}

// Repos bundles the transaction-bound repositories handed to a unit of work.
type Repos struct {
	Wallets         WalletRepository
	Transactions    TransactionRepository
	Reconciliations ReconciliationRepository
}

// Coordinator owns transaction boundaries. Everything inside fn commits
// atomically or rolls back together. Bank calls never happen inside fn.
type Coordinator interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
