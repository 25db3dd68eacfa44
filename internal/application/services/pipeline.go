package services

import (
	"context"
	"log/slog"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/domain"
)

// ClaimedWithdrawal carries everything the bank call needs, captured at claim
// commit so the call itself runs without any open database transaction.
type ClaimedWithdrawal struct {
	TransactionID  int64
	WalletOwnerRef string
	Amount         int64
	IdempotencyKey string
}

// FinalizeOutcome reports what finalization did with a claim.
type FinalizeOutcome string

const (
	FinalizeSucceeded FinalizeOutcome = "succeeded"
	FinalizeFailed    FinalizeOutcome = "failed"
	FinalizeUnknown   FinalizeOutcome = "unknown"
	FinalizeSkipped   FinalizeOutcome = "skipped"
)

// ClaimForExecution debits the wallet and moves the withdrawal to PROCESSING.
// Precondition: t is a locked SCHEDULED withdrawal inside the caller's unit of
// work. Returns nil (and marks the row FAILED) when funds are insufficient —
// in that case the bank is never called and the balance is untouched.
func ClaimForExecution(ctx context.Context, r application.Repos, t *domain.Transaction) (*ClaimedWithdrawal, error) {
	wallet, err := r.Wallets.LockByID(ctx, t.WalletID)
	if err != nil {
		return nil, err
	}

	debited, err := r.Wallets.DebitIfSufficient(ctx, wallet.ID, t.Amount)
	if err != nil {
		return nil, err
	}
	if !debited {
		reason := domain.ReasonInsufficientFunds
		t.Status = domain.StatusFailed
		t.FailureReason = &reason
		return nil, r.Transactions.Update(ctx, t)
	}

	key, err := EnsureWithdrawalKey(ctx, r.Transactions, t)
	if err != nil {
		return nil, err
	}

	t.Status = domain.StatusProcessing
	t.FailureReason = nil
	if err := r.Transactions.Update(ctx, t); err != nil {
		return nil, err
	}

	return &ClaimedWithdrawal{
		TransactionID:  t.ID,
		WalletOwnerRef: wallet.UUID.String(),
		Amount:         t.Amount,
		IdempotencyKey: key,
	}, nil
}

// FinalizeWithdrawal applies a classified transfer result to a claimed
// withdrawal inside its own unit of work. Lock order: transaction row, then
// wallet row. If another worker or the reconciler already moved the row out of
// PROCESSING the result is discarded.
func FinalizeWithdrawal(ctx context.Context, r application.Repos, transactionID int64, result application.TransferResult, logger *slog.Logger) (FinalizeOutcome, error) {
	t, err := r.Transactions.LockByID(ctx, transactionID)
	if err != nil {
		return "", err
	}
	wallet, err := r.Wallets.LockByID(ctx, t.WalletID)
	if err != nil {
		return "", err
	}

	if t.Status != domain.StatusProcessing {
		logger.Info("withdrawal finalize skipped",
			"tx_id", t.ID,
			"current_status", t.Status,
		)
		return FinalizeSkipped, nil
	}

	switch result.Outcome {
	case application.OutcomeSuccess:
		ref := result.Reference
		t.Status = domain.StatusSucceeded
		t.ExternalReference = &ref
		t.BankReference = &ref
		t.FailureReason = nil
		if err := r.Transactions.Update(ctx, t); err != nil {
			return "", err
		}
		logger.Info("withdrawal succeeded",
			"tx_id", t.ID,
			"wallet_id", t.WalletID,
			"reference", ref,
		)
		return FinalizeSucceeded, nil

	case application.OutcomeUnknown:
		reason := result.ErrorReason
		if reason == "" {
			reason = domain.ReconcileUnknownOutcome
		}
		if _, _, err := MarkUnknownAndQueueReconciliation(ctx, r, t, reason, domain.ReconcileUnknownOutcome, logger); err != nil {
			return "", err
		}
		return FinalizeUnknown, nil

	default: // FINAL_FAILURE: the money never left, so the debit is reversed.
		if err := r.Wallets.Credit(ctx, wallet.ID, t.Amount); err != nil {
			return "", err
		}
		reason := result.ErrorReason
		if reason == "" {
			reason = domain.ReasonBankTransferFailed
		}
		t.Status = domain.StatusFailed
		t.FailureReason = &reason
		if err := r.Transactions.Update(ctx, t); err != nil {
			return "", err
		}
		logger.Warn("withdrawal failed and refunded",
			"tx_id", t.ID,
			"wallet_id", t.WalletID,
			"reason", reason,
			"amount", t.Amount,
		)
		return FinalizeFailed, nil
	}
}

// MarkUnknownAndQueueReconciliation transitions a locked withdrawal to UNKNOWN
// and makes sure exactly one PENDING reconciliation task exists for it. The
// debit stands: refunding before the true outcome is known risks paying twice.
func MarkUnknownAndQueueReconciliation(ctx context.Context, r application.Repos, t *domain.Transaction, reason, taskReason string, logger *slog.Logger) (*domain.ReconciliationTask, bool, error) {
	t.Status = domain.StatusUnknown
	t.FailureReason = &reason
	if err := r.Transactions.Update(ctx, t); err != nil {
		return nil, false, err
	}

	task, created, err := r.Reconciliations.GetOrCreate(ctx, t.ID, taskReason)
	if err != nil {
		return nil, false, err
	}

	logger.Warn("withdrawal marked unknown",
		"tx_id", t.ID,
		"idempotency_key", strOrEmpty(t.IdempotencyKey),
		"reason", reason,
		"reconciliation_task_id", task.ID,
		"reconciliation_created", created,
	)
	return task, created, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
