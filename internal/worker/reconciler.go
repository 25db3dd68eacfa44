package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/application/services"
	"github.com/finvault/wallet-ledger/internal/domain"
)

// Reconciler resolves withdrawals whose bank outcome is not known. Each run
// has two phases: sweep PROCESSING rows that exceeded the hard timeout into
// UNKNOWN, then work through PENDING reconciliation tasks by asking the bank
// what actually happened.
type Reconciler struct {
	store   application.Coordinator
	gateway application.BankGateway
	timeout time.Duration
	logger  *slog.Logger
}

func NewReconciler(store application.Coordinator, gateway application.BankGateway, timeout time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		gateway: gateway,
		timeout: timeout,
		logger:  logger,
	}
}

// ReconcilerSummary reports what one run did. Resolved counts tasks closed
// because the transaction had already reached a terminal state; bank-driven
// resolutions are counted in ResolvedSuccess and ResolvedFailure.
type ReconcilerSummary struct {
	StaleMarkedUnknown int
	ResolvedSuccess    int
	ResolvedFailure    int
	Pending            int
	Resolved           int
}

type resolveOutcome string

const (
	resolveSkipped resolveOutcome = "skipped"
	resolveAlready resolveOutcome = "resolved"
	resolveSuccess resolveOutcome = "resolved_success"
	resolveFailure resolveOutcome = "resolved_failure"
	resolvePending resolveOutcome = "pending"
)

func (w *Reconciler) Run(ctx context.Context, limit int) (ReconcilerSummary, error) {
	var s ReconcilerSummary
	if limit <= 0 {
		return s, nil
	}

	now := time.Now()

	stale, err := w.sweepStaleProcessing(ctx, now, limit)
	if err != nil {
		return s, err
	}
	s.StaleMarkedUnknown = stale

	tasks, err := w.listPending(ctx, limit)
	if err != nil {
		return s, err
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		outcome, err := w.resolveTask(ctx, task.ID)
		if err != nil {
			return s, fmt.Errorf("resolve reconciliation task %d: %w", task.ID, err)
		}
		switch outcome {
		case resolveSuccess:
			s.ResolvedSuccess++
		case resolveFailure:
			s.ResolvedFailure++
		case resolveAlready:
			s.Resolved++
		case resolvePending:
			s.Pending++
		}
	}

	w.logger.Info("reconciler run end",
		"stale_marked_unknown", s.StaleMarkedUnknown,
		"resolved_success", s.ResolvedSuccess,
		"resolved_failure", s.ResolvedFailure,
		"pending", s.Pending,
		"resolved", s.Resolved,
	)
	return s, nil
}

// sweepStaleProcessing moves timed-out PROCESSING withdrawals to UNKNOWN, one
// row per transaction so a crash mid-sweep loses at most one transition.
func (w *Reconciler) sweepStaleProcessing(ctx context.Context, now time.Time, limit int) (int, error) {
	cutoff := now.Add(-w.timeout)
	processed := 0

	for processed < limit {
		var done bool
		err := w.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
			t, err := r.Transactions.LockNextStaleProcessing(ctx, cutoff)
			if err != nil {
				return err
			}
			if t == nil {
				done = true
				return nil
			}
			_, _, err = services.MarkUnknownAndQueueReconciliation(ctx, r, t,
				domain.ReconcileProcessingTimeout, domain.ReconcileProcessingTimeout, w.logger)
			return err
		})
		if err != nil {
			return processed, err
		}
		if done {
			break
		}
		processed++
	}

	return processed, nil
}

func (w *Reconciler) listPending(ctx context.Context, limit int) ([]*domain.ReconciliationTask, error) {
	var tasks []*domain.ReconciliationTask
	err := w.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		var err error
		tasks, err = r.Reconciliations.ListPending(ctx, limit)
		return err
	})
	return tasks, err
}

// taskInspection is what the inspect phase decided. When query is true the
// reconciler must ask the bank and run the apply phase with the answer.
type taskInspection struct {
	outcome resolveOutcome
	query   bool
	status  application.StatusQuery
}

// resolveTask drives one task through inspect, bank query, apply. The bank
// call sits between two short transactions so no database locks are held
// while waiting on the network; the apply phase re-checks state because the
// world may have moved during the call.
func (w *Reconciler) resolveTask(ctx context.Context, taskID int64) (resolveOutcome, error) {
	insp, err := w.inspectTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	if !insp.query {
		return insp.outcome, nil
	}

	result, err := w.gateway.QueryTransferStatus(ctx, insp.status)
	if err != nil {
		w.logger.Error("reconciler status query error",
			"task_id", taskID,
			"tx_id", insp.status.TransferID,
			"error", err,
		)
		return resolvePending, nil
	}

	return w.applyStatusResult(ctx, taskID, result)
}

func (w *Reconciler) inspectTask(ctx context.Context, taskID int64) (taskInspection, error) {
	var insp taskInspection
	err := w.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		task, t, err := lockTaskAndTransaction(ctx, r, taskID)
		if err != nil || task == nil {
			insp.outcome = resolveSkipped
			return err
		}
		if _, err := r.Wallets.LockByID(ctx, t.WalletID); err != nil {
			return err
		}

		switch {
		case task.Status != domain.ReconciliationPending:
			insp.outcome = resolveSkipped
			return nil
		case t.Status == domain.StatusSucceeded:
			insp.outcome = resolveAlready
			return resolveTaskAs(ctx, r, task, domain.ReconciledAlreadyDone)
		case t.Status == domain.StatusFailed:
			insp.outcome = resolveAlready
			return resolveTaskAs(ctx, r, task, domain.ReconciledAlreadyFailed)
		case t.Status != domain.StatusUnknown && t.Status != domain.StatusProcessing:
			insp.outcome = resolveSkipped
			return nil
		}

		if !w.gateway.CanQueryStatus() {
			w.logger.Warn("reconciler status endpoint missing",
				"tx_id", t.ID,
				"idempotency_key", keyOrEmpty(t.IdempotencyKey),
			)
			insp.outcome = resolvePending
			return nil
		}

		insp.query = true
		insp.status = application.StatusQuery{
			IdempotencyKey: keyOrEmpty(t.IdempotencyKey),
			TransferID:     t.ID,
			Reference:      firstRef(t.ExternalReference, t.BankReference),
		}
		return nil
	})
	return insp, err
}

// applyStatusResult writes the bank's answer back under fresh locks. If the
// task or transaction moved on while the query was in flight the answer is
// dropped.
func (w *Reconciler) applyStatusResult(ctx context.Context, taskID int64, result application.TransferResult) (resolveOutcome, error) {
	outcome := resolveSkipped
	err := w.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		task, t, err := lockTaskAndTransaction(ctx, r, taskID)
		if err != nil || task == nil {
			return err
		}
		wallet, err := r.Wallets.LockByID(ctx, t.WalletID)
		if err != nil {
			return err
		}

		if task.Status != domain.ReconciliationPending {
			return nil
		}
		if t.Status != domain.StatusUnknown && t.Status != domain.StatusProcessing {
			return nil
		}

		switch result.Outcome {
		case application.OutcomeSuccess:
			ref := result.Reference
			t.Status = domain.StatusSucceeded
			t.ExternalReference = &ref
			t.BankReference = &ref
			t.FailureReason = nil
			if err := r.Transactions.Update(ctx, t); err != nil {
				return err
			}
			if err := resolveTaskAs(ctx, r, task, domain.ReconciledSuccess); err != nil {
				return err
			}
			w.logger.Info("reconciler resolved success",
				"tx_id", t.ID,
				"idempotency_key", keyOrEmpty(t.IdempotencyKey),
				"reference", ref,
			)
			outcome = resolveSuccess
			return nil

		case application.OutcomeFinalFailure:
			if err := r.Wallets.Credit(ctx, wallet.ID, t.Amount); err != nil {
				return err
			}
			reason := result.ErrorReason
			if reason == "" {
				reason = domain.ReconciledFinalFailure
			}
			t.Status = domain.StatusFailed
			t.FailureReason = &reason
			if err := r.Transactions.Update(ctx, t); err != nil {
				return err
			}
			if err := resolveTaskAs(ctx, r, task, domain.ReconciledFinalFailure); err != nil {
				return err
			}
			w.logger.Warn("reconciler resolved final failure and refunded",
				"tx_id", t.ID,
				"idempotency_key", keyOrEmpty(t.IdempotencyKey),
				"reason", reason,
			)
			outcome = resolveFailure
			return nil

		default:
			w.logger.Warn("reconciler still unknown",
				"tx_id", t.ID,
				"idempotency_key", keyOrEmpty(t.IdempotencyKey),
				"reason", result.ErrorReason,
			)
			outcome = resolvePending
			return nil
		}
	})
	return outcome, err
}

// lockTaskAndTransaction acquires locks in the fixed order task, then
// transaction row. Returns nils when the task vanished.
func lockTaskAndTransaction(ctx context.Context, r application.Repos, taskID int64) (*domain.ReconciliationTask, *domain.Transaction, error) {
	task, err := r.Reconciliations.LockByID(ctx, taskID)
	if err != nil || task == nil {
		return nil, nil, err
	}
	t, err := r.Transactions.LockByID(ctx, task.TransactionID)
	if err != nil {
		return nil, nil, err
	}
	return task, t, nil
}

func resolveTaskAs(ctx context.Context, r application.Repos, task *domain.ReconciliationTask, reason string) error {
	task.Status = domain.ReconciliationResolved
	task.Reason = reason
	return r.Reconciliations.Update(ctx, task)
}

func keyOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstRef(refs ...*string) string {
	for _, r := range refs {
		if r != nil && *r != "" {
			return *r
		}
	}
	return ""
}
