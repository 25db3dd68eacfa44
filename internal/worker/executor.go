package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/application/services"
	"github.com/finvault/wallet-ledger/internal/config"
	"github.com/finvault/wallet-ledger/internal/domain"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence"
)

// Executor drains due withdrawals: claim, bank transfer, finalize, one at a
// time. Multiple executor processes can run against the same database; SKIP
// LOCKED claims keep them off each other's rows.
type Executor struct {
	store             application.Coordinator
	gateway           application.BankGateway
	staleAfter        time.Duration
	honorsIdempotency bool
	lockRetryMax      int
	lockRetryBackoff  time.Duration
	logger            *slog.Logger
}

func NewExecutor(store application.Coordinator, gateway application.BankGateway, workerCfg config.WorkerConfig, bankCfg config.BankConfig, logger *slog.Logger) *Executor {
	return &Executor{
		store:             store,
		gateway:           gateway,
		staleAfter:        workerCfg.StaleAfter,
		honorsIdempotency: bankCfg.HonorsIdempotency,
		lockRetryMax:      workerCfg.LockRetryMax,
		lockRetryBackoff:  workerCfg.LockRetryBackoff,
		logger:            logger,
	}
}

// ExecutorSummary reports what one run did.
type ExecutorSummary struct {
	Processed            int
	Succeeded            int
	Failed               int
	InsufficientFunds    int
	ReconciliationQueued int
	Unknown              int
}

// claimResult is what one claim transaction produced. Exactly one of the
// fields is meaningful.
type claimResult struct {
	claim             *services.ClaimedWithdrawal
	insufficientFunds bool
	queuedForReconcil bool
	empty             bool
}

// Run processes up to limit withdrawals and returns the run counters. The
// loop stops early when no work is left or lock-contention retries are
// exhausted; both are normal terminations, not errors.
func (w *Executor) Run(ctx context.Context, limit int) (ExecutorSummary, error) {
	var s ExecutorSummary

	w.logger.Info("executor run start",
		"limit", limit,
		"stale_after", w.staleAfter,
		"bank_honors_idempotency", w.honorsIdempotency,
	)

	contentionRetries := 0
	for s.Processed < limit {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		res, err := w.claimNext(ctx, time.Now())
		if err != nil {
			if persistence.IsLockContention(err) {
				contentionRetries++
				w.logger.Warn("executor lock contention",
					"retry", contentionRetries,
					"max_retries", w.lockRetryMax,
				)
				if contentionRetries > w.lockRetryMax {
					w.logger.Warn("executor lock contention exhausted", "retries", contentionRetries)
					break
				}
				if err := sleepCtx(ctx, w.lockRetryBackoff); err != nil {
					return s, err
				}
				continue
			}
			return s, err
		}
		contentionRetries = 0

		switch {
		case res.empty:
			w.logger.Info("executor run end", "summary", s)
			return s, nil
		case res.insufficientFunds:
			s.Processed++
			s.Failed++
			s.InsufficientFunds++
			continue
		case res.queuedForReconcil:
			s.Processed++
			s.ReconciliationQueued++
			continue
		}

		result := w.callBank(ctx, res.claim)

		var outcome services.FinalizeOutcome
		err = w.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
			var err error
			outcome, err = services.FinalizeWithdrawal(ctx, r, res.claim.TransactionID, result, w.logger)
			return err
		})
		if err != nil {
			return s, fmt.Errorf("finalize withdrawal %d: %w", res.claim.TransactionID, err)
		}

		switch outcome {
		case services.FinalizeSucceeded:
			s.Processed++
			s.Succeeded++
		case services.FinalizeFailed:
			s.Processed++
			s.Failed++
		case services.FinalizeUnknown:
			s.Processed++
			s.Unknown++
			s.ReconciliationQueued++
		case services.FinalizeSkipped:
			// Someone else finalized while the bank call was in flight.
		}
	}

	w.logger.Info("executor run end", "summary", s)
	return s, nil
}

// claimNext owns one claim transaction. Due SCHEDULED rows come first; when
// none exist it falls back to stale PROCESSING rows, whose handling depends
// on whether the bank deduplicates on our idempotency key.
func (w *Executor) claimNext(ctx context.Context, now time.Time) (claimResult, error) {
	var res claimResult
	err := w.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		t, err := r.Transactions.LockNextDueWithdrawal(ctx, now)
		if err != nil {
			return err
		}
		if t != nil {
			claim, err := services.ClaimForExecution(ctx, r, t)
			if err != nil {
				return err
			}
			if claim == nil {
				res.insufficientFunds = true
				return nil
			}
			w.logger.Info("withdrawal claimed",
				"tx_id", claim.TransactionID,
				"amount", claim.Amount,
				"idempotency_key", claim.IdempotencyKey,
				"claim_type", "scheduled",
			)
			res.claim = claim
			return nil
		}

		stale, err := r.Transactions.LockNextStaleProcessing(ctx, now.Add(-w.staleAfter))
		if err != nil {
			return err
		}
		if stale == nil {
			res.empty = true
			return nil
		}

		if !w.honorsIdempotency {
			// Re-sending could double-pay, so hand the row to the reconciler.
			_, _, err := services.MarkUnknownAndQueueReconciliation(ctx, r, stale,
				domain.ReconcileStaleNoIdempotency, domain.ReconcileStaleNoIdempotency, w.logger)
			if err != nil {
				return err
			}
			res.queuedForReconcil = true
			return nil
		}

		claim, err := w.reclaimStale(ctx, r, stale)
		if err != nil {
			return err
		}
		res.claim = claim
		return nil
	})
	return res, err
}

// reclaimStale re-arms a stale PROCESSING withdrawal for another bank call.
// The same idempotency key is reused; the bank's deduplication makes the
// re-send safe. Bumping updated_at keeps other workers from grabbing the row
// again before the next staleness window.
func (w *Executor) reclaimStale(ctx context.Context, r application.Repos, t *domain.Transaction) (*services.ClaimedWithdrawal, error) {
	wallet, err := r.Wallets.FindByID(ctx, t.WalletID)
	if err != nil {
		return nil, err
	}

	key, err := services.EnsureWithdrawalKey(ctx, r.Transactions, t)
	if err != nil {
		return nil, err
	}

	t.FailureReason = nil
	if err := r.Transactions.Update(ctx, t); err != nil {
		return nil, err
	}

	w.logger.Warn("withdrawal reclaimed from stale processing",
		"tx_id", t.ID,
		"wallet_id", t.WalletID,
		"idempotency_key", key,
	)

	return &services.ClaimedWithdrawal{
		TransactionID:  t.ID,
		WalletOwnerRef: wallet.UUID.String(),
		Amount:         t.Amount,
		IdempotencyKey: key,
	}, nil
}

func (w *Executor) callBank(ctx context.Context, claim *services.ClaimedWithdrawal) application.TransferResult {
	w.logger.Info("withdrawal execution start",
		"tx_id", claim.TransactionID,
		"idempotency_key", claim.IdempotencyKey,
		"wallet_owner_ref", claim.WalletOwnerRef,
		"amount", claim.Amount,
	)

	result, err := w.gateway.Transfer(ctx, application.TransferRequest{
		IdempotencyKey: claim.IdempotencyKey,
		WalletOwnerRef: claim.WalletOwnerRef,
		Amount:         claim.Amount,
		TransferID:     claim.TransactionID,
	})
	if err != nil {
		w.logger.Error("executor gateway error",
			"tx_id", claim.TransactionID,
			"idempotency_key", claim.IdempotencyKey,
			"error", err,
		)
		return application.UnknownResult(fmt.Sprintf("gateway_exception:%T", err))
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
