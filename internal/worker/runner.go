package worker

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/finvault/wallet-ledger/internal/metrics"
)

// RunnerOptions control one worker process. Limit bounds the executor batch,
// ReconcileLimit the reconciler batch; both apply per tick when looping.
type RunnerOptions struct {
	Limit            int
	ReconcileLimit   int
	Loop             bool
	SleepInterval    time.Duration
	StartupJitterMax time.Duration
	LoopJitterMax    time.Duration
}

// Runner drives one executor plus one reconciler, once or forever. Jitter at
// startup and between ticks spreads a fleet of workers over time so they do
// not claim and poll in lockstep.
type Runner struct {
	executor   *Executor
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewRunner(executor *Executor, reconciler *Reconciler, logger *slog.Logger) *Runner {
	return &Runner{
		executor:   executor,
		reconciler: reconciler,
		logger:     logger,
	}
}

func (r *Runner) Run(ctx context.Context, opts RunnerOptions) error {
	if err := sleepCtx(ctx, jitter(opts.StartupJitterMax)); err != nil {
		return err
	}

	for {
		if err := r.runOnce(ctx, opts); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("worker stopping")
				return nil
			}
			if !opts.Loop {
				return err
			}
			r.logger.Error("worker tick failed", "error", err)
		}

		if !opts.Loop {
			return nil
		}

		if err := sleepCtx(ctx, opts.SleepInterval+jitter(opts.LoopJitterMax)); err != nil {
			r.logger.Info("worker stopping")
			return nil
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, opts RunnerOptions) error {
	execSummary, err := r.executor.Run(ctx, opts.Limit)
	if err != nil {
		return err
	}

	reconSummary, err := r.reconciler.Run(ctx, opts.ReconcileLimit)
	if err != nil {
		return err
	}

	metrics.RecordWithdrawalOutcomes(
		execSummary.Processed,
		execSummary.Succeeded,
		execSummary.Failed,
		execSummary.InsufficientFunds,
		execSummary.Unknown,
		execSummary.ReconciliationQueued,
	)
	metrics.RecordReconciliation(
		reconSummary.StaleMarkedUnknown,
		reconSummary.ResolvedSuccess,
		reconSummary.ResolvedFailure,
		reconSummary.Resolved,
		reconSummary.Pending,
	)

	r.logger.Info("worker tick complete",
		"processed", execSummary.Processed,
		"succeeded", execSummary.Succeeded,
		"failed", execSummary.Failed,
		"insufficient_funds", execSummary.InsufficientFunds,
		"reconciliation_queued", execSummary.ReconciliationQueued,
		"unknown", execSummary.Unknown,
		"stale_marked_unknown", reconSummary.StaleMarkedUnknown,
		"resolved_success", reconSummary.ResolvedSuccess,
		"resolved_failure", reconSummary.ResolvedFailure,
		"pending", reconSummary.Pending,
		"resolved", reconSummary.Resolved,
	)
	return nil
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}
