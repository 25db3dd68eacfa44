package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finvault/wallet-ledger/internal/config"
	"github.com/finvault/wallet-ledger/internal/infrastructure/bank"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence/postgres"
	"github.com/finvault/wallet-ledger/internal/worker"
)

func main() {
	var (
		limit          int
		reconcileLimit int
		loop           bool
		sleepSeconds   int
	)
	flag.IntVar(&limit, "limit", 50, "max withdrawals to execute per tick")
	flag.IntVar(&reconcileLimit, "reconcile-limit", 50, "max reconciliation tasks per tick")
	flag.BoolVar(&loop, "loop", false, "run forever instead of a single batch")
	flag.IntVar(&sleepSeconds, "sleep-seconds", 5, "seconds between ticks when looping")
	flag.Parse()

	if limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be a positive integer")
		os.Exit(2)
	}
	if reconcileLimit <= 0 {
		fmt.Fprintln(os.Stderr, "--reconcile-limit must be a positive integer")
		os.Exit(2)
	}
	if sleepSeconds < 0 {
		fmt.Fprintln(os.Stderr, "--sleep-seconds must not be negative")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting withdrawal worker",
		"limit", limit,
		"reconcile_limit", reconcileLimit,
		"loop", loop,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := persistence.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := postgres.NewTransactionCoordinator(db)

	limiter := bank.BuildRateLimiter(cfg.Bank, logger)
	bankClient := bank.NewClient(cfg.Bank, limiter, logger)

	executor := worker.NewExecutor(store, bankClient, cfg.Worker, cfg.Bank, logger)
	reconciler := worker.NewReconciler(store, bankClient, cfg.Worker.ProcessingTimeout, logger)
	runner := worker.NewRunner(executor, reconciler, logger)

	opts := worker.RunnerOptions{
		Limit:            limit,
		ReconcileLimit:   reconcileLimit,
		Loop:             loop,
		SleepInterval:    time.Duration(sleepSeconds) * time.Second,
		StartupJitterMax: cfg.Worker.StartupJitterMax,
		LoopJitterMax:    cfg.Worker.LoopJitterMax,
	}

	if err := runner.Run(ctx, opts); err != nil {
		logger.Error("worker run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("worker exited")
}
