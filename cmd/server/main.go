package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finvault/wallet-ledger/internal/application/services"
	"github.com/finvault/wallet-ledger/internal/config"
	"github.com/finvault/wallet-ledger/internal/infrastructure/bank"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence/postgres"
	"github.com/finvault/wallet-ledger/internal/interfaces/rest/handlers"
	"github.com/finvault/wallet-ledger/internal/interfaces/rest/middleware"
	"github.com/finvault/wallet-ledger/internal/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting wallet ledger API",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := persistence.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := postgres.NewTransactionCoordinator(db)

	limiter := bank.BuildRateLimiter(cfg.Bank, logger)
	bankClient := bank.NewClient(cfg.Bank, limiter, logger)

	walletService := services.NewWalletService(store, logger)
	withdrawalService := services.NewWithdrawalService(store, bankClient, logger)

	h := handlers.NewHandlers(walletService, withdrawalService, logger)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(metrics.HTTPMiddleware)
	router.Use(middleware.Timeout(cfg.Server.ReadTimeout))
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Mount("/", h.Routes())

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
