package handlers

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/finvault/wallet-ledger/internal/application/services"
)

// Handlers exposes the wallet ledger over HTTP.
type Handlers struct {
	walletService     *services.WalletService
	withdrawalService *services.WithdrawalService
	logger            *slog.Logger
}

func NewHandlers(
	walletService *services.WalletService,
	withdrawalService *services.WithdrawalService,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		walletService:     walletService,
		withdrawalService: withdrawalService,
		logger:            logger,
	}
}

// Routes mounts every endpoint under /api/v1.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1/wallets", func(r chi.Router) {
		r.Post("/", h.CreateWallet)
		r.Route("/{walletID}", func(r chi.Router) {
			r.Get("/", h.GetWallet)
			r.Post("/deposits", h.Deposit)
			r.Post("/withdrawals", h.ScheduleWithdrawal)
			r.Get("/transactions", h.ListTransactions)
		})
	})
	return r
}
