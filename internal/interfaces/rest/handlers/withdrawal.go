package handlers

import (
	"net/http"

	"github.com/finvault/wallet-ledger/internal/domain"
	"github.com/finvault/wallet-ledger/internal/interfaces/rest"
)

func (h *Handlers) ScheduleWithdrawal(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDParam(r)
	if err != nil {
		rest.WriteError(w, err)
		return
	}

	var req rest.WithdrawalRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		rest.WriteError(w, domain.NewInvalidRequestError("malformed request body"))
		return
	}

	key, err := resolveIdempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		rest.WriteError(w, err)
		return
	}

	tx, created, err := h.withdrawalService.Schedule(r.Context(), walletID, req.Amount, req.ExecuteAt, key)
	if err != nil {
		h.logger.Warn("withdrawal rejected", "wallet_id", walletID, "error", err)
		rest.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	rest.WriteJSON(w, status, rest.ToTransactionResponse(tx))
}
