package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/domain"
	"github.com/finvault/wallet-ledger/internal/interfaces/rest"
)

func (h *Handlers) CreateWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.walletService.CreateWallet(r.Context())
	if err != nil {
		h.logger.Error("create wallet failed", "error", err)
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, rest.ToWalletResponse(wallet))
}

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDParam(r)
	if err != nil {
		rest.WriteError(w, err)
		return
	}

	wallet, err := h.walletService.GetWallet(r.Context(), walletID)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToWalletResponse(wallet))
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDParam(r)
	if err != nil {
		rest.WriteError(w, err)
		return
	}

	var req rest.DepositRequest
	if err := rest.DecodeJSON(r, &req); err != nil {
		rest.WriteError(w, domain.NewInvalidRequestError("malformed request body"))
		return
	}

	key, err := resolveIdempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		rest.WriteError(w, err)
		return
	}

	tx, created, err := h.walletService.Deposit(r.Context(), walletID, req.Amount, key)
	if err != nil {
		h.logger.Warn("deposit rejected", "wallet_id", walletID, "error", err)
		rest.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	rest.WriteJSON(w, status, rest.ToTransactionResponse(tx))
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletIDParam(r)
	if err != nil {
		rest.WriteError(w, err)
		return
	}

	filter, err := transactionFilter(r)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	limit, offset := pagination(r)

	txs, err := h.walletService.ListTransactions(r.Context(), walletID, filter, limit, offset)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.ToTransactionResponses(txs))
}

func walletIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "walletID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewWalletNotFoundError(0)
	}
	return id, nil
}

// resolveIdempotencyKey merges the Idempotency-Key header with the body field.
// The header wins; supplying both with different values is a client error.
func resolveIdempotencyKey(r *http.Request, bodyKey string) (string, error) {
	headerKey := r.Header.Get("Idempotency-Key")
	if headerKey != "" && bodyKey != "" && headerKey != bodyKey {
		return "", domain.NewInvalidIdempotencyKeyError("header and body idempotency keys differ")
	}
	if headerKey != "" {
		return headerKey, nil
	}
	return bodyKey, nil
}

func transactionFilter(r *http.Request) (application.TransactionFilter, error) {
	var filter application.TransactionFilter

	if raw := r.URL.Query().Get("type"); raw != "" {
		t := domain.TransactionType(raw)
		if t != domain.TypeDeposit && t != domain.TypeWithdrawal {
			return filter, domain.NewInvalidRequestError("unknown transaction type " + raw)
		}
		filter.Type = &t
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.TransactionStatus(raw)
		switch s {
		case domain.StatusScheduled, domain.StatusProcessing,
			domain.StatusSucceeded, domain.StatusFailed, domain.StatusUnknown:
			filter.Status = &s
		default:
			return filter, domain.NewInvalidRequestError("unknown transaction status " + raw)
		}
	}

	return filter, nil
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}
