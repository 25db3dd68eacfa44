package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finvault/wallet-ledger/internal/domain"
)

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError maps domain errors to HTTP responses. Unrecognized errors become
// an opaque 500; their details stay in the logs.
func WriteError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := "INTERNAL_ERROR"
	message := "internal server error"

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		errorCode = domainErr.Code
		message = domainErr.Message
		statusCode = toHTTPStatus(domainErr.Code)
	}

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    errorCode,
			Message: message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func toHTTPStatus(code string) int {
	switch code {
	case domain.ErrCodeInvalidRequest,
		domain.ErrCodeInvalidAmount,
		domain.ErrCodeInvalidExecuteAt,
		domain.ErrCodeInvalidIdempotencyKey,
		domain.ErrCodeInvalidTransactionState:
		return http.StatusBadRequest
	case domain.ErrCodeWalletNotFound, domain.ErrCodeTransactionNotFound:
		return http.StatusNotFound
	case domain.ErrCodeIdempotencyConflict:
		return http.StatusConflict
	case domain.ErrCodeLockContention:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
