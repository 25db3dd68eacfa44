package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodeInvalidAmount           = "INVALID_AMOUNT"
	ErrCodeInvalidExecuteAt        = "INVALID_EXECUTE_AT"
	ErrCodeInvalidIdempotencyKey   = "INVALID_IDEMPOTENCY_KEY"
	ErrCodeIdempotencyConflict     = "IDEMPOTENCY_CONFLICT"
	ErrCodeWalletNotFound          = "WALLET_NOT_FOUND"
	ErrCodeTransactionNotFound     = "TRANSACTION_NOT_FOUND"
	ErrCodeInvalidTransactionState = "INVALID_TRANSACTION_STATE"
	ErrCodeLockContention          = "LOCK_CONTENTION"
)

func NewInvalidRequestError(detail string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidRequest,
		Message: detail,
	}
}

func NewInvalidAmountError(amount int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("amount must be a positive integer in minor units, got %d", amount),
	}
}

func NewInvalidExecuteAtError(reason string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidExecuteAt,
		Message: fmt.Sprintf("invalid execute_at: %s", reason),
	}
}

func NewInvalidIdempotencyKeyError(reason string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidIdempotencyKey,
		Message: fmt.Sprintf("invalid idempotency key: %s", reason),
	}
}

func NewIdempotencyConflictError(key string) *DomainError {
	return &DomainError{
		Code:    ErrCodeIdempotencyConflict,
		Message: fmt.Sprintf("idempotency key %s reused with different request parameters", key),
	}
}

func NewWalletNotFoundError(walletID int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeWalletNotFound,
		Message: fmt.Sprintf("wallet %d does not exist", walletID),
	}
}

func NewTransactionNotFoundError(txID int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeTransactionNotFound,
		Message: fmt.Sprintf("transaction %d does not exist", txID),
	}
}

func NewInvalidTransactionStateError(detail string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransactionState,
		Message: detail,
	}
}

func NewLockContentionError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeLockContention,
		Message: "row lock could not be acquired",
		Err:     err,
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
