package rest

import (
	"time"

	"github.com/finvault/wallet-ledger/internal/domain"
)

type WalletResponse struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TransactionResponse struct {
	ID                int64      `json:"id"`
	WalletID          int64      `json:"wallet_id"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	Amount            int64      `json:"amount"`
	ExecuteAt         *time.Time `json:"execute_at,omitempty"`
	IdempotencyKey    *string    `json:"idempotency_key,omitempty"`
	ExternalReference *string    `json:"external_reference,omitempty"`
	BankReference     *string    `json:"bank_reference,omitempty"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type DepositRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type WithdrawalRequest struct {
	Amount         int64     `json:"amount"`
	ExecuteAt      time.Time `json:"execute_at"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

func ToWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID,
		UUID:      w.UUID.String(),
		Balance:   w.Balance,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func ToTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                t.ID,
		WalletID:          t.WalletID,
		Type:              string(t.Type),
		Status:            string(t.Status),
		Amount:            t.Amount,
		ExecuteAt:         t.ExecuteAt,
		IdempotencyKey:    t.IdempotencyKey,
		ExternalReference: t.ExternalReference,
		BankReference:     t.BankReference,
		FailureReason:     t.FailureReason,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func ToTransactionResponses(txs []*domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, ToTransactionResponse(t))
	}
	return out
}
