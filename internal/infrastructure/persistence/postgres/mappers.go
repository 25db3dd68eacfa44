package postgres

import (
	"github.com/finvault/wallet-ledger/internal/domain"
)

func toDomainWallet(m WalletModel) *domain.Wallet {
	return &domain.Wallet{
		ID:        m.ID,
		UUID:      m.UUID,
		Balance:   m.Balance,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toDomainTransaction(m TransactionModel) *domain.Transaction {
	return &domain.Transaction{
		ID:                m.ID,
		WalletID:          m.WalletID,
		Type:              domain.TransactionType(m.Type),
		Status:            domain.TransactionStatus(m.Status),
		Amount:            m.Amount,
		ExecuteAt:         m.ExecuteAt,
		IdempotencyKey:    m.IdempotencyKey,
		ExternalReference: m.ExternalReference,
		BankReference:     m.BankReference,
		FailureReason:     m.FailureReason,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toDomainReconciliationTask(m ReconciliationTaskModel) *domain.ReconciliationTask {
	return &domain.ReconciliationTask{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		Reason:        m.Reason,
		Status:        domain.ReconciliationStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
