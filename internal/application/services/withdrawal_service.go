package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/domain"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence"
)

// WithdrawalService schedules future-dated withdrawals and can execute a
// specific one on demand. The worker fleet drives the bulk execution path.
type WithdrawalService struct {
	store   application.Coordinator
	gateway application.BankGateway
	logger  *slog.Logger
}

func NewWithdrawalService(store application.Coordinator, gateway application.BankGateway, logger *slog.Logger) *WithdrawalService {
	return &WithdrawalService{store: store, gateway: gateway, logger: logger}
}

// Schedule records a SCHEDULED withdrawal. No funds are reserved; the balance
// check happens at execution time. With an idempotency key, replays return the
// original transaction and payload mismatches are conflicts. The bool reports
// whether a new transaction was created.
func (s *WithdrawalService) Schedule(ctx context.Context, walletID, amount int64, executeAt time.Time, idempotencyKey string) (*domain.Transaction, bool, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, false, err
	}
	if err := domain.ValidateFutureExecuteAt(executeAt, time.Now()); err != nil {
		return nil, false, err
	}
	if err := domain.ValidateClientIdempotencyKey(idempotencyKey); err != nil {
		return nil, false, err
	}

	var (
		tx      *domain.Transaction
		created bool
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		if _, err := r.Wallets.FindByID(ctx, walletID); err != nil {
			return err
		}

		if idempotencyKey != "" {
			existing, err := r.Transactions.FindByIdempotencyKey(ctx, idempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if !withdrawalPayloadMatches(existing, walletID, amount, executeAt) {
					return domain.NewIdempotencyConflictError(idempotencyKey)
				}
				tx = existing
				return nil
			}
		}

		at := executeAt
		tx = &domain.Transaction{
			WalletID:  walletID,
			Type:      domain.TypeWithdrawal,
			Status:    domain.StatusScheduled,
			Amount:    amount,
			ExecuteAt: &at,
		}
		if idempotencyKey != "" {
			key := idempotencyKey
			tx.IdempotencyKey = &key
		}
		created = true
		return r.Transactions.Create(ctx, tx)
	})

	if err != nil {
		if idempotencyKey != "" && persistence.IsUniqueViolation(err) {
			return s.resolveScheduleReplay(ctx, walletID, amount, executeAt, idempotencyKey)
		}
		return nil, false, err
	}

	if created {
		s.logger.Info("withdrawal scheduled",
			"wallet_id", walletID,
			"tx_id", tx.ID,
			"amount", amount,
			"execute_at", executeAt,
		)
	}
	return tx, created, nil
}

func (s *WithdrawalService) resolveScheduleReplay(ctx context.Context, walletID, amount int64, executeAt time.Time, key string) (*domain.Transaction, bool, error) {
	var existing *domain.Transaction
	err := s.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		var err error
		existing, err = r.Transactions.FindByIdempotencyKey(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if existing == nil || !withdrawalPayloadMatches(existing, walletID, amount, executeAt) {
		return nil, false, domain.NewIdempotencyConflictError(key)
	}
	return existing, false, nil
}

// Execute runs one specific due withdrawal through the full pipeline:
// claim (debit + PROCESSING), bank transfer outside any transaction, then
// finalize. Preconditions: the transaction exists, is a WITHDRAWAL, is
// SCHEDULED, and its execute_at has passed.
func (s *WithdrawalService) Execute(ctx context.Context, transactionID int64, now time.Time) (*domain.Transaction, error) {
	var claim *ClaimedWithdrawal

	err := s.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		t, err := r.Transactions.LockByID(ctx, transactionID)
		if err != nil {
			return err
		}
		if t.Type != domain.TypeWithdrawal {
			return domain.NewInvalidTransactionStateError("only withdrawal transactions can be executed")
		}
		if t.Status != domain.StatusScheduled {
			return domain.NewInvalidTransactionStateError(
				fmt.Sprintf("transaction status must be %s, got %s", domain.StatusScheduled, t.Status))
		}
		if t.ExecuteAt == nil || t.ExecuteAt.After(now) {
			return domain.NewInvalidTransactionStateError("withdrawal is not due yet")
		}

		claim, err = ClaimForExecution(ctx, r, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	if claim == nil {
		// Insufficient funds: terminal FAILED, bank never called.
		return s.findTransaction(ctx, transactionID)
	}

	result := s.callBank(ctx, claim)

	err = s.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		_, err := FinalizeWithdrawal(ctx, r, claim.TransactionID, result, s.logger)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.findTransaction(ctx, transactionID)
}

func (s *WithdrawalService) callBank(ctx context.Context, claim *ClaimedWithdrawal) application.TransferResult {
	result, err := s.gateway.Transfer(ctx, application.TransferRequest{
		IdempotencyKey: claim.IdempotencyKey,
		WalletOwnerRef: claim.WalletOwnerRef,
		Amount:         claim.Amount,
		TransferID:     claim.TransactionID,
	})
	if err != nil {
		s.logger.Error("bank gateway error",
			"tx_id", claim.TransactionID,
			"idempotency_key", claim.IdempotencyKey,
			"error", err,
		)
		return application.UnknownResult(fmt.Sprintf("gateway_exception:%T", err))
	}
	return result
}

func (s *WithdrawalService) findTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	var t *domain.Transaction
	err := s.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		var err error
		t, err = r.Transactions.FindByID(ctx, id)
		return err
	})
	return t, err
}

func withdrawalPayloadMatches(t *domain.Transaction, walletID, amount int64, executeAt time.Time) bool {
	return t.Type == domain.TypeWithdrawal &&
		t.WalletID == walletID &&
		t.Amount == amount &&
		t.ExecuteAt != nil &&
		t.ExecuteAt.Equal(executeAt)
}
