package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/domain"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence"
)

// WalletService handles synchronous wallet operations: creation, deposits and
// reads. Deposits credit immediately; there is no deferred path for them.
type WalletService struct {
	store  application.Coordinator
	logger *slog.Logger
}

func NewWalletService(store application.Coordinator, logger *slog.Logger) *WalletService {
	return &WalletService{store: store, logger: logger}
}

func (s *WalletService) CreateWallet(ctx context.Context) (*domain.Wallet, error) {
	w := &domain.Wallet{UUID: uuid.New()}
	err := s.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		return r.Wallets.Create(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("wallet created", "wallet_id", w.ID, "wallet_uuid", w.UUID)
	return w, nil
}

func (s *WalletService) GetWallet(ctx context.Context, walletID int64) (*domain.Wallet, error) {
	var w *domain.Wallet
	err := s.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		var err error
		w, err = r.Wallets.FindByID(ctx, walletID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *WalletService) ListTransactions(ctx context.Context, walletID int64, filter application.TransactionFilter, limit, offset int) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	err := s.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		if _, err := r.Wallets.FindByID(ctx, walletID); err != nil {
			return err
		}
		var err error
		txs, err = r.Transactions.ListByWallet(ctx, walletID, filter, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// Deposit credits the wallet and records a SUCCEEDED DEPOSIT transaction.
// With an idempotency key, replaying the same request returns the original
// transaction without crediting again; a payload mismatch is a conflict.
// The bool reports whether a new transaction was created.
func (s *WalletService) Deposit(ctx context.Context, walletID, amount int64, idempotencyKey string) (*domain.Transaction, bool, error) {
	if err := domain.ValidateAmount(amount); err != nil {
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
		wallet, err := r.Wallets.LockByID(ctx, walletID)
		if err != nil {
			return err
		}

		if idempotencyKey != "" {
			existing, err := r.Transactions.FindByIdempotencyKey(ctx, idempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if !depositPayloadMatches(existing, walletID, amount) {
					return domain.NewIdempotencyConflictError(idempotencyKey)
				}
				tx = existing
				return nil
			}
		}

		if err := r.Wallets.Credit(ctx, wallet.ID, amount); err != nil {
			return err
		}

		tx = &domain.Transaction{
			WalletID: wallet.ID,
			Type:     domain.TypeDeposit,
			Status:   domain.StatusSucceeded,
			Amount:   amount,
		}
		if idempotencyKey != "" {
			key := idempotencyKey
			tx.IdempotencyKey = &key
		}
		created = true
		return r.Transactions.Create(ctx, tx)
	})

	if err != nil {
		// A concurrent request with the same key can slip past the lookup and
		// trip the unique index; resolve it the same way as a replay.
		if idempotencyKey != "" && persistence.IsUniqueViolation(err) {
			return s.resolveDepositReplay(ctx, walletID, amount, idempotencyKey)
		}
		return nil, false, err
	}

	if created {
		s.logger.Info("deposit recorded",
			"wallet_id", walletID,
			"tx_id", tx.ID,
			"amount", amount,
		)
	}
	return tx, created, nil
}

func (s *WalletService) resolveDepositReplay(ctx context.Context, walletID, amount int64, key string) (*domain.Transaction, bool, error) {
	var existing *domain.Transaction
	err := s.store.WithTransaction(ctx, func(ctx context.Context, r application.Repos) error {
		var err error
		existing, err = r.Transactions.FindByIdempotencyKey(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if existing == nil || !depositPayloadMatches(existing, walletID, amount) {
		return nil, false, domain.NewIdempotencyConflictError(key)
	}
	return existing, false, nil
}

func depositPayloadMatches(t *domain.Transaction, walletID, amount int64) bool {
	return t.Type == domain.TypeDeposit && t.WalletID == walletID && t.Amount == amount
}
