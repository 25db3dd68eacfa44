package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence"
)

// TransactionCoordinator runs units of work spanning the wallet, transaction
// and reconciliation repositories inside a single database transaction.
type TransactionCoordinator struct {
	pool *pgxpool.Pool
}

func NewTransactionCoordinator(db *persistence.DB) *TransactionCoordinator {
	return &TransactionCoordinator{
		pool: db.Pool,
	}
}

// WithTransaction executes fn within a database transaction. The repositories
// handed to fn are bound to that transaction, so row locks they take hold
// until commit or rollback.
func (tc *TransactionCoordinator) WithTransaction(ctx context.Context, fn func(ctx context.Context, r application.Repos) error) error {
	tx, err := tc.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	repos := application.Repos{
		Wallets:         NewWalletRepository(tx),
		Transactions:    NewTransactionRepository(tx),
		Reconciliations: NewReconciliationRepository(tx),
	}

	if err := fn(ctx, repos); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
