package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/finvault/wallet-ledger/internal/domain"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence"
)

type WalletRepository struct {
	q persistence.Executor
}

func NewWalletRepository(q persistence.Executor) *WalletRepository {
	return &WalletRepository{q: q}
}

func (r *WalletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (uuid, balance)
		VALUES ($1, 0)
		RETURNING id, balance, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query, w.UUID).Scan(&w.ID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *WalletRepository) FindByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	query := `
		SELECT id, uuid, balance, created_at, updated_at
		FROM wallets WHERE id = $1
	`

	return r.scanWallet(ctx, r.q.QueryRow(ctx, query, id), id)
}

// LockByID retrieves a wallet with a row-level lock. Callers must hold an open
// transaction; the lock is released at commit or rollback.
func (r *WalletRepository) LockByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	query := `
		SELECT id, uuid, balance, created_at, updated_at
		FROM wallets WHERE id = $1
		FOR UPDATE
	`

	return r.scanWallet(ctx, r.q.QueryRow(ctx, query, id), id)
}

// DebitIfSufficient atomically subtracts amount from the balance. The guard in
// the WHERE clause is what keeps balances non-negative under concurrency: when
// funds are short no row matches and the method reports false.
func (r *WalletRepository) DebitIfSufficient(ctx context.Context, id, amount int64) (bool, error) {
	query := `
		UPDATE wallets
		SET balance = balance - $2, updated_at = now()
		WHERE id = $1 AND balance >= $2
	`

	tag, err := r.q.Exec(ctx, query, id, amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit wallet %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WalletRepository) Credit(ctx context.Context, id, amount int64) error {
	query := `
		UPDATE wallets
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("failed to credit wallet %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewWalletNotFoundError(id)
	}
	return nil
}

func (r *WalletRepository) scanWallet(_ context.Context, row pgx.Row, id int64) (*domain.Wallet, error) {
	var m WalletModel
	err := row.Scan(&m.ID, &m.UUID, &m.Balance, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewWalletNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	return toDomainWallet(m), nil
}
