package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/domain"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence"
)

const transactionColumns = `id, wallet_id, type, status, amount, execute_at,
	idempotency_key, external_reference, bank_reference, failure_reason,
	created_at, updated_at`

type TransactionRepository struct {
	q persistence.Executor
}

func NewTransactionRepository(q persistence.Executor) *TransactionRepository {
	return &TransactionRepository{q: q}
}

func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (wallet_id, type, status, amount, execute_at,
			idempotency_key, external_reference, bank_reference, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		t.WalletID,
		string(t.Type),
		string(t.Status),
		t.Amount,
		t.ExecuteAt,
		t.IdempotencyKey,
		t.ExternalReference,
		t.BankReference,
		t.FailureReason,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewTransactionNotFoundError(id)
		}
		return nil, err
	}
	return t, nil
}

func (r *TransactionRepository) LockByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	t, err := scanTransaction(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewTransactionNotFoundError(id)
		}
		return nil, err
	}
	return t, nil
}

// FindByIdempotencyKey returns nil without error when no transaction carries
// the key.
func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`

	t, err := scanTransaction(r.q.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TransactionRepository) ListByWallet(ctx context.Context, walletID int64, filter application.TransactionFilter, limit, offset int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE wallet_id = $1`
	args := []any{walletID}

	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions by wallet_id: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Transaction, error) {
		return scanTransaction(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan wallet transactions: %w", err)
	}
	return results, nil
}

func (r *TransactionRepository) Update(ctx context.Context, t *domain.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $1,
			idempotency_key = $2,
			external_reference = $3,
			bank_reference = $4,
			failure_reason = $5,
			updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		string(t.Status),
		t.IdempotencyKey,
		t.ExternalReference,
		t.BankReference,
		t.FailureReason,
		t.ID,
	).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewTransactionNotFoundError(t.ID)
		}
		return fmt.Errorf("failed to update transaction %d: %w", t.ID, err)
	}
	return nil
}

// LockNextDueWithdrawal claims the oldest SCHEDULED withdrawal whose
// execute_at has passed. SKIP LOCKED lets concurrent workers each claim a
// different row instead of queueing on the same one. Returns nil when nothing
// is due.
func (r *TransactionRepository) LockNextDueWithdrawal(ctx context.Context, now time.Time) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE type = $1 AND status = $2 AND execute_at <= $3
		ORDER BY execute_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	t, err := scanTransaction(r.q.QueryRow(ctx, query,
		string(domain.TypeWithdrawal), string(domain.StatusScheduled), now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// LockNextStaleProcessing claims the withdrawal that has sat in PROCESSING the
// longest, provided it went stale before the cutoff. Returns nil when none
// qualifies.
func (r *TransactionRepository) LockNextStaleProcessing(ctx context.Context, before time.Time) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE type = $1 AND status = $2 AND updated_at <= $3
		ORDER BY updated_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	t, err := scanTransaction(r.q.QueryRow(ctx, query,
		string(domain.TypeWithdrawal), string(domain.StatusProcessing), before))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// InstallIdempotencyKey writes the key only when the row has none yet, so a
// key can never be replaced once set. Reports whether the write happened.
func (r *TransactionRepository) InstallIdempotencyKey(ctx context.Context, id int64, key string) (bool, error) {
	query := `
		UPDATE transactions
		SET idempotency_key = $2, updated_at = now()
		WHERE id = $1 AND idempotency_key IS NULL
	`

	tag, err := r.q.Exec(ctx, query, id, key)
	if err != nil {
		return false, fmt.Errorf("failed to install idempotency key on transaction %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepository) IdempotencyKeyExists(ctx context.Context, key string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM transactions WHERE idempotency_key = $1)`

	var exists bool
	if err := r.q.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return exists, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var m TransactionModel
	err := row.Scan(
		&m.ID, &m.WalletID, &m.Type, &m.Status, &m.Amount, &m.ExecuteAt,
		&m.IdempotencyKey, &m.ExternalReference, &m.BankReference, &m.FailureReason,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return toDomainTransaction(m), nil
}
