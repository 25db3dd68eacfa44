package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/finvault/wallet-ledger/internal/domain"
	"github.com/finvault/wallet-ledger/internal/infrastructure/persistence"
)

const reconciliationColumns = `id, transaction_id, reason, status, created_at, updated_at`

type ReconciliationRepository struct {
	q persistence.Executor
}

func NewReconciliationRepository(q persistence.Executor) *ReconciliationRepository {
	return &ReconciliationRepository{q: q}
}

// GetOrCreate inserts a PENDING task for the transaction or returns the one
// already on file. The unique constraint on transaction_id makes the insert a
// no-op on replay; the bool reports whether this call created the row.
func (r *ReconciliationRepository) GetOrCreate(ctx context.Context, transactionID int64, reason string) (*domain.ReconciliationTask, bool, error) {
	insert := `
		INSERT INTO withdrawal_reconciliation_tasks (transaction_id, reason, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING ` + reconciliationColumns

	task, err := scanReconciliationTask(r.q.QueryRow(ctx, insert,
		transactionID, reason, string(domain.ReconciliationPending)))
	if err == nil {
		return task, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create reconciliation task: %w", err)
	}

	query := `SELECT ` + reconciliationColumns + `
		FROM withdrawal_reconciliation_tasks
		WHERE transaction_id = $1
		FOR UPDATE`

	task, err = scanReconciliationTask(r.q.QueryRow(ctx, query, transactionID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load reconciliation task for transaction %d: %w", transactionID, err)
	}
	return task, false, nil
}

// LockByID returns nil when the task no longer exists.
func (r *ReconciliationRepository) LockByID(ctx context.Context, id int64) (*domain.ReconciliationTask, error) {
	query := `SELECT ` + reconciliationColumns + `
		FROM withdrawal_reconciliation_tasks
		WHERE id = $1
		FOR UPDATE`

	task, err := scanReconciliationTask(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock reconciliation task %d: %w", id, err)
	}
	return task, nil
}

func (r *ReconciliationRepository) ListPending(ctx context.Context, limit int) ([]*domain.ReconciliationTask, error) {
	query := `SELECT ` + reconciliationColumns + `
		FROM withdrawal_reconciliation_tasks
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, string(domain.ReconciliationPending), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending reconciliation tasks: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.ReconciliationTask, error) {
		return scanReconciliationTask(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending reconciliation tasks: %w", err)
	}
	return results, nil
}

func (r *ReconciliationRepository) Update(ctx context.Context, task *domain.ReconciliationTask) error {
	query := `
		UPDATE withdrawal_reconciliation_tasks
		SET reason = $1, status = $2, updated_at = now()
		WHERE id = $3
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query, task.Reason, string(task.Status), task.ID).Scan(&task.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reconciliation task %d not found", task.ID)
		}
		return fmt.Errorf("failed to update reconciliation task %d: %w", task.ID, err)
	}
	return nil
}

func scanReconciliationTask(row pgx.Row) (*domain.ReconciliationTask, error) {
	var m ReconciliationTaskModel
	err := row.Scan(&m.ID, &m.TransactionID, &m.Reason, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return toDomainReconciliationTask(m), nil
}
