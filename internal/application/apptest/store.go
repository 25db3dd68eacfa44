// Package apptest provides in-memory fakes for the application ports. The
// store serializes units of work with one mutex, which is enough to exercise
// the claim and finalize protocols without a database.
package apptest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/domain"
)

// Store is an in-memory application.Coordinator plus backing data. BeginFn,
// when set, runs before each unit of work and can inject errors such as lock
// contention.
type Store struct {
	mu      sync.Mutex
	wallets map[int64]*domain.Wallet
	txs     map[int64]*domain.Transaction
	tasks   map[int64]*domain.ReconciliationTask

	nextWalletID int64
	nextTxID     int64
	nextTaskID   int64

	BeginFn func() error
}

func NewStore() *Store {
	return &Store{
		wallets: make(map[int64]*domain.Wallet),
		txs:     make(map[int64]*domain.Transaction),
		tasks:   make(map[int64]*domain.ReconciliationTask),
	}
}

// UniqueViolation mimics the database error raised by duplicate idempotency
// keys.
func UniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

// LockContention mimics an engine-level locking failure.
func LockContention() error {
	return &pgconn.PgError{Code: "55P03"}
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, r application.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.BeginFn != nil {
		if err := s.BeginFn(); err != nil {
			return err
		}
	}

	return fn(ctx, application.Repos{
		Wallets:         &walletRepo{s: s},
		Transactions:    &transactionRepo{s: s},
		Reconciliations: &reconciliationRepo{s: s},
	})
}

// Seed helpers bypass the unit-of-work and write directly.

func (s *Store) SeedWallet(w *domain.Wallet) *domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWalletID++
	w.ID = s.nextWalletID
	now := time.Now()
	w.CreatedAt, w.UpdatedAt = now, now
	s.wallets[w.ID] = copyWallet(w)
	return w
}

func (s *Store) SeedTransaction(t *domain.Transaction) *domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTxID++
	t.ID = s.nextTxID
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	s.txs[t.ID] = copyTx(t)
	return t
}

func (s *Store) SeedTask(task *domain.ReconciliationTask) *domain.ReconciliationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTaskID++
	task.ID = s.nextTaskID
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	s.tasks[task.ID] = copyTask(task)
	return task
}

func (s *Store) Wallet(id int64) *domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyWallet(s.wallets[id])
}

func (s *Store) Transaction(id int64) *domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTx(s.txs[id])
}

func (s *Store) TaskForTransaction(txID int64) *domain.ReconciliationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.TransactionID == txID {
			return copyTask(task)
		}
	}
	return nil
}

type walletRepo struct{ s *Store }

func (r *walletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.s.nextWalletID++
	w.ID = r.s.nextWalletID
	now := time.Now()
	w.CreatedAt, w.UpdatedAt = now, now
	r.s.wallets[w.ID] = copyWallet(w)
	return nil
}

func (r *walletRepo) FindByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, domain.NewWalletNotFoundError(id)
	}
	return copyWallet(w), nil
}

func (r *walletRepo) LockByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	return r.FindByID(ctx, id)
}

func (r *walletRepo) DebitIfSufficient(ctx context.Context, id, amount int64) (bool, error) {
	w, ok := r.s.wallets[id]
	if !ok {
		return false, domain.NewWalletNotFoundError(id)
	}
	if w.Balance < amount {
		return false, nil
	}
	w.Balance -= amount
	w.UpdatedAt = time.Now()
	return true, nil
}

func (r *walletRepo) Credit(ctx context.Context, id, amount int64) error {
	w, ok := r.s.wallets[id]
	if !ok {
		return domain.NewWalletNotFoundError(id)
	}
	w.Balance += amount
	w.UpdatedAt = time.Now()
	return nil
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	if t.IdempotencyKey != nil {
		for _, existing := range r.s.txs {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *t.IdempotencyKey {
				return UniqueViolation()
			}
		}
	}
	r.s.nextTxID++
	t.ID = r.s.nextTxID
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.txs[t.ID] = copyTx(t)
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	t, ok := r.s.txs[id]
	if !ok {
		return nil, domain.NewTransactionNotFoundError(id)
	}
	return copyTx(t), nil
}

func (r *transactionRepo) LockByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	return r.FindByID(ctx, id)
}

func (r *transactionRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	for _, t := range r.s.txs {
		if t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			return copyTx(t), nil
		}
	}
	return nil, nil
}

func (r *transactionRepo) ListByWallet(ctx context.Context, walletID int64, filter application.TransactionFilter, limit, offset int) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, t := range r.s.txs {
		if t.WalletID != walletID {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, copyTx(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *transactionRepo) Update(ctx context.Context, t *domain.Transaction) error {
	if _, ok := r.s.txs[t.ID]; !ok {
		return domain.NewTransactionNotFoundError(t.ID)
	}
	t.UpdatedAt = time.Now()
	r.s.txs[t.ID] = copyTx(t)
	return nil
}

func (r *transactionRepo) LockNextDueWithdrawal(ctx context.Context, now time.Time) (*domain.Transaction, error) {
	var candidates []*domain.Transaction
	for _, t := range r.s.txs {
		if t.Type == domain.TypeWithdrawal && t.Status == domain.StatusScheduled &&
			t.ExecuteAt != nil && !t.ExecuteAt.After(now) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ExecuteAt.Equal(*candidates[j].ExecuteAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].ExecuteAt.Before(*candidates[j].ExecuteAt)
	})
	return copyTx(candidates[0]), nil
}

func (r *transactionRepo) LockNextStaleProcessing(ctx context.Context, before time.Time) (*domain.Transaction, error) {
	var candidates []*domain.Transaction
	for _, t := range r.s.txs {
		if t.Type == domain.TypeWithdrawal && t.Status == domain.StatusProcessing &&
			!t.UpdatedAt.After(before) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].UpdatedAt.Equal(candidates[j].UpdatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt)
	})
	return copyTx(candidates[0]), nil
}

func (r *transactionRepo) InstallIdempotencyKey(ctx context.Context, id int64, key string) (bool, error) {
	t, ok := r.s.txs[id]
	if !ok {
		return false, domain.NewTransactionNotFoundError(id)
	}
	if t.IdempotencyKey != nil {
		return false, nil
	}
	k := key
	t.IdempotencyKey = &k
	t.UpdatedAt = time.Now()
	return true, nil
}

func (r *transactionRepo) IdempotencyKeyExists(ctx context.Context, key string) (bool, error) {
	for _, t := range r.s.txs {
		if t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

type reconciliationRepo struct{ s *Store }

func (r *reconciliationRepo) GetOrCreate(ctx context.Context, transactionID int64, reason string) (*domain.ReconciliationTask, bool, error) {
	for _, task := range r.s.tasks {
		if task.TransactionID == transactionID {
			return copyTask(task), false, nil
		}
	}
	r.s.nextTaskID++
	now := time.Now()
	task := &domain.ReconciliationTask{
		ID:            r.s.nextTaskID,
		TransactionID: transactionID,
		Reason:        reason,
		Status:        domain.ReconciliationPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.s.tasks[task.ID] = task
	return copyTask(task), true, nil
}

func (r *reconciliationRepo) LockByID(ctx context.Context, id int64) (*domain.ReconciliationTask, error) {
	task, ok := r.s.tasks[id]
	if !ok {
		return nil, nil
	}
	return copyTask(task), nil
}

func (r *reconciliationRepo) ListPending(ctx context.Context, limit int) ([]*domain.ReconciliationTask, error) {
	var out []*domain.ReconciliationTask
	for _, task := range r.s.tasks {
		if task.Status == domain.ReconciliationPending {
			out = append(out, copyTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *reconciliationRepo) Update(ctx context.Context, task *domain.ReconciliationTask) error {
	if _, ok := r.s.tasks[task.ID]; !ok {
		return domain.NewTransactionNotFoundError(task.ID)
	}
	task.UpdatedAt = time.Now()
	r.s.tasks[task.ID] = copyTask(task)
	return nil
}

func copyWallet(w *domain.Wallet) *domain.Wallet {
	if w == nil {
		return nil
	}
	c := *w
	return &c
}

func copyTx(t *domain.Transaction) *domain.Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.ExecuteAt = copyTimePtr(t.ExecuteAt)
	c.IdempotencyKey = copyStrPtr(t.IdempotencyKey)
	c.ExternalReference = copyStrPtr(t.ExternalReference)
	c.BankReference = copyStrPtr(t.BankReference)
	c.FailureReason = copyStrPtr(t.FailureReason)
	return &c
}

func copyTask(task *domain.ReconciliationTask) *domain.ReconciliationTask {
	if task == nil {
		return nil
	}
	c := *task
	return &c
}

func copyStrPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
