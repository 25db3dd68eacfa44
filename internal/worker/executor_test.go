package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/application/apptest"
	"github.com/finvault/wallet-ledger/internal/config"
	"github.com/finvault/wallet-ledger/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor(store *apptest.Store, gateway *apptest.MockBankGateway, honorsIdempotency bool) *Executor {
	return NewExecutor(store, gateway,
		config.WorkerConfig{
			StaleAfter:       10 * time.Minute,
			LockRetryMax:     3,
			LockRetryBackoff: time.Millisecond,
		},
		config.BankConfig{HonorsIdempotency: honorsIdempotency},
		testLogger(),
	)
}

func seedDueWithdrawal(store *apptest.Store, walletID, amount int64) *domain.Transaction {
	past := time.Now().Add(-time.Minute)
	return store.SeedTransaction(&domain.Transaction{
		WalletID:  walletID,
		Type:      domain.TypeWithdrawal,
		Status:    domain.StatusScheduled,
		Amount:    amount,
		ExecuteAt: &past,
	})
}

func TestExecutor_DueWithdrawalSucceeds(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})
	tx := seedDueWithdrawal(store, wallet.ID, 400)

	gateway := &apptest.MockBankGateway{
		TransferFn: func(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
			return application.SuccessResult("bank-ref-1"), nil
		},
	}
	exec := newTestExecutor(store, gateway, true)

	summary, err := exec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusSucceeded, got.Status)
	require.NotNil(t, got.BankReference)
	assert.Equal(t, "bank-ref-1", *got.BankReference)
	assert.Nil(t, got.FailureReason)
	require.NotNil(t, got.IdempotencyKey)

	assert.Equal(t, int64(600), store.Wallet(wallet.ID).Balance)

	require.Len(t, gateway.TransferCalls, 1)
	assert.Equal(t, *got.IdempotencyKey, gateway.TransferCalls[0].IdempotencyKey)
	assert.Equal(t, wallet.UUID.String(), gateway.TransferCalls[0].WalletOwnerRef)
	assert.Equal(t, tx.ID, gateway.TransferCalls[0].TransferID)
}

func TestExecutor_InsufficientFundsFailsWithoutBankCall(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 100})
	tx := seedDueWithdrawal(store, wallet.ID, 400)

	gateway := &apptest.MockBankGateway{}
	exec := newTestExecutor(store, gateway, true)

	summary, err := exec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.InsufficientFunds)

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, domain.ReasonInsufficientFunds, *got.FailureReason)

	assert.Equal(t, int64(100), store.Wallet(wallet.ID).Balance)
	assert.Zero(t, gateway.TransferCallCount())
}

func TestExecutor_FinalFailureRefunds(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})
	tx := seedDueWithdrawal(store, wallet.ID, 400)

	gateway := &apptest.MockBankGateway{
		TransferFn: func(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
			return application.FinalFailureResult("account_closed"), nil
		},
	}
	exec := newTestExecutor(store, gateway, true)

	summary, err := exec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.InsufficientFunds)

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "account_closed", *got.FailureReason)

	// Debit then refund nets to the original balance.
	assert.Equal(t, int64(1000), store.Wallet(wallet.ID).Balance)
}

func TestExecutor_UnknownKeepsDebitAndQueuesReconciliation(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})
	tx := seedDueWithdrawal(store, wallet.ID, 400)

	gateway := &apptest.MockBankGateway{
		TransferFn: func(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
			return application.UnknownResult("network_error"), nil
		},
	}
	exec := newTestExecutor(store, gateway, true)

	summary, err := exec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unknown)
	assert.Equal(t, 1, summary.ReconciliationQueued)

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusUnknown, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "network_error", *got.FailureReason)

	assert.Equal(t, int64(600), store.Wallet(wallet.ID).Balance)

	task := store.TaskForTransaction(tx.ID)
	require.NotNil(t, task)
	assert.Equal(t, domain.ReconciliationPending, task.Status)
	assert.Equal(t, domain.ReconcileUnknownOutcome, task.Reason)
}

func TestExecutor_GatewayErrorMapsToUnknown(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})
	tx := seedDueWithdrawal(store, wallet.ID, 400)

	gateway := &apptest.MockBankGateway{
		TransferFn: func(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
			return application.TransferResult{}, errors.New("boom")
		},
	}
	exec := newTestExecutor(store, gateway, true)

	summary, err := exec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unknown)

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusUnknown, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Contains(t, *got.FailureReason, "gateway_exception:")
}

func TestExecutor_StaleProcessingReclaimedWhenBankDeduplicates(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 600}) // already debited
	key := "stable-key-1"
	tx := store.SeedTransaction(&domain.Transaction{
		WalletID:       wallet.ID,
		Type:           domain.TypeWithdrawal,
		Status:         domain.StatusProcessing,
		Amount:         400,
		IdempotencyKey: &key,
		UpdatedAt:      time.Now().Add(-time.Hour),
	})

	gateway := &apptest.MockBankGateway{
		TransferFn: func(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
			return application.SuccessResult("bank-ref-2"), nil
		},
	}
	exec := newTestExecutor(store, gateway, true)

	summary, err := exec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusSucceeded, got.Status)

	// Retried with the same key the first attempt used.
	require.Len(t, gateway.TransferCalls, 1)
	assert.Equal(t, key, gateway.TransferCalls[0].IdempotencyKey)

	// No second debit.
	assert.Equal(t, int64(600), store.Wallet(wallet.ID).Balance)
}

func TestExecutor_StaleProcessingQueuedWhenBankDoesNotDeduplicate(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 600})
	key := "stable-key-2"
	tx := store.SeedTransaction(&domain.Transaction{
		WalletID:       wallet.ID,
		Type:           domain.TypeWithdrawal,
		Status:         domain.StatusProcessing,
		Amount:         400,
		IdempotencyKey: &key,
		UpdatedAt:      time.Now().Add(-time.Hour),
	})

	gateway := &apptest.MockBankGateway{}
	exec := newTestExecutor(store, gateway, false)

	summary, err := exec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.ReconciliationQueued)
	assert.Zero(t, gateway.TransferCallCount())

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusUnknown, got.Status)

	task := store.TaskForTransaction(tx.ID)
	require.NotNil(t, task)
	assert.Equal(t, domain.ReconcileStaleNoIdempotency, task.Reason)
}

func TestExecutor_ConcurrentWorkersClaimOnce(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})
	tx := seedDueWithdrawal(store, wallet.ID, 400)

	gateway := &apptest.MockBankGateway{
		TransferFn: func(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
			time.Sleep(5 * time.Millisecond) // widen the race window
			return application.SuccessResult("bank-ref-3"), nil
		},
	}

	var wg sync.WaitGroup
	summaries := make([]ExecutorSummary, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			exec := newTestExecutor(store, gateway, true)
			s, err := exec.Run(context.Background(), 10)
			assert.NoError(t, err)
			summaries[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, summaries[0].Processed+summaries[1].Processed)
	assert.Equal(t, 1, gateway.TransferCallCount())
	assert.Equal(t, int64(600), store.Wallet(wallet.ID).Balance)
	assert.Equal(t, domain.StatusSucceeded, store.Transaction(tx.ID).Status)
}

func TestExecutor_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 100})
	first := seedDueWithdrawal(store, wallet.ID, 80)
	second := seedDueWithdrawal(store, wallet.ID, 80)

	gateway := &apptest.MockBankGateway{
		TransferFn: func(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
			time.Sleep(5 * time.Millisecond)
			return application.SuccessResult("bank-ref-4"), nil
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec := newTestExecutor(store, gateway, true)
			_, err := exec.Run(context.Background(), 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Only one 80 fits in a balance of 100.
	statuses := []domain.TransactionStatus{
		store.Transaction(first.ID).Status,
		store.Transaction(second.ID).Status,
	}
	assert.Contains(t, statuses, domain.StatusSucceeded)
	assert.Contains(t, statuses, domain.StatusFailed)
	assert.Equal(t, int64(20), store.Wallet(wallet.ID).Balance)
	assert.Equal(t, 1, gateway.TransferCallCount())
}

func TestExecutor_StopsAfterLockContentionExhausted(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})
	seedDueWithdrawal(store, wallet.ID, 400)

	attempts := 0
	store.BeginFn = func() error {
		attempts++
		return apptest.LockContention()
	}

	gateway := &apptest.MockBankGateway{}
	exec := newTestExecutor(store, gateway, true)

	summary, err := exec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	// Initial attempt plus LockRetryMax retries.
	assert.Equal(t, 4, attempts)
	assert.Zero(t, gateway.TransferCallCount())
}

func TestExecutor_RespectsLimit(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 10_000})
	for i := 0; i < 5; i++ {
		seedDueWithdrawal(store, wallet.ID, 100)
	}

	gateway := &apptest.MockBankGateway{}
	exec := newTestExecutor(store, gateway, true)

	summary, err := exec.Run(context.Background(), 3)

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, gateway.TransferCallCount())
}
