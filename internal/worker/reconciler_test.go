package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/application/apptest"
	"github.com/finvault/wallet-ledger/internal/domain"
)

func newTestReconciler(store *apptest.Store, gateway *apptest.MockBankGateway) *Reconciler {
	return NewReconciler(store, gateway, 15*time.Minute, testLogger())
}

func seedUnknownWithdrawal(store *apptest.Store, walletID int64, key string) *domain.Transaction {
	reason := domain.ReconcileUnknownOutcome
	return store.SeedTransaction(&domain.Transaction{
		WalletID:       walletID,
		Type:           domain.TypeWithdrawal,
		Status:         domain.StatusUnknown,
		Amount:         400,
		IdempotencyKey: &key,
		FailureReason:  &reason,
	})
}

func TestReconciler_SweepsTimedOutProcessing(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 600})
	key := "key-timeout"
	tx := store.SeedTransaction(&domain.Transaction{
		WalletID:       wallet.ID,
		Type:           domain.TypeWithdrawal,
		Status:         domain.StatusProcessing,
		Amount:         400,
		IdempotencyKey: &key,
		UpdatedAt:      time.Now().Add(-time.Hour),
	})

	gateway := &apptest.MockBankGateway{} // no status endpoint
	rec := newTestReconciler(store, gateway)

	summary, err := rec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.StaleMarkedUnknown)

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusUnknown, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, domain.ReconcileProcessingTimeout, *got.FailureReason)

	task := store.TaskForTransaction(tx.ID)
	require.NotNil(t, task)
	assert.Equal(t, domain.ReconcileProcessingTimeout, task.Reason)

	// The debit stands until the bank confirms what happened.
	assert.Equal(t, int64(600), store.Wallet(wallet.ID).Balance)
}

func TestReconciler_FreshProcessingLeftAlone(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 600})
	key := "key-fresh"
	tx := store.SeedTransaction(&domain.Transaction{
		WalletID:       wallet.ID,
		Type:           domain.TypeWithdrawal,
		Status:         domain.StatusProcessing,
		Amount:         400,
		IdempotencyKey: &key,
	})

	rec := newTestReconciler(store, &apptest.MockBankGateway{})

	summary, err := rec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Zero(t, summary.StaleMarkedUnknown)
	assert.Equal(t, domain.StatusProcessing, store.Transaction(tx.ID).Status)
}

func TestReconciler_ResolvesSuccessFromStatusQuery(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 600})
	tx := seedUnknownWithdrawal(store, wallet.ID, "key-s")
	store.SeedTask(&domain.ReconciliationTask{
		TransactionID: tx.ID,
		Reason:        domain.ReconcileUnknownOutcome,
		Status:        domain.ReconciliationPending,
	})

	gateway := &apptest.MockBankGateway{
		StatusEnabled: true,
		QueryStatusFn: func(ctx context.Context, q application.StatusQuery) (application.TransferResult, error) {
			return application.SuccessResult("settled-ref"), nil
		},
	}
	rec := newTestReconciler(store, gateway)

	summary, err := rec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.ResolvedSuccess)

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusSucceeded, got.Status)
	require.NotNil(t, got.BankReference)
	assert.Equal(t, "settled-ref", *got.BankReference)

	task := store.TaskForTransaction(tx.ID)
	assert.Equal(t, domain.ReconciliationResolved, task.Status)
	assert.Equal(t, domain.ReconciledSuccess, task.Reason)

	// Success means the money left, so no refund.
	assert.Equal(t, int64(600), store.Wallet(wallet.ID).Balance)

	require.Len(t, gateway.StatusCalls, 1)
	assert.Equal(t, "key-s", gateway.StatusCalls[0].IdempotencyKey)
	assert.Equal(t, tx.ID, gateway.StatusCalls[0].TransferID)
}

func TestReconciler_ResolvesFinalFailureWithRefund(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 600})
	tx := seedUnknownWithdrawal(store, wallet.ID, "key-f")
	store.SeedTask(&domain.ReconciliationTask{
		TransactionID: tx.ID,
		Reason:        domain.ReconcileUnknownOutcome,
		Status:        domain.ReconciliationPending,
	})

	gateway := &apptest.MockBankGateway{
		StatusEnabled: true,
		QueryStatusFn: func(ctx context.Context, q application.StatusQuery) (application.TransferResult, error) {
			return application.FinalFailureResult("account_closed"), nil
		},
	}
	rec := newTestReconciler(store, gateway)

	summary, err := rec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.ResolvedFailure)

	got := store.Transaction(tx.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "account_closed", *got.FailureReason)

	task := store.TaskForTransaction(tx.ID)
	assert.Equal(t, domain.ReconciliationResolved, task.Status)
	assert.Equal(t, domain.ReconciledFinalFailure, task.Reason)

	assert.Equal(t, int64(1000), store.Wallet(wallet.ID).Balance)
}

func TestReconciler_UnknownStatusLeavesTaskPending(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 600})
	tx := seedUnknownWithdrawal(store, wallet.ID, "key-u")
	store.SeedTask(&domain.ReconciliationTask{
		TransactionID: tx.ID,
		Reason:        domain.ReconcileUnknownOutcome,
		Status:        domain.ReconciliationPending,
	})

	gateway := &apptest.MockBankGateway{
		StatusEnabled: true,
		QueryStatusFn: func(ctx context.Context, q application.StatusQuery) (application.TransferResult, error) {
			return application.UnknownResult("still_processing"), nil
		},
	}
	rec := newTestReconciler(store, gateway)

	summary, err := rec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, domain.StatusUnknown, store.Transaction(tx.ID).Status)
	assert.Equal(t, domain.ReconciliationPending, store.TaskForTransaction(tx.ID).Status)
	assert.Equal(t, int64(600), store.Wallet(wallet.ID).Balance)
}

func TestReconciler_NoStatusEndpointLeavesTaskPending(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 600})
	tx := seedUnknownWithdrawal(store, wallet.ID, "key-n")
	store.SeedTask(&domain.ReconciliationTask{
		TransactionID: tx.ID,
		Reason:        domain.ReconcileUnknownOutcome,
		Status:        domain.ReconciliationPending,
	})

	gateway := &apptest.MockBankGateway{StatusEnabled: false}
	rec := newTestReconciler(store, gateway)

	summary, err := rec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pending)
	assert.Empty(t, gateway.StatusCalls)
	assert.Equal(t, domain.ReconciliationPending, store.TaskForTransaction(tx.ID).Status)
}

func TestReconciler_AlreadyTerminalResolvesWithoutQuery(t *testing.T) {
	store := apptest.NewStore()
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 600})

	key1, key2 := "key-a1", "key-a2"
	done := store.SeedTransaction(&domain.Transaction{
		WalletID:       wallet.ID,
		Type:           domain.TypeWithdrawal,
		Status:         domain.StatusSucceeded,
		Amount:         400,
		IdempotencyKey: &key1,
	})
	failed := store.SeedTransaction(&domain.Transaction{
		WalletID:       wallet.ID,
		Type:           domain.TypeWithdrawal,
		Status:         domain.StatusFailed,
		Amount:         400,
		IdempotencyKey: &key2,
	})
	store.SeedTask(&domain.ReconciliationTask{
		TransactionID: done.ID,
		Reason:        domain.ReconcileUnknownOutcome,
		Status:        domain.ReconciliationPending,
	})
	store.SeedTask(&domain.ReconciliationTask{
		TransactionID: failed.ID,
		Reason:        domain.ReconcileUnknownOutcome,
		Status:        domain.ReconciliationPending,
	})

	gateway := &apptest.MockBankGateway{StatusEnabled: true}
	rec := newTestReconciler(store, gateway)

	summary, err := rec.Run(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Resolved)
	assert.Empty(t, gateway.StatusCalls)

	doneTask := store.TaskForTransaction(done.ID)
	assert.Equal(t, domain.ReconciliationResolved, doneTask.Status)
	assert.Equal(t, domain.ReconciledAlreadyDone, doneTask.Reason)

	failedTask := store.TaskForTransaction(failed.ID)
	assert.Equal(t, domain.ReconciliationResolved, failedTask.Status)
	assert.Equal(t, domain.ReconciledAlreadyFailed, failedTask.Reason)
}

func TestReconciler_ZeroLimitDoesNothing(t *testing.T) {
	store := apptest.NewStore()
	rec := newTestReconciler(store, &apptest.MockBankGateway{})

	summary, err := rec.Run(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, ReconcilerSummary{}, summary)
}
