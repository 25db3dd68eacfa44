package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/application/apptest"
	"github.com/finvault/wallet-ledger/internal/application/services"
	"github.com/finvault/wallet-ledger/internal/domain"
)

func TestWithdrawalService_ScheduleCreatesScheduled(t *testing.T) {
	store := apptest.NewStore()
	svc := services.NewWithdrawalService(store, &apptest.MockBankGateway{}, testLogger())
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})

	executeAt := time.Now().Add(time.Hour)
	tx, created, err := svc.Schedule(context.Background(), wallet.ID, 400, executeAt, "")

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.TypeWithdrawal, tx.Type)
	assert.Equal(t, domain.StatusScheduled, tx.Status)
	require.NotNil(t, tx.ExecuteAt)
	assert.True(t, tx.ExecuteAt.Equal(executeAt))

	// No reservation at schedule time.
	assert.Equal(t, int64(1000), store.Wallet(wallet.ID).Balance)
}

func TestWithdrawalService_ScheduleValidations(t *testing.T) {
	store := apptest.NewStore()
	svc := services.NewWithdrawalService(store, &apptest.MockBankGateway{}, testLogger())
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})
	future := time.Now().Add(time.Hour)

	_, _, err := svc.Schedule(context.Background(), wallet.ID, 0, future, "")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidAmount))

	_, _, err = svc.Schedule(context.Background(), wallet.ID, 400, time.Now().Add(-time.Minute), "")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidExecuteAt))

	_, _, err = svc.Schedule(context.Background(), 999, 400, future, "")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeWalletNotFound))
}

func TestWithdrawalService_ScheduleReplayAndConflict(t *testing.T) {
	store := apptest.NewStore()
	svc := services.NewWithdrawalService(store, &apptest.MockBankGateway{}, testLogger())
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})
	executeAt := time.Now().Add(time.Hour).Truncate(time.Second)

	first, created, err := svc.Schedule(context.Background(), wallet.ID, 400, executeAt, "wd-key-1")
	require.NoError(t, err)
	assert.True(t, created)

	replay, created, err := svc.Schedule(context.Background(), wallet.ID, 400, executeAt, "wd-key-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, replay.ID)

	_, _, err = svc.Schedule(context.Background(), wallet.ID, 900, executeAt, "wd-key-1")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeIdempotencyConflict))
}

func TestWithdrawalService_ExecuteRunsFullPipeline(t *testing.T) {
	store := apptest.NewStore()
	gateway := &apptest.MockBankGateway{
		TransferFn: func(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
			return application.SuccessResult("exec-ref"), nil
		},
	}
	svc := services.NewWithdrawalService(store, gateway, testLogger())
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})

	past := time.Now().Add(-time.Minute)
	tx := store.SeedTransaction(&domain.Transaction{
		WalletID:  wallet.ID,
		Type:      domain.TypeWithdrawal,
		Status:    domain.StatusScheduled,
		Amount:    400,
		ExecuteAt: &past,
	})

	got, err := svc.Execute(context.Background(), tx.ID, time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, got.Status)
	require.NotNil(t, got.BankReference)
	assert.Equal(t, "exec-ref", *got.BankReference)
	assert.Equal(t, int64(600), store.Wallet(wallet.ID).Balance)
	assert.Equal(t, 1, gateway.TransferCallCount())
}

func TestWithdrawalService_ExecuteInsufficientFunds(t *testing.T) {
	store := apptest.NewStore()
	gateway := &apptest.MockBankGateway{}
	svc := services.NewWithdrawalService(store, gateway, testLogger())
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 100})

	past := time.Now().Add(-time.Minute)
	tx := store.SeedTransaction(&domain.Transaction{
		WalletID:  wallet.ID,
		Type:      domain.TypeWithdrawal,
		Status:    domain.StatusScheduled,
		Amount:    400,
		ExecuteAt: &past,
	})

	got, err := svc.Execute(context.Background(), tx.ID, time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, domain.ReasonInsufficientFunds, *got.FailureReason)
	assert.Zero(t, gateway.TransferCallCount())
	assert.Equal(t, int64(100), store.Wallet(wallet.ID).Balance)
}

func TestWithdrawalService_ExecuteRejectsNotDue(t *testing.T) {
	store := apptest.NewStore()
	svc := services.NewWithdrawalService(store, &apptest.MockBankGateway{}, testLogger())
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})

	future := time.Now().Add(time.Hour)
	tx := store.SeedTransaction(&domain.Transaction{
		WalletID:  wallet.ID,
		Type:      domain.TypeWithdrawal,
		Status:    domain.StatusScheduled,
		Amount:    400,
		ExecuteAt: &future,
	})

	_, err := svc.Execute(context.Background(), tx.ID, time.Now())
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransactionState))
}

func TestWithdrawalService_ExecuteRejectsWrongState(t *testing.T) {
	store := apptest.NewStore()
	svc := services.NewWithdrawalService(store, &apptest.MockBankGateway{}, testLogger())
	wallet := store.SeedWallet(&domain.Wallet{UUID: uuid.New(), Balance: 1000})

	key := "done-key"
	tx := store.SeedTransaction(&domain.Transaction{
		WalletID:       wallet.ID,
		Type:           domain.TypeWithdrawal,
		Status:         domain.StatusSucceeded,
		Amount:         400,
		IdempotencyKey: &key,
	})

	_, err := svc.Execute(context.Background(), tx.ID, time.Now())
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransactionState))
}
