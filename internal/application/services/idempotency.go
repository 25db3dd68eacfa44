package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/domain"
)

const keyInstallAttempts = 3

// GenerateIdempotencyKey returns a 32-character hex string. 128 random bits,
// collision probability is negligible; the unique index catches the rest.
func GenerateIdempotencyKey() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("idempotency key generation: %v", err))
	}
	return hex.EncodeToString(buf)
}

// EnsureWithdrawalKey guarantees the withdrawal has a bank idempotency key and
// returns it. Calling it again on the same transaction yields the same key;
// that stability is what makes re-sending the transfer safe at the bank.
//
// Must run inside the same unit of work that holds the transaction row lock.
func EnsureWithdrawalKey(ctx context.Context, txs application.TransactionRepository, t *domain.Transaction) (string, error) {
	if t.Type != domain.TypeWithdrawal {
		return "", domain.NewInvalidTransactionStateError("bank idempotency keys apply to withdrawals only")
	}

	if t.IdempotencyKey != nil && *t.IdempotencyKey != "" {
		return *t.IdempotencyKey, nil
	}

	for attempt := 0; attempt < keyInstallAttempts; attempt++ {
		candidate := GenerateIdempotencyKey()

		exists, err := txs.IdempotencyKeyExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}

		installed, err := txs.InstallIdempotencyKey(ctx, t.ID, candidate)
		if err != nil {
			return "", err
		}
		if installed {
			t.IdempotencyKey = &candidate
			return candidate, nil
		}

		// Another writer installed a key between our check and update.
		fresh, err := txs.FindByID(ctx, t.ID)
		if err != nil {
			return "", err
		}
		if fresh.IdempotencyKey != nil && *fresh.IdempotencyKey != "" {
			t.IdempotencyKey = fresh.IdempotencyKey
			return *fresh.IdempotencyKey, nil
		}
	}

	return "", fmt.Errorf("failed to install a unique idempotency key after %d attempts", keyInstallAttempts)
}
