package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(1))
	assert.NoError(t, ValidateAmount(1_000_000))

	for _, amount := range []int64{0, -1, -500} {
		err := ValidateAmount(amount)
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrCodeInvalidAmount))
	}
}

func TestValidateFutureExecuteAt(t *testing.T) {
	now := time.Now()

	assert.NoError(t, ValidateFutureExecuteAt(now.Add(time.Minute), now))

	err := ValidateFutureExecuteAt(now, now)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeInvalidExecuteAt))

	err = ValidateFutureExecuteAt(now.Add(-time.Second), now)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeInvalidExecuteAt))

	err = ValidateFutureExecuteAt(time.Time{}, now)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeInvalidExecuteAt))
}

func TestValidateClientIdempotencyKey(t *testing.T) {
	assert.NoError(t, ValidateClientIdempotencyKey(""))
	assert.NoError(t, ValidateClientIdempotencyKey("client-key-1"))
	assert.NoError(t, ValidateClientIdempotencyKey(strings.Repeat("a", 128)))

	err := ValidateClientIdempotencyKey(strings.Repeat("a", 129))
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeInvalidIdempotencyKey))

	err = ValidateClientIdempotencyKey("has space")
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeInvalidIdempotencyKey))
}

func TestTransactionStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusSucceeded.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusScheduled.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.False(t, StatusUnknown.IsTerminal())
}
