package domain

import "time"

// ValidateAmount checks that amount is a strictly positive integer.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return NewInvalidAmountError(amount)
	}
	return nil
}

// ValidateFutureExecuteAt checks that executeAt is set and strictly after now.
func ValidateFutureExecuteAt(executeAt time.Time, now time.Time) error {
	if executeAt.IsZero() {
		return NewInvalidExecuteAtError("execute_at must be set")
	}
	if !executeAt.After(now) {
		return NewInvalidExecuteAtError("execute_at must be in the future")
	}
	return nil
}

// ValidateClientIdempotencyKey checks a caller-supplied dedup key. Empty means
// "no key"; a present key must fit the column and contain no spaces.
func ValidateClientIdempotencyKey(key string) error {
	if len(key) > 128 {
		return NewInvalidIdempotencyKeyError("must be at most 128 characters")
	}
	for _, r := range key {
		if r == ' ' || r == '\t' || r == '\n' {
			return NewInvalidIdempotencyKeyError("must not contain whitespace")
		}
	}
	return nil
}
