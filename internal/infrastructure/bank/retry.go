package bank

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// backoff returns a full-jitter exponential delay for the given 1-based
// attempt: uniform(0, min(maxDelay, baseDelay * 2^(attempt-1))). Full jitter
// keeps a fleet of workers from hammering the bank in lockstep.
func backoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	ceiling := baseDelay << (attempt - 1)
	if ceiling > maxDelay || ceiling <= 0 {
		ceiling = maxDelay
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// parseRetryAfter understands both forms the header may take: integer seconds
// and an HTTP-date. Returns 0 when absent or unparseable.
func parseRetryAfter(header string, now time.Time) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
