package bank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finvault/wallet-ledger/internal/config"
)

// tokenBucketScript implements a shared token bucket with capacity 1.0 and a
// refill rate of max_rps tokens per second. State lives in one hash with
// fields tokens and ts_ms. Returns {allowed, wait_seconds}.
const tokenBucketScript = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local capacity = 1.0

local tokens = tonumber(redis.call("HGET", key, "tokens"))
local ts_ms = tonumber(redis.call("HGET", key, "ts_ms"))

if tokens == nil then
  tokens = capacity
end
if ts_ms == nil then
  ts_ms = now_ms
end

local elapsed = math.max(0, now_ms - ts_ms) / 1000.0
tokens = math.min(capacity, tokens + elapsed * rate)

if tokens >= cost then
  tokens = tokens - cost
  redis.call("HSET", key, "tokens", tokens, "ts_ms", now_ms)
  return {1, "0"}
end

local wait_seconds = (cost - tokens) / rate
redis.call("HSET", key, "tokens", tokens, "ts_ms", now_ms)
return {0, tostring(wait_seconds)}
`

// RateLimiter throttles outbound bank calls. Acquire blocks until a token is
// available or the context is cancelled. Implementations must be safe for
// concurrent use.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}

// NoopRateLimiter admits every call immediately.
type NoopRateLimiter struct{}

func (NoopRateLimiter) Acquire(ctx context.Context) error { return nil }

// RedisTokenBucket coordinates a shared requests-per-second budget across all
// worker processes through one Redis key.
type RedisTokenBucket struct {
	client *redis.Client
	script *redis.Script
	key    string
	maxRPS float64
}

func NewRedisTokenBucket(client *redis.Client, key string, maxRPS float64) (*RedisTokenBucket, error) {
	if maxRPS <= 0 {
		return nil, fmt.Errorf("max_rps must be > 0, got %v", maxRPS)
	}
	return &RedisTokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		key:    key,
		maxRPS: maxRPS,
	}, nil
}

func (l *RedisTokenBucket) Acquire(ctx context.Context) error {
	for {
		nowMs := time.Now().UnixMilli()

		res, err := l.script.Run(ctx, l.client, []string{l.key}, nowMs, l.maxRPS, 1.0).Slice()
		if err != nil {
			return fmt.Errorf("rate limiter unavailable: %w", err)
		}
		if len(res) != 2 {
			return fmt.Errorf("rate limiter returned %d values, want 2", len(res))
		}

		allowed, _ := res[0].(int64)
		if allowed == 1 {
			return nil
		}

		wait := parseWaitSeconds(res[1])
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func parseWaitSeconds(v any) time.Duration {
	switch w := v.(type) {
	case string:
		var secs float64
		if _, err := fmt.Sscanf(w, "%g", &secs); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	case int64:
		if w > 0 {
			return time.Duration(w) * time.Second
		}
	}
	return 0
}

// BuildRateLimiter picks the limiter for the configured throughput cap. A
// non-positive max_rps disables limiting. An unreachable Redis also disables
// it: throttling is an optimization and must never block transfers.
func BuildRateLimiter(cfg config.BankConfig, logger *slog.Logger) RateLimiter {
	if cfg.MaxRPS <= 0 {
		return NoopRateLimiter{}
	}

	opts, err := redis.ParseURL(cfg.RateLimitRedisURL)
	if err != nil {
		logger.Warn("rate limiter disabled",
			"reason", "invalid_redis_url",
			"error", err,
		)
		return NoopRateLimiter{}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("rate limiter disabled",
			"reason", "redis_unavailable",
			"redis_url", cfg.RateLimitRedisURL,
			"error", err,
		)
		return NoopRateLimiter{}
	}

	limiter, err := NewRedisTokenBucket(client, cfg.RateLimitKey, cfg.MaxRPS)
	if err != nil {
		logger.Warn("rate limiter disabled", "reason", "bad_config", "error", err)
		return NoopRateLimiter{}
	}
	return limiter
}
