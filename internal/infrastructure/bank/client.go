package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/finvault/wallet-ledger/internal/application"
	"github.com/finvault/wallet-ledger/internal/config"
)

// Client is the HTTP implementation of application.BankGateway. Every result
// it produces is classified: callers never see a raw HTTP status. Errors are
// returned only for context cancellation and request construction failures.
type Client struct {
	baseURL           string
	statusURLTemplate string
	httpClient        *http.Client
	limiter           RateLimiter
	maxRetries        int
	baseDelay         time.Duration
	maxDelay          time.Duration
	logger            *slog.Logger
}

func NewClient(cfg config.BankConfig, limiter RateLimiter, logger *slog.Logger) *Client {
	return &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		statusURLTemplate: cfg.StatusURLTemplate,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		maxDelay:   cfg.RetryMaxDelay,
		logger:     logger,
	}
}

func (c *Client) Transfer(ctx context.Context, req application.TransferRequest) (application.TransferResult, error) {
	c.logger.Info("bank transfer request",
		"idempotency_key", req.IdempotencyKey,
		"wallet_owner_ref", req.WalletOwnerRef,
		"amount", req.Amount,
		"transfer_id", req.TransferID,
	)

	payload, err := json.Marshal(transferPayload{
		IdempotencyKey: req.IdempotencyKey,
		WalletOwnerRef: req.WalletOwnerRef,
		Amount:         req.Amount,
	})
	if err != nil {
		return application.TransferResult{}, fmt.Errorf("error marshalling transfer payload: %w", err)
	}

	result, err := c.send(ctx, http.MethodPost, c.baseURL+"/", payload, req.IdempotencyKey)
	if err != nil {
		return application.TransferResult{}, err
	}

	if result.Outcome == application.OutcomeSuccess {
		c.logger.Info("bank transfer success",
			"idempotency_key", req.IdempotencyKey,
			"reference", result.Reference,
		)
	} else {
		c.logger.Warn("bank transfer not successful",
			"idempotency_key", req.IdempotencyKey,
			"outcome", string(result.Outcome),
			"reason", result.ErrorReason,
		)
	}
	return result, nil
}

// QueryTransferStatus asks the bank what happened to a transfer we lost track
// of. The endpoint is a configured URL template; substitution slots are
// {idempotency_key}, {transfer_id} and {reference}.
func (c *Client) QueryTransferStatus(ctx context.Context, q application.StatusQuery) (application.TransferResult, error) {
	if !c.CanQueryStatus() {
		return application.TransferResult{}, ErrStatusQueryUnsupported
	}

	url := strings.NewReplacer(
		"{idempotency_key}", q.IdempotencyKey,
		"{transfer_id}", fmt.Sprintf("%d", q.TransferID),
		"{reference}", q.Reference,
	).Replace(c.statusURLTemplate)

	c.logger.Info("bank status query",
		"idempotency_key", q.IdempotencyKey,
		"transfer_id", q.TransferID,
	)

	return c.send(ctx, http.MethodGet, url, nil, q.IdempotencyKey)
}

func (c *Client) CanQueryStatus() bool {
	return c.statusURLTemplate != ""
}

// send runs the rate-limited retry loop around one logical bank call.
// Network errors and 429 are the only triggers for another attempt; any
// classified response ends the loop. Exhaustion maps network errors to
// UNKNOWN (the bank may have acted) and rate limiting to FINAL_FAILURE (the
// bank definitely did not).
func (c *Client) send(ctx context.Context, method, url string, payload []byte, idempotencyKey string) (application.TransferResult, error) {
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.acquireToken(ctx); err != nil {
			return application.TransferResult{}, err
		}

		resp, err := c.doRequest(ctx, method, url, payload, idempotencyKey)
		if err != nil {
			if ctx.Err() != nil {
				return application.TransferResult{}, ctx.Err()
			}
			c.logger.Warn("bank network failure",
				"idempotency_key", idempotencyKey,
				"attempt", attempt,
				"error", err,
			)
			if attempt == c.maxRetries {
				return application.UnknownResult("network_error"), nil
			}
			if err := sleepCtx(ctx, backoff(attempt, c.baseDelay, c.maxDelay)); err != nil {
				return application.TransferResult{}, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			if attempt == c.maxRetries {
				return application.UnknownResult("network_error"), nil
			}
			if err := sleepCtx(ctx, backoff(attempt, c.baseDelay, c.maxDelay)); err != nil {
				return application.TransferResult{}, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			c.logger.Warn("bank rate limited",
				"idempotency_key", idempotencyKey,
				"attempt", attempt,
				"retry_after", retryAfter,
			)
			if attempt == c.maxRetries {
				result := application.FinalFailureResult("rate_limited")
				result.RetryAfter = retryAfter
				return result, nil
			}
			delay := maxDuration(backoff(attempt, c.baseDelay, c.maxDelay), retryAfter)
			if err := sleepCtx(ctx, delay); err != nil {
				return application.TransferResult{}, err
			}
			continue
		}

		c.logger.Info("bank http response",
			"idempotency_key", idempotencyKey,
			"http_status", resp.StatusCode,
		)
		return classifyResponse(resp.StatusCode, body, idempotencyKey), nil
	}

	return application.UnknownResult("network_error"), nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, payload []byte, idempotencyKey string) (*http.Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Idempotency-Key", idempotencyKey)

	return c.httpClient.Do(httpReq)
}

// acquireToken waits for the rate limiter but fails open when the limiter
// itself is broken. A throttling outage must not take down transfers.
func (c *Client) acquireToken(ctx context.Context) error {
	err := c.limiter.Acquire(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.logger.Warn("rate limiter unavailable, proceeding without throttle", "error", err)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
