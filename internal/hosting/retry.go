package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

// RetryConfig configures retries of API calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first call.
	// Default: 3
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	// Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff caps every wait, including rate limit waits.
	// Default: 30 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait between retries.
	// Default: 2
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	defaults := DefaultRetryConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
}

// retry runs op until it succeeds, fails with a permanent error or runs out
// of retries.
func retry(ctx context.Context, cfg RetryConfig, logger *zap.Logger, op func() (*github.Response, error)) (*github.Response, error) {
	var (
		lastErr  error
		lastResp *github.Response
	)
	backoff := cfg.InitialBackoff
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := op()
		if err == nil {
			if attempt > 0 {
				logger.Info("github call recovered after retries",
					zap.Int("attempts", attempt+1),
					zap.Duration("total_time", time.Since(start)),
				)
			}
			return resp, nil
		}
		lastErr, lastResp = err, resp

		if !retryable(err, resp) {
			return resp, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := backoff
		if d, ok := rateLimitWait(err, resp); ok {
			wait = d
		}
		if wait > cfg.MaxBackoff {
			wait = cfg.MaxBackoff
		}
		logger.Info("retrying github call",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", cfg.MaxRetries+1),
			zap.Int("status_code", statusCode(resp)),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("github call canceled: %w", ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	logger.Warn("github call failed after all retries",
		zap.Int("total_attempts", cfg.MaxRetries+1),
		zap.Duration("total_time", time.Since(start)),
		zap.Int("status_code", statusCode(lastResp)),
		zap.Error(lastErr),
	)
	return lastResp, fmt.Errorf("github call failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

func retryable(err error, resp *github.Response) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if resp == nil || resp.Response == nil {
		// Transport failures.
		return true
	}

	switch code := resp.StatusCode; code {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		// Secondary rate limits come back as 403.
		return isRateLimited(err, resp)
	default:
		return code >= 500 && code < 600
	}
}

func isRateLimited(err error, resp *github.Response) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	return resp != nil && resp.Rate.Limit > 0 && resp.Rate.Remaining == 0
}

// rateLimitWait is how long the API asked us to wait, if it did.
func rateLimitWait(err error, resp *github.Response) (time.Duration, bool) {
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return *abuseErr.RetryAfter, true
	}
	if resp == nil || !isRateLimited(err, resp) || resp.Rate.Reset.IsZero() {
		return 0, false
	}
	wait := time.Until(resp.Rate.Reset.Time) + time.Second
	if wait < time.Second {
		wait = time.Second
	}
	return wait, true
}

func statusCode(resp *github.Response) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	return 0
}
