package llm

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff around provider calls.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultRetryConfig returns backoff settings tuned for LLM requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Retry executes fn with exponential backoff. It returns nil on the first
// success, the last error after MaxRetries additional attempts, or the
// context error if cancelled while waiting.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt)
			slog.Debug("retrying provider call", "attempt", attempt+1, "delay_ms", delay.Milliseconds(), "error", lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	return lastErr
}

// backoffDelay computes the delay before the given retry attempt (1-based).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if max := float64(cfg.MaxDelay); delay > max {
		delay = max
	}
	if cfg.Jitter {
		// Up to 25% random jitter.
		delay += delay * 0.25 * rand.Float64()
	}
	return time.Duration(delay)
}
