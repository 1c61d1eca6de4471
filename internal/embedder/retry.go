package embedder

import (
	"context"
	"time"
)

// Retry tuning for embedding API calls. Query embedding sits on the
// latency-critical path, so the budget is tight.
const (
	maxRetries       = 2
	initialBackoffMs = 50
	maxBackoffMs     = 500
	backoffMult      = 2.0
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig returns the defaults used for embedding API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  initialBackoffMs * time.Millisecond,
		MaxDelay:   maxBackoffMs * time.Millisecond,
		Multiplier: backoffMult,
	}
}

// retryWithBackoff executes fn with exponential backoff. Retry stops
// immediately on context cancellation so a query deadline is honored.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := config.BaseDelay

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < config.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxDelay {
					backoff = config.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}
