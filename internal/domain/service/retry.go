package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy wraps one model call with automatic retry and exponential
// backoff. MaxRetries counts the retries after the initial attempt, so the
// total attempt budget is MaxRetries+1.
type RetryPolicy struct {
	MaxRetries int
	BaseWait   time.Duration
}

// DefaultRetryPolicy retries three times with 1s, 2s, 4s waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseWait: time.Second}
}

// Do runs fn until it succeeds, the attempt budget is spent, or a
// non-retryable error comes back. fn receives the 1-based attempt number.
// The backoff wait respects ctx cancellation.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op string, fn func(attempt int) (string, error)) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.BaseWait * (1 << (attempt - 1))

			logger.Info("Retrying model call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", p.MaxRetries),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := fn(attempt + 1)
		if err == nil {
			if attempt > 0 {
				logger.Info("Model call retry succeeded",
					zap.String("op", op),
					zap.Int("attempt", attempt),
				)
			}
			return text, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		logger.Warn("Model call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if !isRetryableError(err) {
			return "", fmt.Errorf("non-retryable model error: %w", err)
		}
	}

	return "", fmt.Errorf("model call failed after %d retries: %w", p.MaxRetries, lastErr)
}

// isRetryableError classifies a model call error. Auth failures and missing
// resources never recover on retry; everything else is assumed transient.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	nonRetryable := []string{
		"context canceled",
		"401", "403", "404",
		"unauthorized",
		"invalid api key",
		"not found",
	}
	for _, pattern := range nonRetryable {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	return true
}
