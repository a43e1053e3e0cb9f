package artifact

import (
	"context"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// BackoffPolicy controls retry of recoverable failures.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultBackoff returns the standard fetch retry policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    8 * time.Second,
		MaxAttempts: 4,
	}
}

// RetryWithBackoff runs op with exponential backoff. Only recoverable conditions
// are retried; a non-recoverable typed error short-circuits on first occurrence.
func RetryWithBackoff(ctx context.Context, policy BackoffPolicy, logger *zap.Logger, op func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2
	}

	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			if attempt > 1 && logger != nil {
				logger.Debug("operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if kind, ok := models.KindOf(lastErr); ok && !kind.Recoverable() {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if logger != nil {
			logger.Debug("operation failed, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * policy.Multiplier)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return lastErr
}
