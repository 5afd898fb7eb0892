package common

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
)

// Backoff is the single retry policy for session capture and validation.
// Individual tests never retry - per-test failures are recorded as results
// and retry behavior belongs at the session level only.
type Backoff struct {
	Initial     time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultBackoff returns the standard policy: one retry after a short delay
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     2 * time.Second,
		Multiplier:  2.0,
		MaxAttempts: 2,
	}
}

// Delay returns the sleep before the given attempt (1-based). The first
// attempt has no delay.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := b.Initial
	for i := 2; i < attempt; i++ {
		delay = time.Duration(float64(delay) * b.Multiplier)
	}
	return delay
}

// Retry runs fn up to MaxAttempts times with exponential backoff between
// attempts, honoring context cancellation. Returns the last error when all
// attempts fail.
func (b Backoff) Retry(ctx context.Context, logger arbor.ILogger, name string, fn func() error) error {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := b.Delay(attempt); delay > 0 {
			logger.Debug().
				Str("operation", name).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Backing off before retry")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled during backoff: %w", name, ctx.Err())
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		logger.Warn().
			Err(lastErr).
			Str("operation", name).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("Attempt failed")

		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}
