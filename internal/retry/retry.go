// Package retry provides the exponential-backoff policy shared by the
// classification client and the persistence layer. One policy type replaces
// per-call-site retry loops.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy retries an operation with exponential backoff: the delay starts at
// InitialDelay and doubles after each failed attempt. The zero value is not
// usable; construct with NewPolicy.
type Policy struct {
	maxAttempts  int
	initialDelay time.Duration
	logger       *slog.Logger
}

func NewPolicy(maxAttempts int, initialDelay time.Duration, logger *slog.Logger) *Policy {
	return &Policy{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		logger:       logger,
	}
}

// Do runs fn until it succeeds or maxAttempts is exhausted. The last error is
// returned wrapped. Context cancellation interrupts the backoff sleep and
// stops further attempts.
func (p *Policy) Do(ctx context.Context, op string, fn func() error) error {
	delay := p.initialDelay

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				p.logger.Info("Retry succeeded", "operation", op, "attempt", attempt)
			}
			return nil
		}

		if attempt < p.maxAttempts {
			p.logger.Warn("Attempt failed, retrying",
				"operation", op,
				"attempt", attempt,
				"max_attempts", p.maxAttempts,
				"delay", delay.String(),
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s canceled during backoff: %w", op, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	p.logger.Error("All attempts failed",
		"operation", op,
		"max_attempts", p.maxAttempts,
		"error", lastErr,
	)
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.maxAttempts, lastErr)
}
