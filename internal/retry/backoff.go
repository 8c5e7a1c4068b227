package retry

import (
	"context"
	"math/rand"
	"time"
)

// BackoffConfig configures exponential backoff.
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
	Jitter       bool          `json:"jitter"`
}

// DefaultBackoffConfig returns a sensible default configuration.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// Backoff implements exponential backoff with optional jitter.
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new exponential backoff instance.
func NewBackoff(config BackoffConfig) *Backoff {
	if config.Multiplier < 1 {
		config.Multiplier = 2.0
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Backoff{config: config}
}

// Retry runs the operation until it succeeds or the attempts run out.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	return b.RetryWithPredicate(ctx, operation, func(error) bool { return true })
}

// RetryWithPredicate runs the operation with backoff, stopping early when
// the predicate classifies an error as non-retryable.
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == b.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.delayFor(attempt, b.config.Jitter)):
		}
	}

	return lastErr
}

// delayFor computes the wait after the given attempt number (1-based). The
// base delay grows monotonically; jitter only adds on top of it, so a later
// attempt never waits less than an earlier attempt's base delay.
func (b *Backoff) delayFor(attempt int, jitter bool) time.Duration {
	delay := float64(b.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= b.config.Multiplier
		if delay >= float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
			break
		}
	}

	if jitter {
		delay += delay * 0.25 * rand.Float64()
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// NextDelay exposes the jitter-free base delay for an attempt, for tests
// and logging.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	return b.delayFor(attempt, false)
}
