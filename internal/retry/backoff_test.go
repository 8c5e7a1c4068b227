package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     8 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  4,
	}
}

func TestRetry_SucceedsEventually(t *testing.T) {
	b := NewBackoff(testConfig())
	attempts := 0
	err := b.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	b := NewBackoff(testConfig())
	attempts := 0
	err := b.Retry(context.Background(), func() error {
		attempts++
		return fmt.Errorf("always failing")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Contains(t, err.Error(), "always failing")
}

func TestRetryWithPredicate_StopsOnNonRetryable(t *testing.T) {
	b := NewBackoff(testConfig())
	attempts := 0
	permanent := fmt.Errorf("permanent")
	err := b.RetryWithPredicate(context.Background(), func() error {
		attempts++
		return permanent
	}, func(err error) bool { return false })
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
		MaxAttempts:  3,
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := b.Retry(ctx, func() error {
		attempts++
		return fmt.Errorf("failing")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestNextDelay_GrowsAndCaps(t *testing.T) {
	b := NewBackoff(testConfig())
	assert.Equal(t, time.Millisecond, b.NextDelay(1))
	assert.Equal(t, 2*time.Millisecond, b.NextDelay(2))
	assert.Equal(t, 4*time.Millisecond, b.NextDelay(3))
	assert.Equal(t, 8*time.Millisecond, b.NextDelay(4))
	assert.Equal(t, 8*time.Millisecond, b.NextDelay(10))
}

func TestNewBackoff_Sanitizes(t *testing.T) {
	b := NewBackoff(BackoffConfig{Multiplier: 0, MaxAttempts: 0, InitialDelay: time.Millisecond, MaxDelay: time.Second})
	attempts := 0
	_ = b.Retry(context.Background(), func() error {
		attempts++
		return fmt.Errorf("nope")
	})
	assert.Equal(t, 1, attempts)
}

func TestDelayJitterNeverExceedsMax(t *testing.T) {
	cfg := testConfig()
	cfg.Jitter = true
	b := NewBackoff(cfg)
	for attempt := 1; attempt <= 6; attempt++ {
		for i := 0; i < 50; i++ {
			d := b.delayFor(attempt, true)
			assert.GreaterOrEqual(t, d, b.NextDelay(attempt))
			assert.LessOrEqual(t, d, cfg.MaxDelay)
		}
	}
}
