package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice with a retryable error then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return TransientStore("busy", nil)
		}
		return nil
	}

	// When: retrying with default config
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	// Given: a function that always fails with a retryable error
	attempts := 0
	var retried []int
	cfg := fastRetryConfig()
	cfg.MaxRetries = 2
	cfg.OnRetry = func(attempt int, err error) {
		retried = append(retried, attempt)
	}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return TransientStore("busy", nil)
	})

	// Then: fails with wrapped error that keeps its code
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.True(t, errors.Is(err, ErrTransientStore))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	// Given: a malformed-input error, which is not retryable
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return MalformedInput("no title")
	})

	// Then: returned after a single attempt, unwrapped
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, ErrMalformedInput))
	assert.NotContains(t, err.Error(), "retries")
}

func TestRetry_NilShouldRetryRetriesEverything(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.ShouldRetry = nil
	attempts := 0

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return errors.New("plain")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, TransientStore("busy", nil)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
