package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustionWrapsLastError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("still down")
	calls := 0
	r := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	err := r.Do(context.Background(), func() error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestNonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	policy := fastPolicy(5)
	policy.Retryable = func(error) bool { return false }

	calls := 0
	r := NewBackoffRetryer(policy, zap.NewNop())
	err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("permanent")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	policy := fastPolicy(3)
	policy.InitialDelay = time.Hour // force the retry wait to block

	ctx, cancel := context.WithCancel(context.Background())
	r := NewBackoffRetryer(policy, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func() error { return errors.New("transient") })
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retryer did not observe cancellation")
	}
}
