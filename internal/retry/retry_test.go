package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func testPolicy(slept *[]time.Duration) Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      1000 * time.Millisecond,
		MaxDelay:       5000 * time.Millisecond,
		AttemptTimeout: 10 * time.Second,
		Retryable:      func(err error) bool { return errors.Is(err, errTransient) },
		Sleep:          func(d time.Duration) { *slept = append(*slept, d) },
	}
}

func TestDo(t *testing.T) {
	t.Run("returns after first success", func(t *testing.T) {
		var slept []time.Duration
		calls := 0

		attempts, err := Do(context.Background(), testPolicy(&slept), func(ctx context.Context, attempt int) error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
		assert.Empty(t, slept)
	})

	t.Run("retries transient errors with backoff", func(t *testing.T) {
		var slept []time.Duration

		attempts, err := Do(context.Background(), testPolicy(&slept), func(ctx context.Context, attempt int) error {
			if attempt < 3 {
				return errTransient
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
	})

	t.Run("never exceeds max attempts", func(t *testing.T) {
		var slept []time.Duration
		calls := 0

		attempts, err := Do(context.Background(), testPolicy(&slept), func(ctx context.Context, attempt int) error {
			calls++
			return errTransient
		})

		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
		assert.Len(t, slept, 2)
	})

	t.Run("doubles delay up to the cap", func(t *testing.T) {
		var slept []time.Duration
		p := testPolicy(&slept)
		p.MaxAttempts = 5

		attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
			return errTransient
		})

		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 5, attempts)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}, slept)
	})

	t.Run("passes the attempt number to fn", func(t *testing.T) {
		var slept []time.Duration
		var seen []int

		_, _ = Do(context.Background(), testPolicy(&slept), func(ctx context.Context, attempt int) error {
			seen = append(seen, attempt)
			return errTransient
		})

		assert.Equal(t, []int{1, 2, 3}, seen)
	})

	t.Run("real timer stops waiting when context is cancelled", func(t *testing.T) {
		p := Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Hour,
			Retryable:   func(err error) bool { return true },
		}
		ctx, cancel := context.WithCancel(context.Background())

		attempts, err := Do(ctx, p, func(ctx context.Context, attempt int) error {
			cancel()
			return errTransient
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		var slept []time.Duration
		calls := 0

		attempts, err := Do(context.Background(), testPolicy(&slept), func(ctx context.Context, attempt int) error {
			calls++
			return errPermanent
		})

		assert.ErrorIs(t, err, errPermanent)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
		assert.Empty(t, slept)
	})

	t.Run("bounds each attempt with a timeout", func(t *testing.T) {
		var slept []time.Duration
		p := testPolicy(&slept)
		p.AttemptTimeout = 20 * time.Millisecond
		p.MaxAttempts = 1

		_, err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(20*time.Millisecond), deadline, 20*time.Millisecond)
			<-ctx.Done()
			return ctx.Err()
		})

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("nil retryable never retries", func(t *testing.T) {
		var slept []time.Duration
		p := testPolicy(&slept)
		p.Retryable = nil

		attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
			return errTransient
		})

		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}
