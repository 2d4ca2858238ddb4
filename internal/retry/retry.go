// Package retry runs outbound calls under a bounded exponential-backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	// Retryable reports whether err is worth another attempt. Nil means never retry.
	Retryable func(error) bool
	// Sleep waits between attempts. Nil uses a real timer that also stops on ctx cancellation.
	Sleep func(time.Duration)
}

// newBackOff doubles BaseDelay per attempt up to MaxDelay, without jitter,
// and stops after MaxAttempts calls.
func (p Policy) newBackOff(ctx context.Context) backoff.BackOff {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	if p.MaxDelay > 0 {
		exp.MaxInterval = p.MaxDelay
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxAttempts-1)), ctx)
}

// Do calls fn until it succeeds, returns a non-retryable error, or MaxAttempts
// is reached. Each call gets its own AttemptTimeout-bounded context. It returns
// the number of attempts made and the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := 0
	operation := func() error {
		attempts++
		err := runAttempt(ctx, p.AttemptTimeout, attempts, fn)
		if err != nil && (p.Retryable == nil || !p.Retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}

	var timer backoff.Timer
	if p.Sleep != nil {
		timer = &sleepTimer{sleep: p.Sleep, c: make(chan time.Time, 1)}
	}

	err := backoff.RetryNotifyWithTimer(operation, p.newBackOff(ctx), nil, timer)
	return attempts, err
}

func runAttempt(ctx context.Context, timeout time.Duration, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if timeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}

// sleepTimer fires as soon as sleep returns.
type sleepTimer struct {
	sleep func(time.Duration)
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	t.sleep(d)
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.c }
