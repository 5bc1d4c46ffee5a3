package generator

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the primary attempts of one invocation.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration // Delay before the second attempt
	MaxDelay    time.Duration // Cap on any single delay; zero means uncapped
}

// DefaultRetryPolicy is three attempts with 2s, 4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// newBackOff returns a doubling, jitter-free schedule starting at BaseDelay.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(p.BaseDelay, 0)
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxDelay
	if p.MaxDelay <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.InitialInterval = min(b.InitialInterval, b.MaxInterval)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
