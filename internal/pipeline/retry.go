package pipeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds automatic retries of transient failures.
type RetryPolicy struct {
	MaxRetries int
	// Backoff is the pause before the first retry; it doubles on each further retry.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// attempts returns the total number of tries allowed, including the first.
func (p RetryPolicy) attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if maxBackoff > 0 && next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
