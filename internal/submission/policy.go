package submission

import (
	"context"
	"time"
)

// Policy bounds automatic submission retries.
type Policy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt; it doubles after
	// every further failure.
	InitialBackoff time.Duration
}

// DefaultPolicy is three attempts, waiting 1s then 2s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialBackoff: time.Second}
}

// Backoff returns the wait after the n-th failed attempt (n >= 1).
func (p Policy) Backoff(n int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < n; i++ {
		d *= 2
	}
	return d
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
