// Package retry runs remote calls under a bounded attempt budget.
package retry

import (
	"context"
	"fmt"
	"time"
)

// DelayFunc returns how long to wait after the given failed attempt (1-based).
type DelayFunc func(attempt int) time.Duration

// Fixed waits d between every attempt.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Linear waits attempt*step after each failure.
func Linear(step time.Duration) DelayFunc {
	return func(attempt int) time.Duration { return time.Duration(attempt) * step }
}

// NoDelay retries immediately.
func NoDelay() DelayFunc { return Fixed(0) }

// Policy bounds how often an operation is attempted.
type Policy struct {
	Attempts int
	Delay    DelayFunc
	// OnRetry, when set, is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Default is three attempts with a fixed one second pause.
func Default() Policy {
	return Policy{Attempts: 3, Delay: Fixed(time.Second)}
}

// WithHook returns a copy of p that reports retries to fn.
func (p Policy) WithHook(fn func(attempt int, err error)) Policy {
	p.OnRetry = fn
	return p
}

// Error is returned when every attempt failed. It wraps the last error.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Do calls op until it succeeds, the attempt budget is spent, or ctx is done.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Delay
	if delay == nil {
		delay = NoDelay()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if d := delay(attempt); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return &Error{Attempts: attempt, Err: err}
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return &Error{Attempts: attempt, Err: err}
		}
	}
	return &Error{Attempts: attempts, Err: err}
}
