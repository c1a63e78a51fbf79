// Package retry provides the bounded wait loops every provider poll in
// the orchestrator goes through. Bounds are explicit: a maximum attempt
// count and a per-attempt delay function. Sleeping is injectable so
// tests run without real time passing.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when the attempt bound is reached without the
// condition holding.
var ErrExhausted = errors.New("retry attempts exhausted")

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DelayFunc returns the delay before attempt n (0-based).
type DelayFunc func(attempt int) time.Duration

// Fixed returns d for every attempt.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Exponential doubles the delay each attempt, starting at initial and
// never exceeding cap.
func Exponential(initial, cap time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		d := initial
		for i := 0; i < attempt; i++ {
			d *= 2
			if d >= cap {
				return cap
			}
		}
		return d
	}
}

// Waiter runs a condition up to MaxAttempts times, sleeping Delay(n)
// between attempts.
type Waiter struct {
	MaxAttempts int
	Delay       DelayFunc
	SleepFn     SleepFunc
}

func (w Waiter) sleep() SleepFunc {
	if w.SleepFn != nil {
		return w.SleepFn
	}
	return Sleep
}

// Until calls fn until it reports done, a non-nil error, or the attempt
// bound is hit. A transient error from fn aborts the wait; callers that
// want to ride through transient errors return (false, nil) instead.
func (w Waiter) Until(ctx context.Context, fn func(ctx context.Context) (done bool, err error)) error {
	sleep := w.sleep()
	for attempt := 0; attempt < w.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, w.Delay(attempt-1)); err != nil {
				return err
			}
		}
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ErrExhausted
}
