// Package wait provides the bounded polling primitive used by the harness to
// synchronise with collaborators that expose no completion signal: a spawned
// process exiting, a bridge coming online, an MQTT message arriving.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultTimeout bounds Until.
	DefaultTimeout = 5 * time.Second
	// DefaultInterval is the sleep between two predicate evaluations in Until.
	DefaultInterval = 100 * time.Millisecond
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("wait: condition not met before timeout")

// TimeoutError reports a predicate that never returned true.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
	// Last is the final predicate result, always false.
	Last bool
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("wait: condition still %t after %v (timeout %v)", e.Last, e.Elapsed.Round(time.Millisecond), e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Predicate reports whether the awaited condition holds. A non-nil error means a
// broken precondition and aborts the wait.
type Predicate func() (bool, error)

// For evaluates pred until it returns true, it returns an error, ctx is done or
// timeout elapses. It sleeps interval between evaluations.
func For(ctx context.Context, timeout, interval time.Duration, pred Predicate) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	start := time.Now()
	deadline := start.Add(timeout)
	for {
		ok, err := pred()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		now := time.Now()
		if !now.Before(deadline) {
			return &TimeoutError{Timeout: timeout, Elapsed: now.Sub(start)}
		}
		sleep := interval
		if remaining := deadline.Sub(now); remaining < sleep {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}
}

// Until is For with the default timeout and interval for plain boolean
// conditions.
func Until(ctx context.Context, cond func() bool) error {
	return For(ctx, DefaultTimeout, DefaultInterval, Bool(cond))
}

// Bool adapts a boolean condition to a Predicate.
func Bool(cond func() bool) Predicate {
	return func() (bool, error) { return cond(), nil }
}
