// Package retry runs an operation under a declarative retry policy: a table
// mapping error classes to delay functions.
package retry

import (
	"context"
	"fmt"
	"time"
)

// DelayFunc returns the wait before the next attempt. attempt is 1 after
// the first failure.
type DelayFunc func(attempt int) time.Duration

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Rule applies Delay to errors accepted by Match.
type Rule struct {
	Name  string
	Match func(error) bool
	Delay DelayFunc
}

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. Errors matched by no rule are retried with Default,
// or returned immediately when Default is nil.
type Policy struct {
	MaxAttempts int
	Rules       []Rule
	Default     DelayFunc
	Sleep       SleepFunc
}

// Fixed waits d before every retry.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Exponential waits base, 2*base, 4*base, ...
func Exponential(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base << (attempt - 1)
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// delayFor returns the delay for err and whether it is retryable at all.
func (p Policy) delayFor(err error) (DelayFunc, bool) {
	for _, r := range p.Rules {
		if r.Match != nil && r.Match(err) {
			return r.Delay, true
		}
	}
	if p.Default != nil {
		return p.Default, true
	}
	return nil, false
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget runs out, or ctx is done. No sleep follows the final attempt.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err

		delay, ok := p.delayFor(err)
		if !ok {
			return zero, err
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
