// Package retry holds the bounded retry policy shared by operations that must
// absorb transient store conflicts.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy retries an operation a bounded number of times with linear backoff:
// the n-th retry waits n*BaseDelay.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ErrStop wraps an error that must not be retried.
var ErrStop = errors.New("retry: stop")

type stopError struct{ err error }

func (e stopError) Error() string { return e.err.Error() }
func (e stopError) Unwrap() []error { return []error{ErrStop, e.err} }

// Stop marks err as permanent; Do returns it immediately.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return stopError{err: err}
}

func New(maxRetries int, baseDelay time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, BaseDelay: baseDelay}
}

// Attempts is the total number of calls Do will make at most.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Backoff returns the wait before retry number n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	return time.Duration(n) * p.BaseDelay
}

// Do calls fn until it succeeds, returns a Stop error, ctx is done, or the
// attempts are used up. fn receives the 1-based attempt number. The last
// error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts(); attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrStop) {
			var s stopError
			if errors.As(err, &s) {
				return s.err
			}
			return err
		}
		lastErr = err

		if attempt < p.Attempts() {
			if err := sleep(ctx, p.Backoff(attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
