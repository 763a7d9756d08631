// Package retry applies the uniform provider retry policy: one retry with
// exponential backoff, applied at the adapter boundary.
package retry

import (
	"context"
	"errors"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Default policy values for external provider calls.
const (
	DefaultAttempts = 2 // initial call + one retry
	DefaultBackoff  = 500 * time.Millisecond
)

// Policy describes how a provider call is retried.
type Policy struct {
	Attempts uint
	Backoff  time.Duration
}

// DefaultPolicy returns the single-retry policy used for all providers.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, Backoff: DefaultBackoff}
}

// permanentError marks an error as non-retriable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do gives up immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn under the policy. Context cancellation stops retrying;
// errors wrapped with Permanent are returned without further attempts.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts == 0 {
		p = DefaultPolicy()
	}

	err := retrygo.Do(
		func() error { return fn(ctx) },
		retrygo.Context(ctx),
		retrygo.Attempts(p.Attempts),
		retrygo.Delay(p.Backoff),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			var perm *permanentError
			return !errors.As(err, &perm)
		}),
	)
	if err == nil {
		return nil
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	return err
}
