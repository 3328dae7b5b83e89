package util

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// maxRetryDelay caps the backoff between attempts.
const maxRetryDelay = 5 * time.Second

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error or has been
// tried attempts times. Delays start at baseDelay and double up to
// maxRetryDelay. The last error is returned, unwrapped from Permanent; a
// cancelled ctx ends the wait with ctx.Err(). Failed attempts are logged at
// debug level under op.
func Retry(ctx context.Context, op string, attempts int, baseDelay time.Duration, fn func() error) error {
	delay := baseDelay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if i == attempts {
			break
		}
		slog.Debug("retrying", "op", op, "attempt", i, "of", attempts, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
	return err
}
