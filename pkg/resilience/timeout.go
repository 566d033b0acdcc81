package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks a call that WithTimeout gave up on. Errors carrying it
// also match context.DeadlineExceeded.
var ErrTimeout = errors.New("timed out")

// WithTimeout bounds fn to timeout, named name in the returned error. A
// timeout of zero or less runs fn inline on ctx. Cancellation of ctx itself
// is reported as such and never as ErrTimeout.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	var err error
	select {
	case err = <-done:
		if err == nil || !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	case <-callCtx.Done():
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: caller gave up: %w", name, ctx.Err())
	}
	return fmt.Errorf("%s: %w after %v: %w", name, ErrTimeout, timeout, context.DeadlineExceeded)
}
