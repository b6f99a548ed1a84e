package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dkeye/Duo/internal/domain"
)

// DefaultRetryWait is the pause before the single retry of a transient failure.
const DefaultRetryWait = 50 * time.Millisecond

// retryOnce runs op and, if it fails with a transient infrastructure error,
// runs it exactly once more after wait. Any other error is returned as is.
func retryOnce[T any](ctx context.Context, wait time.Duration, op func(context.Context) (T, error)) (T, error) {
	var (
		out     T
		lastErr error
	)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(wait), 1), ctx)
	err := backoff.Retry(func() error {
		v, err := op(ctx)
		if err == nil {
			out = v
			return nil
		}
		lastErr = err
		if domain.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && lastErr != nil {
		return out, lastErr
	}
	return out, err
}
