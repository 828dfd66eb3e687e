package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// baseRetryDelay is the first pause between RPC attempts.
	baseRetryDelay = 500 * time.Millisecond
	// maxRetryDelay caps the exponential backoff.
	maxRetryDelay = 30 * time.Second
)

// retryPolicy doubles the pause from baseRetryDelay up to maxRetryDelay and
// gives up after attempts retries or when ctx is done.
func retryPolicy(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseRetryDelay
	b.MaxInterval = maxRetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(attempts, 0))), ctx)
}

// withRetry runs fn up to attempts+1 times with exponential backoff. Each
// attempt gets its own timeout when timeout > 0.
func withRetry[T any](ctx context.Context, attempts int, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	call := func() (T, error) {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()
		v, err := fn(callCtx)
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}
		return v, err
	}
	return backoff.RetryWithData(call, retryPolicy(ctx, attempts))
}
