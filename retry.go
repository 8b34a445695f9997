package client

import (
	"context"
	"time"
)

// RetryNotifyFunc is called before every retry with the failed attempt's
// result, its transport error (nil when a response was received), and the
// 1-based number of the attempt that failed. Returning false stops the loop
// and the failed result is returned as is.
type RetryNotifyFunc[R any] func(result R, err error, attempt int) bool

// attempt is what the retry loop needs to know about one outcome.
type attempt interface {
	succeeded() bool
	retryAfterHint() *RetryAfter
}

func (r *Result[T]) succeeded() bool {
	return r != nil && r.Success
}

func (r *Result[T]) retryAfterHint() *RetryAfter {
	if r == nil {
		return nil
	}
	return r.RetryAfter
}

func (r *ListResult[T]) succeeded() bool {
	return r != nil && r.Success
}

func (r *ListResult[T]) retryAfterHint() *RetryAfter {
	if r == nil {
		return nil
	}
	return r.RetryAfter
}

// Retry runs op until it succeeds or policy is exhausted. op must build a
// fresh [Request] on every call since requests are single use.
//
// Between attempts Retry waits for the server's Retry-After delay adjusted
// by the policy, or the policy's fallback delay when none was sent. If ctx
// is cancelled while waiting, the most recent result is returned together
// with ctx.Err(). Transport errors rejected by [DefaultRetryPolicy] end the
// loop immediately.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (*Result[T], error), notify RetryNotifyFunc[*Result[T]]) (*Result[T], error) {
	return retry(ctx, policy, op, notify)
}

// RetryList is [Retry] for list operations.
func RetryList[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (*ListResult[T], error), notify RetryNotifyFunc[*ListResult[T]]) (*ListResult[T], error) {
	return retry(ctx, policy, op, notify)
}

func retry[R attempt](ctx context.Context, policy RetryPolicy, op func(context.Context) (R, error), notify RetryNotifyFunc[R]) (R, error) {
	maxAttempts := policy.maxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for n := 1; ; n++ {
		res, err := op(ctx)
		if err == nil && res.succeeded() {
			return res, nil
		}

		if n >= maxAttempts {
			return res, err
		}

		if err != nil && !DefaultRetryPolicy(err) {
			return res, err
		}

		if notify != nil && !notify(res, err, n) {
			return res, err
		}

		if werr := sleepWithContext(ctx, policy.Delay(res.retryAfterHint(), time.Now())); werr != nil {
			return res, werr
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
