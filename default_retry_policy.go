package client

import (
	"context"
	"errors"
	"net"
)

// DefaultRetryPolicy decides whether a transport-level error is worth
// another attempt under [Retry]. It does not retry on context cancellation,
// deadline exceeded, DNS resolution failures, or a request that has already
// been consumed. Any other connection error is retried.
//
// HTTP-level failures are not classified here: every non-successful
// [Result] is retried until the [RetryPolicy] is exhausted or the notify
// callback declines.
func DefaultRetryPolicy(err error) bool {
	if err == nil {
		return false
	}

	// Don't retry on context cancellation or deadline exceeded
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Don't retry on DNS resolution errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return false
	}

	// A consumed request would fail the same way again
	if errors.Is(err, ErrRequestConsumed) {
		return false
	}

	// Retry on other connection errors
	return true
}
