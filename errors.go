package client

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotConnected is returned by API methods called before
	// [Client.Connect].
	ErrNotConnected = errors.New("client not connected - call Connect() first")
	// ErrListenerClosed is returned by [WebhookListener] methods after Close.
	ErrListenerClosed = errors.New("webhook listener is closed")
)

// ResultError is the error form of a non-successful [Result].
type ResultError struct {
	StatusCode int
	TrackingID string
	RetryAfter *RetryAfter
	Message    string
}

func (e *ResultError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "request failed with status %d", e.StatusCode)

	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}

	if e.TrackingID != "" {
		fmt.Fprintf(&b, " (tracking id: %s)", e.TrackingID)
	}

	if e.RetryAfter != nil {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter.Duration(time.Now()).Round(time.Second))
	}

	return b.String()
}

// IsRateLimited reports whether err is a [*ResultError] for HTTP 429.
func IsRateLimited(err error) bool {
	var re *ResultError
	return errors.As(err, &re) && re.StatusCode == 429
}

// IsNotFound reports whether err is a [*ResultError] for HTTP 404.
func IsNotFound(err error) bool {
	var re *ResultError
	return errors.As(err, &re) && re.StatusCode == 404
}
