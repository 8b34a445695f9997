package client

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryAfter is the server's back-pressure hint. Exactly one of Delay and
// Date is set, matching the two wire forms of the Retry-After header.
type RetryAfter struct {
	Delay time.Duration
	Date  time.Time
}

// Duration returns how long to wait from now. Dates in the past yield zero.
func (r *RetryAfter) Duration(now time.Time) time.Duration {
	if r == nil {
		return 0
	}
	if !r.Date.IsZero() {
		if d := r.Date.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return r.Delay
}

// parseRetryAfter parses Retry-After header values (seconds or HTTP date).
func parseRetryAfter(h http.Header) *RetryAfter {
	value := strings.TrimSpace(h.Get("Retry-After"))
	if value == "" {
		return nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			secs = 0
		}
		return &RetryAfter{Delay: time.Duration(secs) * time.Second}
	}
	if t, err := http.ParseTime(value); err == nil {
		return &RetryAfter{Date: t}
	}
	return nil
}

// Result is the envelope returned by every API call.
//
// Success is first derived from the 2xx status class and then narrowed by
// the operation to its exact expected status code. A non-successful result
// is not an error by itself; use [Result.Value] to convert it into one.
type Result[T any] struct {
	// Data is the decoded payload. It is the zero value when HasValue is
	// false.
	Data T
	// HasValue is false when the response carried no payload: 204, or a
	// JSON content type with an empty body.
	HasValue bool
	Success  bool
	// StatusCode is the raw HTTP status code. It is zero when no response
	// was received.
	StatusCode int
	// TrackingID correlates the call with the provider's support logs.
	TrackingID string
	RetryAfter *RetryAfter

	message string
}

func (r *Result[T]) HasTrackingID() bool {
	return r.TrackingID != ""
}

func (r *Result[T]) HasRetryAfter() bool {
	return r.RetryAfter != nil
}

// Value returns the payload, or a [*ResultError] carrying the status code,
// tracking id and retry-after when the result is not successful.
func (r *Result[T]) Value() (T, error) {
	if !r.Success {
		var zero T
		return zero, &ResultError{
			StatusCode: r.StatusCode,
			TrackingID: r.TrackingID,
			RetryAfter: r.RetryAfter,
			Message:    r.message,
		}
	}
	return r.Data, nil
}

// expectStatus narrows Success to the exact status code an operation
// promises.
func (r *Result[T]) expectStatus(code int) {
	r.Success = r.Success && r.StatusCode == code
}

// ListResult is a [Result] whose payload is a page of items. When the
// response linked a next page, [ListResult.Next] fetches it.
type ListResult[T any] struct {
	Result[ItemList[T]]

	transport *Transport
	nextURL   string
}

// HasNext reports whether a continuation URL was provided by the server.
func (r *ListResult[T]) HasNext() bool {
	return r.transport != nil && r.nextURL != ""
}

// Items returns the items of this page, nil when the page had no payload.
func (r *ListResult[T]) Items() []T {
	return r.Data.Items
}
