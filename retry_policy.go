package client

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultRetryBuffer is added to every server-supplied delay.
	DefaultRetryBuffer = 250 * time.Millisecond
	// DefaultFallbackDelay is waited when a failed response carries no
	// Retry-After header.
	DefaultFallbackDelay = 15 * time.Second
)

// RetryPolicy bounds a [Retry] loop. It holds no per-call state and is safe
// to share between concurrent calls; the With methods return modified
// copies.
type RetryPolicy struct {
	maxAttempts   int
	buffer        time.Duration
	weight        float64
	fallbackDelay time.Duration
}

var (
	// RetryOne makes a single attempt and never waits.
	RetryOne = mustRetryPolicy(1)
	// RetryTwo allows one retry. This is the recommended setting.
	RetryTwo = mustRetryPolicy(2)
	// RetryThree allows two retries. Needing it in steady state usually
	// points at a problem on the provider's side.
	RetryThree = mustRetryPolicy(3)
	// RetryFour allows three retries. Like RetryThree it is meant for
	// riding out an upstream anomaly, not for normal operation.
	RetryFour = mustRetryPolicy(4)
)

// NewRetryPolicy returns a policy making at most maxAttempts attempts. The
// wait before a retry is d + d*weight + buffer, where d is the server's
// Retry-After delay.
func NewRetryPolicy(maxAttempts int, buffer time.Duration, weight float64) (RetryPolicy, error) {
	if maxAttempts < 1 {
		return RetryPolicy{}, fmt.Errorf("maxAttempts must be at least 1, got %d", maxAttempts)
	}

	if buffer < 0 {
		return RetryPolicy{}, errors.New("buffer must be non-negative")
	}

	if weight < 0 {
		return RetryPolicy{}, errors.New("weight must be non-negative")
	}

	return RetryPolicy{
		maxAttempts:   maxAttempts,
		buffer:        buffer,
		weight:        weight,
		fallbackDelay: DefaultFallbackDelay,
	}, nil
}

func mustRetryPolicy(maxAttempts int) RetryPolicy {
	p, err := NewRetryPolicy(maxAttempts, DefaultRetryBuffer, 0)
	if err != nil {
		panic(err)
	}
	return p
}

// WithFallbackDelay returns a copy of p that waits d when the server sent no
// Retry-After header. Negative values are treated as zero.
func (p RetryPolicy) WithFallbackDelay(d time.Duration) RetryPolicy {
	if d < 0 {
		d = 0
	}
	p.fallbackDelay = d
	return p
}

func (p RetryPolicy) MaxAttempts() int             { return p.maxAttempts }
func (p RetryPolicy) Buffer() time.Duration        { return p.buffer }
func (p RetryPolicy) Weight() float64              { return p.weight }
func (p RetryPolicy) FallbackDelay() time.Duration { return p.fallbackDelay }

// Delay returns the wait before the next attempt.
func (p RetryPolicy) Delay(retryAfter *RetryAfter, now time.Time) time.Duration {
	if retryAfter == nil {
		return p.fallbackDelay
	}

	d := retryAfter.Duration(now)

	return d + time.Duration(float64(d)*p.weight) + p.buffer
}
