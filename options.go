package client

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the API base every endpoint path is resolved against.
// Only URLs under the base URL receive the bearer token.
const DefaultBaseURL = "https://api.ciscospark.com/v1/"

const (
	minTimeout = time.Second
	maxTimeout = 5 * time.Minute
)

type Option func(*Options)

type Options struct {
	baseURL        string
	timeout        time.Duration
	requestLogger  RequestLogger
	requestHeaders map[string]string
	userAgent      string
	rateLimit      float64
	rateBurst      int
}

func newClientOptions() *Options {
	return &Options{
		baseURL:       DefaultBaseURL,
		timeout:       30 * time.Second,
		requestLogger: &NoopLogger{},
		requestHeaders: map[string]string{
			"Accept":         mediaTypeJSON,
			"Accept-Charset": "utf-8",
		},
		userAgent: "spark-go-client",
	}
}

// WithBaseURL overrides the API base URL. A trailing slash is appended when
// missing so that endpoint paths resolve below it.
func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		baseURL = strings.TrimSpace(baseURL)
		if baseURL == "" {
			return
		}
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		o.baseURL = baseURL
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= minTimeout {
			o.timeout = timeout
		}
	}
}

func WithRequestLogger(logger RequestLogger) Option {
	return func(o *Options) {
		if logger != nil {
			o.requestLogger = logger
		}
	}
}

// WithRequestHeader adds a header sent with every request on both the API and
// the non-API execution context. Content-Type, Accept and Authorization are
// owned by the client and cannot be overridden.
func WithRequestHeader(header, value string) Option {
	return func(o *Options) {
		header = strings.TrimSpace(header)

		if header == "" || isProtectedHeader(header) {
			return
		}

		o.requestHeaders[header] = value
	}
}

func WithUserAgent(userAgent string) Option {
	return func(o *Options) {
		if userAgent = strings.TrimSpace(userAgent); userAgent != "" {
			o.userAgent = userAgent
		}
	}
}

// WithRateLimit throttles requests to the API host to rps requests per second
// with the given burst. Requests to non-API URLs are never throttled.
// A zero rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Options) {
		if rps >= 0 && burst >= 1 {
			o.rateLimit = rps
			o.rateBurst = burst
		}
	}
}

func isProtectedHeader(header string) bool {
	return strings.EqualFold(header, "Content-Type") ||
		strings.EqualFold(header, "Accept") ||
		strings.EqualFold(header, "Authorization")
}

// Validate checks the options for consistency. It is called by
// [Client.Connect].
func (o *Options) Validate() error {
	if o.baseURL == "" {
		return errors.New("baseURL must be set")
	}

	u, err := url.Parse(o.baseURL)
	if err != nil {
		return fmt.Errorf("baseURL is invalid: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("baseURL must use http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("baseURL must be absolute")
	}

	if o.timeout < minTimeout {
		return fmt.Errorf("timeout must be at least %v", minTimeout)
	}

	if o.timeout > maxTimeout {
		return fmt.Errorf("timeout must not exceed %v", maxTimeout)
	}

	if o.requestLogger == nil {
		return errors.New("requestLogger must not be nil")
	}

	if o.rateLimit < 0 {
		return errors.New("rateLimit must be non-negative")
	}

	if o.rateLimit > 0 && o.rateBurst < 1 {
		return errors.New("rateBurst must be at least 1 when rateLimit is set")
	}

	return nil
}
