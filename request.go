package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync/atomic"
)

// ErrRequestConsumed is returned when a [Request] is executed a second time.
var ErrRequestConsumed = errors.New("request has already been executed")

const (
	mediaTypeJSON = "application/json"
	mediaTypeAny  = "*/*"
)

// FilePart is the single binary part of a multipart request.
type FilePart struct {
	FileName  string
	MediaType MediaType
	Reader    io.Reader
}

// Request describes one logical API call: method, absolute target URL,
// optional query parameters and at most one body (JSON, form or multipart).
//
// A Request is immutable once built and may be executed exactly once, since
// a multipart file part is a one-shot stream.
type Request struct {
	method    string
	url       string
	query     url.Values
	accept    []string
	jsonBody  []byte
	form      url.Values
	fields    map[string]string
	file      *FilePart
	multipart bool
	consumed  atomic.Bool
}

// RequestOption configures a [Request] at build time.
type RequestOption func(*Request) error

// NewRequest builds a request descriptor. rawURL must be absolute.
func NewRequest(method, rawURL string, opts ...RequestOption) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}

	if !u.IsAbs() {
		return nil, fmt.Errorf("request URL %q must be absolute", rawURL)
	}

	r := &Request{
		method: method,
		url:    rawURL,
		accept: []string{mediaTypeJSON},
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	bodies := 0
	if r.jsonBody != nil {
		bodies++
	}
	if r.form != nil {
		bodies++
	}
	if r.multipart {
		bodies++
	}
	if bodies > 1 {
		return nil, errors.New("request may carry at most one body")
	}

	return r, nil
}

// WithQuery adds query parameters. Empty values are skipped.
func WithQuery(params url.Values) RequestOption {
	return func(r *Request) error {
		for key, values := range params {
			for _, v := range values {
				if v == "" {
					continue
				}
				if r.query == nil {
					r.query = url.Values{}
				}
				r.query.Add(key, v)
			}
		}
		return nil
	}
}

// WithJSONBody marshals body once at build time.
func WithJSONBody(body any) RequestOption {
	return func(r *Request) error {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		r.jsonBody = data
		return nil
	}
}

// WithFormBody sends form-encoded parameters.
func WithFormBody(form url.Values) RequestOption {
	return func(r *Request) error {
		r.form = url.Values{}
		for key, values := range form {
			r.form[key] = append([]string(nil), values...)
		}
		return nil
	}
}

// WithMultipart sends string fields plus an optional single file part.
func WithMultipart(fields map[string]string, file *FilePart) RequestOption {
	return func(r *Request) error {
		if file != nil && file.Reader == nil {
			return errors.New("multipart file part has no reader")
		}
		r.multipart = true
		r.fields = make(map[string]string, len(fields))
		for k, v := range fields {
			r.fields[k] = v
		}
		r.file = file
		return nil
	}
}

// WithAccept replaces the default Accept media types.
func WithAccept(mediaTypes ...string) RequestOption {
	return func(r *Request) error {
		if len(mediaTypes) > 0 {
			r.accept = append([]string(nil), mediaTypes...)
		}
		return nil
	}
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// URL returns the absolute target URL without the query parameters.
func (r *Request) URL() string { return r.url }

func (r *Request) consume() error {
	if !r.consumed.CompareAndSwap(false, true) {
		return ErrRequestConsumed
	}
	return nil
}
