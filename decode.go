package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

const headerTrackingID = "TrackingID"

// decode classifies resp and fills res. The body is JSON, a file, or
// nothing:
//
//  1. 204 carries no value.
//  2. A JSON content type is decoded into T; an empty body carries no value.
//  3. Anything else is a file: metadata is taken from the headers when T
//     accepts it, and the body is buffered when T accepts file data. A
//     failed response carries no file.
//
// A JSON body that cannot be decoded is an error only for 2xx responses;
// error bodies are best effort.
func decode[T any](resp *resty.Response, res *Result[T]) error {
	header := resp.Header()

	res.StatusCode = resp.StatusCode()
	res.Success = resp.IsSuccess()
	res.TrackingID = header.Get(headerTrackingID)
	res.RetryAfter = parseRetryAfter(header)

	if res.StatusCode == http.StatusNoContent {
		return nil
	}

	body := resp.Body()

	if contentMediaType(header) == mediaTypeJSON {
		if len(bytes.TrimSpace(body)) == 0 {
			return nil
		}

		if !res.Success {
			res.message = errorMessage(body)
		}

		if err := json.Unmarshal(body, &res.Data); err != nil {
			if !res.Success {
				var zero T
				res.Data = zero
				return nil
			}
			return fmt.Errorf("failed to decode response body (status %d): %w", res.StatusCode, err)
		}

		res.HasValue = true
		return nil
	}

	if !res.Success {
		return nil
	}

	var target any = &res.Data

	if r, ok := target.(fileInfoReceiver); ok {
		r.setFileInfo(fileInfoFromHeader(header))
		res.HasValue = true
	}

	if r, ok := target.(fileDataReceiver); ok {
		r.setFileData(body)
	}

	return nil
}

func contentMediaType(h http.Header) string {
	value := h.Get("Content-Type")
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(value, ";")[0]))
	}
	return mediaType
}

func fileInfoFromHeader(h http.Header) FileInfo {
	info := FileInfo{
		MediaType: ParseMediaType(contentMediaType(h)),
		Size:      -1,
	}

	if cd := h.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			info.FileName = params["filename"]
		}
	}

	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 {
			info.Size = n
		}
	}

	return info
}

// errorMessage extracts the provider's message from an error body.
func errorMessage(body []byte) string {
	var errResp struct {
		Message string        `json:"message"`
		Errors  []ErrorDetail `json:"errors"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}

	if errResp.Message != "" {
		return errResp.Message
	}

	descriptions := make([]string, 0, len(errResp.Errors))
	for _, e := range errResp.Errors {
		if e.Description != "" {
			descriptions = append(descriptions, e.Description)
		}
	}

	return strings.Join(descriptions, "; ")
}

func execute[T any](ctx context.Context, t *Transport, req *Request) (*Result[T], error) {
	res := &Result[T]{}

	resp, err := t.execute(ctx, req)
	if err != nil {
		return res, err
	}

	if err := decode(resp, res); err != nil {
		return res, fmt.Errorf("%s %s: %w", req.method, req.url, err)
	}

	return res, nil
}

func executeList[T any](ctx context.Context, t *Transport, req *Request) (*ListResult[T], error) {
	res := &ListResult[T]{}

	resp, err := t.execute(ctx, req)
	if err != nil {
		return res, err
	}

	if err := decode(resp, &res.Result); err != nil {
		return res, fmt.Errorf("%s %s: %w", req.method, req.url, err)
	}

	if next := t.nextLink(resp.Header()); next != "" {
		res.nextURL = next
		res.transport = t
	}

	return res, nil
}
