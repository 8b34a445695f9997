package client

import (
	"context"
	"net/http"
)

// Next fetches the page linked by the server. When there is no next page it
// returns an empty result without a value and a nil error, and performs no
// request.
//
// The continuation URL comes solely from the server's Link header; Next
// never builds URLs itself.
func (r *ListResult[T]) Next(ctx context.Context) (*ListResult[T], error) {
	if !r.HasNext() {
		return &ListResult[T]{}, nil
	}

	req, err := NewRequest(http.MethodGet, r.nextURL)
	if err != nil {
		return &ListResult[T]{}, err
	}

	res, err := executeList[T](ctx, r.transport, req)
	if err != nil {
		return res, err
	}

	res.expectStatus(http.StatusOK)

	return res, nil
}
