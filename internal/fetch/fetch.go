// SPDX-License-Identifier: MIT

// Package fetch is the network retrieval capability used by the resolvers,
// the size estimator and the download engine.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Request describes a single retrieval. Method defaults to GET.
type Request struct {
	URL    string
	Method string
	Header http.Header
}

// Response is a fully buffered reply. Body is empty for HEAD requests.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Text returns the body decoded as text.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// ContentLength returns the declared Content-Length, if present and valid.
func (r *Response) ContentLength() (int64, bool) {
	if r == nil || r.Header == nil {
		return 0, false
	}
	v := r.Header.Get("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Retriever performs requests. Implementations must honour ctx cancellation
// for in-flight requests.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) (*Response, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, req Request) (*Response, error)

// Retrieve implements Retriever.
func (f RetrieverFunc) Retrieve(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// StatusError reports a non-2xx reply.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Status, http.StatusText(e.Status))
}

// ErrStatus matches any *StatusError with errors.Is.
var ErrStatus = errors.New("unexpected http status")

// Is lets errors.Is(err, ErrStatus) match status failures.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Expect2xx turns a non-success response into a *StatusError.
func Expect2xx(resp *Response, url string) error {
	if resp.OK() {
		return nil
	}
	status := 0
	if resp != nil {
		status = resp.Status
	}
	return &StatusError{URL: url, Status: status}
}

// GetText fetches url and returns its body as text, failing on non-2xx.
func GetText(ctx context.Context, r Retriever, url string) (string, error) {
	resp, err := r.Retrieve(ctx, Request{URL: url})
	if err != nil {
		return "", err
	}
	if err := Expect2xx(resp, url); err != nil {
		return "", err
	}
	return resp.Text(), nil
}
