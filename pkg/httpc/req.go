package httpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/riakpersist/riakpersist/kit/tracing"
	"go.uber.org/multierr"
)

// StatusError is returned by the status check of a request when the response
// status is not one of the expected ones.
type StatusError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody is the most of an unexpected response body kept in a
// StatusError.
const maxErrorBody = 64 << 10

// StatusIn validates the response code of a request is one of the provided
// codes.
func StatusIn(code int, rest ...int) func(*http.Response) error {
	return func(resp *http.Response) error {
		for _, c := range append(rest, code) {
			if c == resp.StatusCode {
				return nil
			}
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}
	}
}

// Req is a request type.
type Req struct {
	client doer
	req    *http.Request

	authFn   func(*http.Request)
	decodeFn func(*http.Response) error
	respFn   func(*http.Response) error
	statusFn func(*http.Response) error

	err error
}

// Accept sets the Accept header to the provided content type on the request.
func (r *Req) Accept(contentType string) *Req {
	return r.Header(headerAccept, contentType)
}

// Header adds the header to the http request.
func (r *Req) Header(k, v string) *Req {
	if r.err != nil {
		return r
	}
	r.req.Header.Add(k, v)
	return r
}

// Headers adds all the headers to the http request.
func (r *Req) Headers(m map[string][]string) *Req {
	if r.err != nil {
		return r
	}
	for header, vals := range m {
		for _, v := range vals {
			r.Header(header, v)
		}
	}
	return r
}

// QueryParams adds the query params to the http request.
func (r *Req) QueryParams(pairs ...[2]string) *Req {
	if r.err != nil || len(pairs) == 0 {
		return r
	}
	params := r.req.URL.Query()
	for _, p := range pairs {
		params.Add(p[0], p[1])
	}
	r.req.URL.RawQuery = params.Encode()
	return r
}

// DecodeJSON sets the decoding of the response body to json.
func (r *Req) DecodeJSON(v interface{}) *Req {
	r.decodeFn = func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return r
}

// RespFn provides a means to intercept the entire response. The response
// body is closed once fn returns.
func (r *Req) RespFn(fn func(*http.Response) error) *Req {
	r.respFn = fn
	return r
}

// StatusFn sets a status check function. This will run before the response
// is decoded.
func (r *Req) StatusFn(fn func(*http.Response) error) *Req {
	r.statusFn = fn
	return r
}

// Do makes the HTTP request. Any errors that had been encountered in
// the lifetime of the Req type will be returned here first, in place of
// the call. This makes it safe to call Do at anytime.
func (r *Req) Do(ctx context.Context) (err error) {
	if r.err != nil {
		return r.err
	}

	r.authFn(r.req)
	if span := opentracing.SpanFromContext(ctx); span != nil {
		tracing.InjectToHTTPRequest(span, r.req)
	}

	resp, err := r.client.Do(r.req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer func() {
		// drain the body so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		err = multierr.Append(err, resp.Body.Close())
	}()

	if r.statusFn != nil {
		if err := r.statusFn(resp); err != nil {
			return err
		}
	}

	if r.decodeFn != nil {
		if err := r.decodeFn(resp); err != nil {
			return err
		}
	}

	if r.respFn != nil {
		return r.respFn(resp)
	}
	return nil
}
