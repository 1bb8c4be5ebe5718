// Package httpc is a small request builder around an http.Client, shared by
// the store clients that talk HTTP.
package httpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
)

type doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a basic http client that can make cReqs with out having to juggle
// the token and so forth. It provides sane defaults for checking response
// statuses, sets auth token when provided, and sets the content type to
// application/json for each request. The token, response checker, and
// content type can be overridden on the Req as well.
type Client struct {
	addr    url.URL
	doer    doer
	headers http.Header

	authFn   func(*http.Request)
	respFn   func(*http.Response) error
	statusFn func(*http.Response) error
}

// New creates a new httpc client.
func New(opts ...ClientOptFn) (*Client, error) {
	opt := clientOpt{
		authFn: func(*http.Request) {},
	}
	for _, o := range opts {
		if err := o(&opt); err != nil {
			return nil, err
		}
	}

	if opt.addr == "" {
		return nil, errors.New("must provide a non empty host address")
	}

	u, err := url.Parse(opt.addr)
	if err != nil {
		return nil, err
	}

	if opt.doer == nil {
		opt.doer = defaultHTTPClient(u.Scheme, opt.insecureSkipVerify)
	}

	return &Client{
		addr:     *u,
		doer:     opt.doer,
		headers:  opt.headers,
		authFn:   opt.authFn,
		statusFn: opt.statusFn,
		respFn:   opt.respFn,
	}, nil
}

// BodyFn provides a writer to which a value will be written to
// that will make it's way into the HTTP request.
type BodyFn func(w io.Writer) (header string, headerVal string, err error)

// BodyJSON JSON encodes the type and writes it to the request body.
func BodyJSON(v interface{}) BodyFn {
	return func(w io.Writer) (string, string, error) {
		return headerContentType, "application/json", json.NewEncoder(w).Encode(v)
	}
}

// BodyRaw writes b to the request body with the given content type.
func BodyRaw(contentType string, b []byte) BodyFn {
	return func(w io.Writer) (string, string, error) {
		_, err := w.Write(b)
		return headerContentType, contentType, err
	}
}

// Delete generates a DELETE request.
func (c *Client) Delete(urlPath ...string) *Req {
	return c.Req(http.MethodDelete, nil, urlPath...)
}

// Get generates a GET request.
func (c *Client) Get(urlPath ...string) *Req {
	return c.Req(http.MethodGet, nil, urlPath...)
}

// Post generates a POST request.
func (c *Client) Post(bFn BodyFn, urlPath ...string) *Req {
	return c.Req(http.MethodPost, bFn, urlPath...)
}

// PostJSON generates a POST request and json encodes the body.
func (c *Client) PostJSON(v interface{}, urlPath ...string) *Req {
	return c.Req(http.MethodPost, BodyJSON(v), urlPath...)
}

// Put generates a PUT request.
func (c *Client) Put(bFn BodyFn, urlPath ...string) *Req {
	return c.Req(http.MethodPut, bFn, urlPath...)
}

// PutJSON generates a PUT request and json encodes the body.
func (c *Client) PutJSON(v interface{}, urlPath ...string) *Req {
	return c.Req(http.MethodPut, BodyJSON(v), urlPath...)
}

// Req constructs a request. Each path segment is escaped on its own, so
// segments may contain slashes.
func (c *Client) Req(method string, bFn BodyFn, urlPath ...string) *Req {
	var body bytes.Buffer
	var headerKey, headerVal string
	if bFn != nil {
		var err error
		headerKey, headerVal, err = bFn(&body)
		if err != nil {
			return &Req{err: err}
		}
	}

	req, err := http.NewRequest(method, c.buildURL(urlPath...), &body)
	if err != nil {
		return &Req{err: err}
	}
	if bFn == nil {
		req.Body = http.NoBody
		req.ContentLength = 0
	}

	cr := &Req{
		client:   c.doer,
		req:      req,
		authFn:   c.authFn,
		respFn:   c.respFn,
		statusFn: c.statusFn,
	}
	for k, vals := range c.headers {
		for _, v := range vals {
			cr.Header(k, v)
		}
	}
	if headerKey != "" {
		cr.req.Header.Set(headerKey, headerVal)
	}

	return cr
}

func (c *Client) buildURL(urlPath ...string) string {
	u := c.addr
	base := strings.TrimSuffix(u.EscapedPath(), "/")
	var raw, plain strings.Builder
	raw.WriteString(base)
	plain.WriteString(strings.TrimSuffix(u.Path, "/"))
	for _, p := range urlPath {
		raw.WriteString("/")
		raw.WriteString(url.PathEscape(p))
		plain.WriteString("/")
		plain.WriteString(p)
	}
	if raw.Len() == 0 {
		raw.WriteString("/")
		plain.WriteString("/")
	}
	u.Path = plain.String()
	u.RawPath = raw.String()
	return u.String()
}
