package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	newClient := func(t *testing.T, status int, opts ...ClientOptFn) (*Client, *fakeDoer) {
		t.Helper()
		fd := &fakeDoer{
			doFn: func(r *http.Request) (*http.Response, error) {
				return stubRespNJSONBody(status, r)
			},
		}
		client, err := New(append(opts, WithAddr("http://example.com"), withDoer(fd))...)
		require.NoError(t, err)
		return client, fd
	}

	t.Run("Get with query params", func(t *testing.T) {
		client, fd := newClient(t, 200)

		var actual echoResp
		err := client.Get("riak", "users").
			Accept("application/json").
			Header("X-Code", "Code").
			QueryParams([2]string{"keys", "true"}, [2]string{"props", "false"}).
			StatusFn(StatusIn(200)).
			DecodeJSON(&actual).
			Do(context.TODO())
		require.NoError(t, err)

		assert.Equal(t, echoResp{
			Method:  "GET",
			Scheme:  "http",
			Host:    "example.com",
			Path:    "/riak/users",
			Queries: [][2]string{{"keys", "true"}, {"props", "false"}},
		}, actual)
		require.Len(t, fd.args, 1)
		assert.Equal(t, "application/json", fd.args[0].Header.Get("Accept"))
		assert.Equal(t, "Code", fd.args[0].Header.Get("X-Code"))
	})

	t.Run("segments are escaped", func(t *testing.T) {
		client, fd := newClient(t, 200)

		err := client.Get("riak", "a/b", "key with space").Do(context.TODO())
		require.NoError(t, err)
		require.Len(t, fd.args, 1)
		assert.Equal(t, "/riak/a%2Fb/key%20with%20space", fd.args[0].URL.EscapedPath())
	})

	t.Run("Delete", func(t *testing.T) {
		fd := &fakeDoer{doFn: func(r *http.Request) (*http.Response, error) { return stubResp(204, r) }}
		client, err := New(WithAddr("http://example.com"), withDoer(fd))
		require.NoError(t, err)

		err = client.Delete("riak", "users", "u1").
			StatusFn(StatusIn(204, 404)).
			Do(context.TODO())
		require.NoError(t, err)
		require.Len(t, fd.args, 1)
		assert.Equal(t, http.MethodDelete, fd.args[0].Method)
	})

	methods := []struct {
		name         string
		methodCallFn func(client *Client, v interface{}) *Req
	}{
		{
			name: "POST",
			methodCallFn: func(client *Client, v interface{}) *Req {
				return client.PostJSON(v, "mapred")
			},
		},
		{
			name: "PUT",
			methodCallFn: func(client *Client, v interface{}) *Req {
				return client.PutJSON(v, "mapred")
			},
		},
	}
	for _, method := range methods {
		t.Run(method.name+" json body", func(t *testing.T) {
			client, _ := newClient(t, 201)

			body := reqBody{Foo: "foo 1", Bar: 31}
			var actual echoResp
			err := method.methodCallFn(client, body).
				StatusFn(StatusIn(201)).
				DecodeJSON(&actual).
				Do(context.TODO())
			require.NoError(t, err)
			assert.Equal(t, method.name, actual.Method)
			assert.Equal(t, body, actual.ReqBody)
		})
	}

	t.Run("raw body", func(t *testing.T) {
		var got []byte
		fd := &fakeDoer{doFn: func(r *http.Request) (*http.Response, error) {
			got, _ = io.ReadAll(r.Body)
			assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
			return stubResp(204, r)
		}}
		client, err := New(WithAddr("http://example.com"), withDoer(fd))
		require.NoError(t, err)

		require.NoError(t, client.Put(BodyRaw("text/plain", []byte("hi")), "x").Do(context.TODO()))
		assert.Equal(t, "hi", string(got))
	})

	t.Run("unexpected status", func(t *testing.T) {
		fd := &fakeDoer{doFn: func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: 503,
				Body:       io.NopCloser(bytes.NewBufferString("overloaded")),
			}, nil
		}}
		client, err := New(WithAddr("http://example.com"), withDoer(fd), WithStatusFn(StatusIn(200)))
		require.NoError(t, err)

		err = client.Get("ping").Do(context.TODO())
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, 503, statusErr.StatusCode)
		assert.Equal(t, "overloaded", string(statusErr.Body))
	})

	t.Run("default headers and auth", func(t *testing.T) {
		fd := &fakeDoer{doFn: func(r *http.Request) (*http.Response, error) { return stubResp(200, r) }}
		client, err := New(
			WithAddr("http://example.com"),
			withDoer(fd),
			WithHeader("X-Riak-ClientId", "abc"),
			WithBasicAuth("user", "pass"),
		)
		require.NoError(t, err)

		require.NoError(t, client.Get("stats").Do(context.TODO()))
		require.Len(t, fd.args, 1)
		assert.Equal(t, "abc", fd.args[0].Header.Get("X-Riak-ClientId"))
		user, pass, ok := fd.args[0].BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "pass", pass)
	})

	t.Run("resp fn sees the body", func(t *testing.T) {
		fd := &fakeDoer{doFn: func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewBufferString("pong"))}, nil
		}}
		client, err := New(WithAddr("http://example.com"), withDoer(fd))
		require.NoError(t, err)

		var got string
		err = client.Get("ping").RespFn(func(resp *http.Response) error {
			b, err := io.ReadAll(resp.Body)
			got = string(b)
			return err
		}).Do(context.TODO())
		require.NoError(t, err)
		assert.Equal(t, "pong", got)
	})

	t.Run("default content type yields to the body", func(t *testing.T) {
		fd := &fakeDoer{doFn: func(r *http.Request) (*http.Response, error) { return stubResp(200, r) }}
		client, err := New(WithAddr("http://example.com"), withDoer(fd), WithContentType("text/plain"))
		require.NoError(t, err)

		require.NoError(t, client.Delete("buckets", "users", "keys", "u1").Do(context.TODO()))
		require.NoError(t, client.PutJSON(map[string]int{"n": 1}, "buckets", "users", "keys", "u1").Do(context.TODO()))
		require.Len(t, fd.args, 2)
		assert.Equal(t, "text/plain", fd.args[0].Header.Get("Content-Type"))
		assert.Equal(t, []string{"application/json"}, fd.args[1].Header.Values("Content-Type"))
	})

	t.Run("default resp fn", func(t *testing.T) {
		fd := &fakeDoer{doFn: func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewBufferString("OK"))}, nil
		}}
		var calls []string
		client, err := New(WithAddr("http://example.com"), withDoer(fd), WithRespFn(func(resp *http.Response) error {
			b, err := io.ReadAll(resp.Body)
			calls = append(calls, "default:"+string(b))
			return err
		}))
		require.NoError(t, err)

		require.NoError(t, client.Get("ping").Do(context.TODO()))
		require.NoError(t, client.Get("ping").RespFn(func(*http.Response) error {
			calls = append(calls, "override")
			return nil
		}).Do(context.TODO()))
		assert.Equal(t, []string{"default:OK", "override"}, calls)
	})

	t.Run("requires an address", func(t *testing.T) {
		_, err := New()
		require.Error(t, err)
	})
}

type fakeDoer struct {
	doFn      func(*http.Request) (*http.Response, error)
	args      []*http.Request
	callCount int
}

func (f *fakeDoer) Do(r *http.Request) (*http.Response, error) {
	f.callCount++
	f.args = append(f.args, r)
	return f.doFn(r)
}

func stubResp(status int, _ *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(new(bytes.Buffer)),
	}, nil
}

func stubRespNJSONBody(status int, r *http.Request) (*http.Response, error) {
	e, err := decodeFromContentType(r)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}

	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(&buf),
		Header:     http.Header{headerContentType: []string{"application/json"}},
	}, nil
}

type (
	reqBody struct {
		Foo string
		Bar int
	}

	echoResp struct {
		Method  string
		Scheme  string
		Host    string
		Path    string
		Queries [][2]string

		ReqBody reqBody
	}
)

func decodeFromContentType(r *http.Request) (echoResp, error) {
	e := echoResp{
		Method: r.Method,
		Scheme: r.URL.Scheme,
		Host:   r.URL.Host,
		Path:   r.URL.Path,
	}
	for key, vals := range r.URL.Query() {
		for _, v := range vals {
			e.Queries = append(e.Queries, [2]string{key, v})
		}
	}
	sort.Slice(e.Queries, func(i, j int) bool {
		qi, qj := e.Queries[i], e.Queries[j]
		if qi[0] == qj[0] {
			return qi[1] < qj[1]
		}
		return qi[0] < qj[0]
	})

	if r.Header.Get(headerContentType) == "application/json" {
		return e, json.NewDecoder(r.Body).Decode(&e.ReqBody)
	}

	return e, nil
}
