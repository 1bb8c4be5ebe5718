// Package http implements riakpersist.StoreClient over a node's HTTP
// interface.
package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"
	"github.com/riakpersist/riakpersist"
	"github.com/riakpersist/riakpersist/kit/tracing"
	"github.com/riakpersist/riakpersist/mapreduce"
	"github.com/riakpersist/riakpersist/pkg/httpc"
	"go.uber.org/zap"
)

var _ riakpersist.StoreClient = (*Client)(nil)

// phaselessSince is the first node version able to run map-reduce jobs
// without query phases.
var phaselessSince = [2]int{1, 1}

// Client talks to a single node over HTTP.
type Client struct {
	config Config
	client *httpc.Client
	logger *zap.Logger

	mu            sync.Mutex
	serverVersion string
}

// NewHTTPClient creates a new httpc.Client type. This call sets all
// the options that are important to the http pkg on the httpc client.
// In addition, some options can be specified. Those will be added to the
// defaults.
func NewHTTPClient(config Config, opts ...httpc.ClientOptFn) (*httpc.Client, error) {
	clientID := config.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}

	defaultOpts := []httpc.ClientOptFn{
		httpc.WithAddr(config.Addr()),
		httpc.WithInsecureSkipVerify(config.InsecureSkipVerify),
		httpc.WithHeader("X-Riak-ClientId", clientID),
		httpc.WithStatusFn(CheckError),
	}
	if config.Timeout > 0 {
		defaultOpts = append(defaultOpts, httpc.WithHTTPClient(&http.Client{
			Transport: http.DefaultTransport,
			Timeout:   config.Timeout,
		}))
	}
	if config.Username != "" {
		defaultOpts = append(defaultOpts, httpc.WithBasicAuth(config.Username, config.Password))
	}
	return httpc.New(append(defaultOpts, opts...)...)
}

// NewClient returns a Client for the node described by config.
func NewClient(logger *zap.Logger, config Config, opts ...httpc.ClientOptFn) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := NewHTTPClient(config, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		config:        config,
		client:        client,
		logger:        logger,
		serverVersion: config.ServerVersion,
	}, nil
}

// Fetch retrieves the object at bucket/key. It returns nil, nil when the
// node answers 404. Indexes come back as a mapping of name to values.
func (c *Client) Fetch(ctx context.Context, bucket, key string) (*riakpersist.FetchResult, error) {
	span, ctx := tracing.StartObjectSpan(ctx, "http.Client.Fetch", bucket, key)
	defer span.Finish()

	var result *riakpersist.FetchResult
	err := c.client.
		Get(c.config.Prefix, bucket, key).
		StatusFn(func(resp *http.Response) error {
			if resp.StatusCode == http.StatusNotFound {
				return nil
			}
			return CheckError(resp)
		}).
		RespFn(func(resp *http.Response) error {
			if resp.StatusCode == http.StatusNotFound {
				return nil
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			result = &riakpersist.FetchResult{
				Metadata: riakpersist.Metadata{
					ContentType: resp.Header.Get("Content-Type"),
					Index:       indexesFromHeader(resp.Header),
				},
				Data: body,
			}
			return nil
		}).
		Do(ctx)
	if err != nil {
		return nil, tracing.LogError(span, err)
	}
	return result, nil
}

// Put writes content at bucket/key, replacing its indexes.
func (c *Client) Put(ctx context.Context, bucket, key string, content riakpersist.Content) error {
	span, ctx := tracing.StartObjectSpan(ctx, "http.Client.Put", bucket, key)
	defer span.Finish()

	err := c.client.
		Put(httpc.BodyRaw(content.ContentType, content.Body), c.config.Prefix, bucket, key).
		QueryParams([2]string{"returnbody", "false"}).
		Headers(indexHeaders(content.Indexes)).
		Do(ctx)
	return tracing.LogError(span, err)
}

// Delete removes bucket/key. A 404 is not an error.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	span, ctx := tracing.StartObjectSpan(ctx, "http.Client.Delete", bucket, key)
	defer span.Finish()

	err := c.client.
		Delete(c.config.Prefix, bucket, key).
		StatusFn(func(resp *http.Response) error {
			if resp.StatusCode == http.StatusNotFound {
				return nil
			}
			return CheckError(resp)
		}).
		Do(ctx)
	return tracing.LogError(span, err)
}

// ListBuckets returns the names of the buckets of the node.
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	span, ctx := tracing.StartObjectSpan(ctx, "http.Client.ListBuckets", "", "")
	defer span.Finish()

	var resp struct {
		Buckets []string `json:"buckets"`
	}
	err := c.client.
		Get(c.config.Prefix).
		QueryParams([2]string{"buckets", "true"}).
		Accept("application/json").
		DecodeJSON(&resp).
		Do(ctx)
	if err != nil {
		return nil, tracing.LogError(span, err)
	}
	if resp.Buckets == nil {
		resp.Buckets = []string{}
	}
	return resp.Buckets, nil
}

// ListKeys returns the keys of bucket.
func (c *Client) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	span, ctx := tracing.StartObjectSpan(ctx, "http.Client.ListKeys", bucket, "")
	defer span.Finish()

	var resp struct {
		Keys []string `json:"keys"`
	}
	err := c.client.
		Get(c.config.Prefix, bucket).
		QueryParams([2]string{"keys", "true"}, [2]string{"props", "false"}).
		Accept("application/json").
		DecodeJSON(&resp).
		Do(ctx)
	if err != nil {
		return nil, tracing.LogError(span, err)
	}
	if resp.Keys == nil {
		resp.Keys = []string{}
	}
	return resp.Keys, nil
}

// SetBucketProperties sets props on bucket.
func (c *Client) SetBucketProperties(ctx context.Context, bucket string, props map[string]interface{}) error {
	span, ctx := tracing.StartObjectSpan(ctx, "http.Client.SetBucketProperties", bucket, "")
	defer span.Finish()

	body := map[string]interface{}{"props": props}
	err := c.client.
		PutJSON(body, c.config.Prefix, bucket).
		Do(ctx)
	return tracing.LogError(span, err)
}

// MapReduce submits job. Jobs without query phases are rejected before any
// request when the node cannot run them.
func (c *Client) MapReduce(ctx context.Context, job *riakpersist.MapReduceJob) ([]interface{}, error) {
	span, ctx := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	if len(job.Query) == 0 {
		ok, err := c.SupportsPhaseless(ctx)
		if err != nil {
			return nil, tracing.LogError(span, err)
		}
		if !ok {
			return nil, tracing.LogError(span, riakpersist.ErrPhaselessUnsupported)
		}
	}

	req := c.client.PostJSON(job, c.config.MapRedPrefix)
	if c.config.StreamingMapReduce {
		req = req.QueryParams([2]string{"chunked", "true"})
	}

	var rows []interface{}
	err := req.
		StatusFn(nil).
		RespFn(func(resp *http.Response) error {
			var err error
			rows, err = mapreduce.DecodeResponse(resp)
			return err
		}).
		Do(ctx)
	if err != nil {
		return nil, tracing.LogError(span, err)
	}
	return rows, nil
}

// Ping checks the node is reachable.
func (c *Client) Ping(ctx context.Context) error {
	span, ctx := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	return tracing.LogError(span, c.client.Get("ping").Do(ctx))
}

// ServerVersion returns the riak_kv version of the node. It is read from
// the configuration or probed once from /stats.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.serverVersion != "" {
		return c.serverVersion, nil
	}

	var version string
	err := c.client.
		Get("stats").
		Accept("application/json").
		RespFn(func(resp *http.Response) error {
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			version, err = jsonparser.GetString(body, "riak_kv_version")
			return err
		}).
		Do(ctx)
	if err != nil {
		return "", &riakpersist.Error{
			Code: riakpersist.EUnavailable,
			Op:   "http/Client.ServerVersion",
			Msg:  "unable to determine the node version",
			Err:  err,
		}
	}
	c.logger.Debug("Probed node version", zap.String("version", version))
	c.serverVersion = version
	return version, nil
}

// SupportsPhaseless reports whether the node can run map-reduce jobs that
// have no query phases.
func (c *Client) SupportsPhaseless(ctx context.Context) (bool, error) {
	version, err := c.ServerVersion(ctx)
	if err != nil {
		return false, err
	}
	major, minor, ok := parseVersion(version)
	if !ok {
		return false, nil
	}
	if major != phaselessSince[0] {
		return major > phaselessSince[0], nil
	}
	return minor >= phaselessSince[1], nil
}

// parseVersion reads the major and minor numbers of versions such as
// "1.4.2" or "2.0.0-rc1".
func parseVersion(v string) (major, minor int, ok bool) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minorPart := parts[1]
	if i := strings.IndexFunc(minorPart, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minorPart = minorPart[:i]
	}
	minor, err = strconv.Atoi(minorPart)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
