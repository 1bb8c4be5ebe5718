package inmem

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/riakpersist/riakpersist"
)

var _ riakpersist.StoreClient = (*Client)(nil)

// MapReduceFunc runs a map-reduce job against the in-memory store.
type MapReduceFunc func(ctx context.Context, c *Client, job *riakpersist.MapReduceJob) ([]interface{}, error)

// Client is an in memory btree backed riakpersist.StoreClient.
type Client struct {
	mu      sync.RWMutex
	buckets map[string]*btree.BTree
	props   map[string]map[string]interface{}

	// MapReduceFn, when set, executes map-reduce jobs.
	MapReduceFn MapReduceFunc
}

// NewClient creates an instance of a Client.
func NewClient() *Client {
	return &Client{
		buckets: map[string]*btree.BTree{},
		props:   map[string]map[string]interface{}{},
	}
}

type item struct {
	key     []byte
	content riakpersist.Content
}

// Less is used to implement btree.Item.
func (i *item) Less(b btree.Item) bool {
	j, ok := b.(*item)
	if !ok {
		return false
	}

	return bytes.Compare(i.key, j.key) < 0
}

// Fetch retrieves the object at bucket/key. Indexes come back as a list of
// pairs.
func (c *Client) Fetch(ctx context.Context, bucket, key string) (*riakpersist.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	bkt, ok := c.buckets[bucket]
	if !ok {
		return nil, nil
	}
	i := bkt.Get(&item{key: []byte(key)})
	if i == nil {
		return nil, nil
	}
	j, ok := i.(*item)
	if !ok {
		return nil, fmt.Errorf("error item is type %T not *item", i)
	}

	pairs := make([][2]string, 0, len(j.content.Indexes))
	for _, e := range j.content.Indexes {
		pairs = append(pairs, [2]string{e.Name, e.Value})
	}
	return &riakpersist.FetchResult{
		Metadata: riakpersist.Metadata{
			ContentType: j.content.ContentType,
			Index:       pairs,
		},
		Data: append([]byte(nil), j.content.Body...),
	}, nil
}

// Put sets the object at bucket/key.
func (c *Client) Put(ctx context.Context, bucket, key string, content riakpersist.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bkt, ok := c.buckets[bucket]
	if !ok {
		bkt = btree.New(2)
		c.buckets[bucket] = bkt
	}
	stored := riakpersist.Content{
		ContentType: content.ContentType,
		Indexes:     append(riakpersist.Indexes{}, content.Indexes...),
		Body:        append([]byte(nil), content.Body...),
	}
	_ = bkt.ReplaceOrInsert(&item{key: []byte(key), content: stored})
	return nil
}

// Delete removes bucket/key. Buckets left empty disappear from listings.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bkt, ok := c.buckets[bucket]
	if !ok {
		return nil
	}
	_ = bkt.Delete(&item{key: []byte(key)})
	if bkt.Len() == 0 {
		delete(c.buckets, bucket)
	}
	return nil
}

// ListBuckets returns the sorted names of the buckets holding keys.
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.buckets))
	for name := range c.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListKeys returns the keys of bucket in order.
func (c *Client) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := []string{}
	bkt, ok := c.buckets[bucket]
	if !ok {
		return keys, nil
	}
	var err error
	bkt.Ascend(func(i btree.Item) bool {
		j, ok := i.(*item)
		if !ok {
			err = fmt.Errorf("error item is type %T not *item", i)
			return false
		}
		keys = append(keys, string(j.key))
		return true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// SetBucketProperties merges props into the properties of bucket.
func (c *Client) SetBucketProperties(ctx context.Context, bucket string, props map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.props[bucket]
	if !ok {
		p = map[string]interface{}{}
		c.props[bucket] = p
	}
	for k, v := range props {
		p[k] = v
	}
	return nil
}

// BucketProperties returns a copy of the properties set on bucket.
func (c *Client) BucketProperties(bucket string) map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := map[string]interface{}{}
	for k, v := range c.props[bucket] {
		out[k] = v
	}
	return out
}

// MapReduce runs job through MapReduceFn.
func (c *Client) MapReduce(ctx context.Context, job *riakpersist.MapReduceJob) ([]interface{}, error) {
	if c.MapReduceFn == nil {
		return nil, &riakpersist.Error{
			Code: riakpersist.ENotImplemented,
			Op:   "inmem/Client.MapReduce",
			Msg:  "map-reduce is not supported by the in-memory store",
		}
	}
	if len(job.Query) == 0 {
		return nil, riakpersist.ErrPhaselessUnsupported
	}
	return c.MapReduceFn(ctx, c, job)
}
