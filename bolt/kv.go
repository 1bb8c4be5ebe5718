package bolt

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/riakpersist/riakpersist"
	"github.com/riakpersist/riakpersist/kit/tracing"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var _ riakpersist.StoreClient = (*Client)(nil)

// reservedPrefix marks bolt buckets used for bookkeeping. They are never
// listed as store buckets.
const reservedPrefix = "\x00"

var propsBucket = []byte(reservedPrefix + "bucket-props")

// Config configures the embedded store.
type Config struct {
	Path    string        `toml:"path" yaml:"path" json:"path"`
	Timeout time.Duration `toml:"timeout" yaml:"timeout" json:"timeout"`
	NoSync  bool          `toml:"no-sync" yaml:"no-sync" json:"no-sync"`
}

// NewConfig returns a Config with defaults.
func NewConfig() Config {
	return Config{
		Path:    "riakpersist.bolt",
		Timeout: time.Second,
	}
}

// Client is a riakpersist.StoreClient backed by a single boltdb file. It is
// meant for single node deployments and development; it cannot run
// map-reduce jobs.
type Client struct {
	config Config
	db     *bolt.DB
	logger *zap.Logger
}

// NewClient returns an instance of Client for the file in config.
func NewClient(logger *zap.Logger, config Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config: config,
		logger: logger,
	}
}

// record is the envelope a stored object is kept in.
type record struct {
	ContentType string              `json:"content_type"`
	Index       map[string][]string `json:"index"`
	Data        []byte              `json:"data"`
}

// Open creates the boltdb file if it doesn't exist and opens it otherwise.
func (c *Client) Open(ctx context.Context) error {
	span, _ := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	// Ensure the required directory structure exists.
	if err := os.MkdirAll(filepath.Dir(c.config.Path), 0700); err != nil {
		return errors.Wrapf(err, "unable to create directory %s", c.config.Path)
	}

	timeout := c.config.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(c.config.Path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return errors.Wrap(err, "unable to open boltdb file")
	}
	db.NoSync = c.config.NoSync

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(propsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return errors.Wrap(err, "unable to initialize boltdb")
	}
	c.db = db

	c.logger.Info("Resources opened", zap.String("path", c.config.Path))
	return nil
}

// Close the connection to the bolt database.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// checkOpen fails when Open has not succeeded yet.
func (c *Client) checkOpen(op string) error {
	if c.db == nil {
		return &riakpersist.Error{
			Code: riakpersist.EUnavailable,
			Op:   op,
			Msg:  "bolt store is not open",
		}
	}
	return nil
}

func checkBucketName(bucket string) error {
	if bucket == "" || strings.HasPrefix(bucket, reservedPrefix) {
		return &riakpersist.Error{
			Code: riakpersist.EInvalid,
			Msg:  "invalid bucket name",
		}
	}
	return nil
}

// Fetch retrieves the object at bucket/key. Indexes come back as a mapping
// of name to values.
func (c *Client) Fetch(ctx context.Context, bucket, key string) (*riakpersist.FetchResult, error) {
	span, _ := tracing.StartObjectSpan(ctx, "bolt.Client.Fetch", bucket, key)
	defer span.Finish()

	if err := checkBucketName(bucket); err != nil {
		return nil, err
	}
	if err := c.checkOpen("bolt/Client.Fetch"); err != nil {
		return nil, err
	}

	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s/%s", bucket, key)
	}
	if raw == nil {
		return nil, nil
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &riakpersist.Error{
			Code: riakpersist.EInternal,
			Op:   "bolt/Client.Fetch",
			Msg:  "corrupt record envelope",
			Err:  err,
		}
	}
	index := make(map[string]interface{}, len(rec.Index))
	for name, vals := range rec.Index {
		list := make([]interface{}, len(vals))
		for i, v := range vals {
			list[i] = v
		}
		index[name] = list
	}
	return &riakpersist.FetchResult{
		Metadata: riakpersist.Metadata{ContentType: rec.ContentType, Index: index},
		Data:     rec.Data,
	}, nil
}

// Put writes content at bucket/key.
func (c *Client) Put(ctx context.Context, bucket, key string, content riakpersist.Content) error {
	span, _ := tracing.StartObjectSpan(ctx, "bolt.Client.Put", bucket, key)
	defer span.Finish()

	if err := checkBucketName(bucket); err != nil {
		return err
	}
	if err := c.checkOpen("bolt/Client.Put"); err != nil {
		return err
	}

	rec := record{
		ContentType: content.ContentType,
		Index:       map[string][]string{},
		Data:        content.Body,
	}
	for _, e := range content.Indexes {
		rec.Index[e.Name] = append(rec.Index[e.Name], e.Value)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode record envelope")
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), raw)
	})
	return errors.Wrapf(err, "put %s/%s", bucket, key)
}

// Delete removes bucket/key.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	span, _ := tracing.StartObjectSpan(ctx, "bolt.Client.Delete", bucket, key)
	defer span.Finish()

	if err := checkBucketName(bucket); err != nil {
		return err
	}
	if err := c.checkOpen("bolt/Client.Delete"); err != nil {
		return err
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	return errors.Wrapf(err, "delete %s/%s", bucket, key)
}

// ListBuckets returns the names of the buckets holding at least one key.
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	span, _ := tracing.StartObjectSpan(ctx, "bolt.Client.ListBuckets", "", "")
	defer span.Finish()

	if err := c.checkOpen("bolt/Client.ListBuckets"); err != nil {
		return nil, err
	}

	names := []string{}
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if strings.HasPrefix(string(name), reservedPrefix) {
				return nil
			}
			if k, _ := b.Cursor().First(); k != nil {
				names = append(names, string(name))
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "list buckets")
	}
	return names, nil
}

// ListKeys returns the keys of bucket.
func (c *Client) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	span, _ := tracing.StartObjectSpan(ctx, "bolt.Client.ListKeys", bucket, "")
	defer span.Finish()

	if err := checkBucketName(bucket); err != nil {
		return nil, err
	}
	if err := c.checkOpen("bolt/Client.ListKeys"); err != nil {
		return nil, err
	}

	keys := []string{}
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list keys of %s", bucket)
	}
	return keys, nil
}

// SetBucketProperties merges props into the stored properties of bucket.
func (c *Client) SetBucketProperties(ctx context.Context, bucket string, props map[string]interface{}) error {
	if err := checkBucketName(bucket); err != nil {
		return err
	}
	if err := c.checkOpen("bolt/Client.SetBucketProperties"); err != nil {
		return err
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(propsBucket)
		current := map[string]interface{}{}
		if v := b.Get([]byte(bucket)); v != nil {
			if err := json.Unmarshal(v, &current); err != nil {
				return err
			}
		}
		for k, v := range props {
			current[k] = v
		}
		raw, err := json.Marshal(current)
		if err != nil {
			return err
		}
		return b.Put([]byte(bucket), raw)
	})
	return errors.Wrapf(err, "set properties of %s", bucket)
}

// BucketProperties returns the stored properties of bucket.
func (c *Client) BucketProperties(ctx context.Context, bucket string) (map[string]interface{}, error) {
	if err := c.checkOpen("bolt/Client.BucketProperties"); err != nil {
		return nil, err
	}

	props := map[string]interface{}{}
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(propsBucket).Get([]byte(bucket)); v != nil {
			return json.Unmarshal(v, &props)
		}
		return nil
	})
	return props, errors.Wrapf(err, "properties of %s", bucket)
}

// MapReduce is not supported by the embedded store.
func (c *Client) MapReduce(ctx context.Context, job *riakpersist.MapReduceJob) ([]interface{}, error) {
	return nil, &riakpersist.Error{
		Code: riakpersist.ENotImplemented,
		Op:   "bolt/Client.MapReduce",
		Msg:  "map-reduce is not supported by the embedded store",
	}
}
