// Package kv implements the persistence manager on top of a
// riakpersist.StoreClient.
package kv

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/riakpersist/riakpersist"
	"github.com/riakpersist/riakpersist/kit/tracing"
	"github.com/riakpersist/riakpersist/migration"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var _ riakpersist.Manager = (*Manager)(nil)

// OpPrefix is the prefix for kv errors.
const OpPrefix = "kv/"

// Manager stores, loads and deletes versioned objects through a store
// client, migrating stale objects forward as they are loaded.
//
// A Manager holds no mutable state besides its metrics. It is safe for
// concurrent use when its client is.
type Manager struct {
	client riakpersist.StoreClient
	config Config
	log    *zap.Logger
	engine *migration.Engine

	metrics *metrics

	// Clock times map-reduce jobs.
	Clock clock.Clock
}

// NewManager returns a Manager over client. The first config given is used;
// NewConfig defaults apply otherwise.
func NewManager(log *zap.Logger, client riakpersist.StoreClient, configs ...Config) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	config := NewConfig()
	if len(configs) > 0 {
		config = configs[0]
	}
	config = config.withDefaults()

	engine := migration.NewEngine(log.With(zap.String("component", "migration")))
	engine.MaxSteps = config.MaxMigrationSteps

	return &Manager{
		client:  client,
		config:  config,
		log:     log,
		engine:  engine,
		metrics: newMetrics(),
		Clock:   clock.New(),
	}
}

// Config returns the configuration of the manager.
func (m *Manager) Config() Config {
	return m.config
}

// Client returns the store client of the manager.
func (m *Manager) Client() riakpersist.StoreClient {
	return m.client
}

// SubManager returns a manager sharing this one's client, metrics and
// configuration, whose buckets are further namespaced by subPrefix.
func (m *Manager) SubManager(subPrefix string) *Manager {
	config := m.config
	config.BucketPrefix += subPrefix

	engine := migration.NewEngine(m.engine.Logger)
	engine.MaxSteps = m.engine.MaxSteps

	return &Manager{
		client:  m.client,
		config:  config,
		log:     m.log.With(zap.String("bucket_prefix", config.BucketPrefix)),
		engine:  engine,
		metrics: m.metrics,
		Clock:   m.Clock,
	}
}

// BucketFor returns the bucket holding objects of typ.
func (m *Manager) BucketFor(typ riakpersist.ModelType) string {
	return m.config.BucketPrefix + typ.BucketName()
}

// New returns a fresh record of typ at its current version. It is not
// persisted until saved.
func (m *Manager) New(typ riakpersist.ModelType, key string) *riakpersist.Record {
	obj := riakpersist.NewStoredObject(m.BucketFor(typ), key, typ.Version())
	return riakpersist.NewRecord(m, typ, obj)
}

// Store writes the stored object of rec as-is and returns rec.
func (m *Manager) Store(ctx context.Context, rec *riakpersist.Record) (*riakpersist.Record, error) {
	bucket := m.recordBucket(rec)
	span, ctx := tracing.StartObjectSpan(ctx, "kv.Manager.Store", bucket, rec.Key)
	defer span.Finish()

	content, err := rec.Stored.Encode()
	if err != nil {
		return nil, tracing.LogError(span, err)
	}
	if err := m.client.Put(ctx, bucket, rec.Key, content); err != nil {
		return nil, tracing.LogError(span, err)
	}
	m.metrics.stores.WithLabelValues(bucket).Inc()
	return rec, nil
}

// Delete removes the key of rec. Removing an absent key is not an error.
func (m *Manager) Delete(ctx context.Context, rec *riakpersist.Record) error {
	bucket := m.recordBucket(rec)
	span, ctx := tracing.StartObjectSpan(ctx, "kv.Manager.Delete", bucket, rec.Key)
	defer span.Finish()

	if err := m.client.Delete(ctx, bucket, rec.Key); err != nil {
		return tracing.LogError(span, err)
	}
	m.metrics.deletes.WithLabelValues(bucket).Inc()
	return nil
}

func (m *Manager) recordBucket(rec *riakpersist.Record) string {
	if rec.Stored != nil && rec.Stored.Bucket != "" {
		return rec.Stored.Bucket
	}
	return m.BucketFor(rec.Type)
}

// Load fetches key and migrates it to the current version of typ. It
// returns nil, nil when the key does not exist or a migration drops it.
func (m *Manager) Load(ctx context.Context, typ riakpersist.ModelType, key string) (*riakpersist.Record, error) {
	return m.LoadResult(ctx, typ, key, nil)
}

// LoadResult is Load with an already fetched raw result. A nil result is
// fetched from the store.
func (m *Manager) LoadResult(ctx context.Context, typ riakpersist.ModelType, key string, result *riakpersist.FetchResult) (*riakpersist.Record, error) {
	bucket := m.BucketFor(typ)
	span, ctx := tracing.StartObjectSpan(ctx, "kv.Manager.Load", bucket, key)
	defer span.Finish()

	if result == nil {
		var err error
		result, err = m.client.Fetch(ctx, bucket, key)
		if err != nil {
			return nil, tracing.LogError(span, err)
		}
		m.metrics.loads.WithLabelValues(bucket).Inc()
	}

	obj, err := riakpersist.DecodeStoredObject(bucket, key, result)
	if err != nil {
		return nil, tracing.LogError(span, err)
	}
	if !obj.Exists() {
		m.metrics.loadMisses.WithLabelValues(bucket).Inc()
		return nil, nil
	}

	migrated, steps, err := m.engine.Migrate(ctx, m, typ, obj)
	if steps > 0 {
		m.metrics.migrations.WithLabelValues(bucket).Add(float64(steps))
	}
	if err != nil {
		return nil, tracing.LogError(span, err)
	}
	if migrated == nil {
		m.metrics.loadMisses.WithLabelValues(bucket).Inc()
		return nil, nil
	}
	return riakpersist.NewRecord(m, typ, migrated), nil
}

// LoadMultiple loads keys, omitting the missing ones. Records come back in
// the order of keys. At most LoadBunchSize fetches are in flight; the first
// error cancels the rest.
func (m *Manager) LoadMultiple(ctx context.Context, typ riakpersist.ModelType, keys []string) ([]*riakpersist.Record, error) {
	span, ctx := tracing.StartObjectSpan(ctx, "kv.Manager.LoadMultiple", m.BucketFor(typ), "")
	defer span.Finish()
	span.SetTag("keys", len(keys))

	loaded := make([]*riakpersist.Record, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.LoadBunchSize)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			rec, err := m.Load(ctx, typ, key)
			if err != nil {
				return err
			}
			loaded[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, tracing.LogError(span, err)
	}

	recs := make([]*riakpersist.Record, 0, len(keys))
	for _, rec := range loaded {
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// LoadAllBunches loads keys in bunches of LoadBunchSize and hands each
// loaded bunch to fn, stopping at the first error.
func (m *Manager) LoadAllBunches(ctx context.Context, typ riakpersist.ModelType, keys []string, fn func([]*riakpersist.Record) error) error {
	size := m.config.LoadBunchSize
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		recs, err := m.LoadMultiple(ctx, typ, keys[start:end])
		if err != nil {
			return err
		}
		if err := fn(recs); err != nil {
			return err
		}
	}
	return nil
}

// searchHook is the pre-commit hook indexing a bucket for search.
var searchHook = map[string]interface{}{
	"mod": "riak_search_kv_hook",
	"fun": "precommit",
}

// EnableSearch installs the search pre-commit hook on the bucket of typ.
func (m *Manager) EnableSearch(ctx context.Context, typ riakpersist.ModelType) error {
	bucket := m.BucketFor(typ)
	span, ctx := tracing.StartObjectSpan(ctx, "kv.Manager.EnableSearch", bucket, "")
	defer span.Finish()

	props := map[string]interface{}{
		"precommit": []interface{}{searchHook},
	}
	return tracing.LogError(span, m.client.SetBucketProperties(ctx, bucket, props))
}
