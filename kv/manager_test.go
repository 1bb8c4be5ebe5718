package kv_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/riakpersist/riakpersist"
	"github.com/riakpersist/riakpersist/inmem"
	"github.com/riakpersist/riakpersist/kit/prom/promtest"
	"github.com/riakpersist/riakpersist/kv"
	"github.com/riakpersist/riakpersist/migration"
	"github.com/riakpersist/riakpersist/mock"
	platformtesting "github.com/riakpersist/riakpersist/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// usersModel is at version 3. Version 1 split "name" into "first" and
// "last", version 2 needed no change and version 3 added an email index.
func usersModel() *migration.Model {
	reg := migration.NewRegistry()
	reg.MustRegister(0, func(ctx context.Context, mgr riakpersist.Manager, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, error) {
		next := obj.Clone()
		name, _ := next.Get("name")
		delete(next.Data, "name")
		next.Set("first", name)
		next.Set("last", "")
		next.SetVersion(1)
		return next, nil
	})
	reg.MustRegister(1, migration.NoModification)
	reg.MustRegister(2, func(ctx context.Context, mgr riakpersist.Manager, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, error) {
		next := obj.Clone()
		if email, ok := next.Get("email"); ok {
			next.AddIndex("email_bin", fmt.Sprint(email))
		}
		next.SetVersion(3)
		return next, nil
	})
	return &migration.Model{Bucket: "users", Current: 3, Migrations: reg}
}

func newManager(t *testing.T, client riakpersist.StoreClient, mutate ...func(*kv.Config)) *kv.Manager {
	t.Helper()

	config := kv.NewConfig()
	config.BucketPrefix = "test-"
	for _, fn := range mutate {
		fn(&config)
	}
	return kv.NewManager(zaptest.NewLogger(t), client, config)
}

func TestManager_BucketFor(t *testing.T) {
	m := newManager(t, inmem.NewClient())
	assert.Equal(t, "test-users", m.BucketFor(usersModel()))

	sub := m.SubManager("tenant1-")
	assert.Equal(t, "test-tenant1-users", sub.BucketFor(usersModel()))
	assert.Equal(t, "test-users", m.BucketFor(usersModel()))
}

func TestManager_Defaults(t *testing.T) {
	m := kv.NewManager(nil, inmem.NewClient())
	config := m.Config()
	assert.Equal(t, 100, config.LoadBunchSize)
	assert.Equal(t, 4*time.Minute, config.MapReduceTimeout)
	assert.Equal(t, 64, config.MaxMigrationSteps)
	assert.Equal(t, "", config.BucketPrefix)
}

func TestManager_StoreLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, inmem.NewClient())
	typ := usersModel()

	rec := m.New(typ, "u1")
	rec.Set("first", "ann")
	rec.Set("last", "lee")
	rec.Stored.AddIndex("email_bin", "ann@example.com")
	require.NoError(t, rec.Save(ctx))

	got, err := m.Load(ctx, typ, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)

	version, err := got.Stored.Version()
	require.NoError(t, err)
	assert.Equal(t, typ.Version(), version)
	assert.Equal(t, "u1", got.Key)
	assert.Equal(t, "test-users", got.Stored.Bucket)
	if diff := cmp.Diff(map[string]interface{}{
		riakpersist.VersionField: float64(3),
		"first":                  "ann",
		"last":                   "lee",
	}, got.Stored.Data); diff != "" {
		t.Errorf("payload differs -want/+got\n%s", diff)
	}
	assert.Equal(t, riakpersist.Indexes{{Name: "email_bin", Value: "ann@example.com"}}, got.Stored.Indexes)
	assert.Equal(t, m, got.Manager())
}

func TestManager_StoreWritesAsIs(t *testing.T) {
	ctx := context.Background()
	client := inmem.NewClient()
	m := newManager(t, client)
	typ := usersModel()

	// A stale record is written without validation.
	obj := riakpersist.NewStoredObject(m.BucketFor(typ), "u1", 0)
	obj.Set("name", "ann")
	rec := riakpersist.NewRecord(m, typ, obj)

	stored, err := m.Store(ctx, rec)
	require.NoError(t, err)
	assert.Same(t, rec, stored)

	res, err := client.Fetch(ctx, "test-users", "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"$VERSION":0,"name":"ann"}`, string(res.Data))
}

func TestManager_LoadMigrates(t *testing.T) {
	ctx := context.Background()
	client := inmem.NewClient()
	m := newManager(t, client)
	typ := usersModel()

	old := riakpersist.NewStoredObject("test-users", "u1", 0)
	old.Set("name", "ann")
	old.Set("email", "ann@example.com")
	platformtesting.MustPut(t, client, old)

	got, err := m.Load(ctx, typ, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)

	version, err := got.Stored.Version()
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	first, _ := got.Get("first")
	assert.Equal(t, "ann", first)
	_, hasName := got.Get("name")
	assert.False(t, hasName)
	assert.Equal(t, []string{"ann@example.com"}, got.Stored.Indexes.Values("email_bin"))

	// Loading does not write the migrated object back.
	res, err := client.Fetch(ctx, "test-users", "u1")
	require.NoError(t, err)
	obj, err := riakpersist.DecodeStoredObject("test-users", "u1", res)
	require.NoError(t, err)
	v, _ := obj.Version()
	assert.Equal(t, 0, v)
}

func TestManager_LoadAbsent(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		m := newManager(t, inmem.NewClient())
		got, err := m.Load(ctx, usersModel(), "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("empty body", func(t *testing.T) {
		client := inmem.NewClient()
		require.NoError(t, client.Put(ctx, "test-users", "u1", riakpersist.Content{ContentType: riakpersist.ContentTypeJSON}))
		m := newManager(t, client)
		got, err := m.Load(ctx, usersModel(), "u1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("migration drops the object", func(t *testing.T) {
		client := inmem.NewClient()
		platformtesting.MustPut(t, client, riakpersist.NewStoredObject("test-users", "u1", 0))

		reg := migration.NewRegistry()
		reg.MustRegister(0, func(ctx context.Context, mgr riakpersist.Manager, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, error) {
			return &riakpersist.StoredObject{Bucket: obj.Bucket, Key: obj.Key}, nil
		})
		typ := &migration.Model{Bucket: "users", Current: 1, Migrations: reg}

		m := newManager(t, client)
		got, err := m.Load(ctx, typ, "u1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestManager_LoadResult(t *testing.T) {
	ctx := context.Background()
	fetches := 0
	client := &mock.StoreClient{
		FetchFn: func(ctx context.Context, bucket, key string) (*riakpersist.FetchResult, error) {
			fetches++
			return nil, nil
		},
	}
	m := newManager(t, client)

	mapping := &riakpersist.FetchResult{
		Metadata: riakpersist.Metadata{ContentType: "application/json", Index: map[string]interface{}{"a_bin": "1"}},
		Data:     []byte(`{"$VERSION":3,"first":"ann"}`),
	}
	pairs := &riakpersist.FetchResult{
		Metadata: riakpersist.Metadata{ContentType: "application/json", Index: []interface{}{[]interface{}{"a_bin", "1"}}},
		Data:     []byte(`{"$VERSION":3,"first":"ann"}`),
	}

	fromMapping, err := m.LoadResult(ctx, usersModel(), "u1", mapping)
	require.NoError(t, err)
	fromPairs, err := m.LoadResult(ctx, usersModel(), "u1", pairs)
	require.NoError(t, err)

	assert.Equal(t, fromMapping.Stored, fromPairs.Stored)
	assert.Equal(t, 0, fetches)

	got, err := m.LoadResult(ctx, usersModel(), "u2", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, fetches)
}

func TestManager_LoadErrors(t *testing.T) {
	ctx := context.Background()
	errTransport := errors.New("connection refused")

	t.Run("transport errors are unchanged", func(t *testing.T) {
		client := &mock.StoreClient{
			FetchFn: func(ctx context.Context, bucket, key string) (*riakpersist.FetchResult, error) {
				return nil, errTransport
			},
		}
		_, err := newManager(t, client).Load(ctx, usersModel(), "u1")
		assert.Equal(t, errTransport, err)
	})

	t.Run("migrator errors are unchanged", func(t *testing.T) {
		errStep := errors.New("cannot migrate")
		client := inmem.NewClient()
		platformtesting.MustPut(t, client, riakpersist.NewStoredObject("test-users", "u1", 0))
		reg := migration.NewRegistry()
		reg.MustRegister(0, func(ctx context.Context, mgr riakpersist.Manager, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, error) {
			return nil, errStep
		})

		_, err := newManager(t, client).Load(ctx, &migration.Model{Bucket: "users", Current: 1, Migrations: reg}, "u1")
		assert.Equal(t, errStep, err)
	})

	t.Run("non terminating migration is bounded", func(t *testing.T) {
		client := inmem.NewClient()
		platformtesting.MustPut(t, client, riakpersist.NewStoredObject("test-users", "u1", 0))
		typ := &mock.ModelType{
			Bucket:         "users",
			CurrentVersion: 1000,
			NewMigratorFn: func(mgr riakpersist.Manager, from int) (riakpersist.Migrator, error) {
				return riakpersist.MigratorFunc(func(ctx context.Context, obj *riakpersist.StoredObject) (*riakpersist.StoredObject, error) {
					return migration.NoModification(ctx, mgr, obj)
				}), nil
			},
		}

		m := newManager(t, client, func(c *kv.Config) { c.MaxMigrationSteps = 5 })
		_, err := m.Load(ctx, typ, "u1")
		assert.Equal(t, riakpersist.EInternal, riakpersist.ErrorCode(err))
	})

	t.Run("stored version newer than the model", func(t *testing.T) {
		client := inmem.NewClient()
		platformtesting.MustPut(t, client, riakpersist.NewStoredObject("test-users", "u1", 9))
		_, err := newManager(t, client).Load(ctx, usersModel(), "u1")
		assert.ErrorIs(t, err, migration.ErrSchemaTooNew)
	})
}

func TestManager_LoadMultiple(t *testing.T) {
	ctx := context.Background()
	client := inmem.NewClient()
	m := newManager(t, client, func(c *kv.Config) { c.LoadBunchSize = 2 })
	typ := usersModel()

	for _, key := range []string{"a", "c", "d", "e"} {
		rec := m.New(typ, key)
		rec.Set("first", key)
		require.NoError(t, rec.Save(ctx))
	}

	recs, err := m.LoadMultiple(ctx, typ, []string{"e", "a", "b", "c", "x", "d"})
	require.NoError(t, err)

	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.Key
	}
	assert.Equal(t, []string{"e", "a", "c", "d"}, keys)

	recs, err = m.LoadMultiple(ctx, typ, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestManager_LoadMultipleBounded(t *testing.T) {
	ctx := context.Background()
	var inFlight, maxInFlight int32
	client := &mock.StoreClient{
		FetchFn: func(ctx context.Context, bucket, key string) (*riakpersist.FetchResult, error) {
			n := atomic.AddInt32(&inFlight, 1)
			defer atomic.AddInt32(&inFlight, -1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return &riakpersist.FetchResult{Data: []byte(`{"$VERSION":3}`)}, nil
		},
	}
	m := newManager(t, client, func(c *kv.Config) { c.LoadBunchSize = 3 })

	keys := make([]string, 20)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%02d", i)
	}
	recs, err := m.LoadMultiple(ctx, usersModel(), keys)
	require.NoError(t, err)
	require.Len(t, recs, 20)
	for i, r := range recs {
		assert.Equal(t, keys[i], r.Key)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(3))
}

func TestManager_LoadMultipleError(t *testing.T) {
	errTransport := errors.New("timeout")
	client := &mock.StoreClient{
		FetchFn: func(ctx context.Context, bucket, key string) (*riakpersist.FetchResult, error) {
			if key == "bad" {
				return nil, errTransport
			}
			return nil, nil
		},
	}
	_, err := newManager(t, client).LoadMultiple(context.Background(), usersModel(), []string{"a", "bad", "c"})
	assert.Equal(t, errTransport, err)
}

func TestManager_LoadAllBunches(t *testing.T) {
	ctx := context.Background()
	client := inmem.NewClient()
	m := newManager(t, client, func(c *kv.Config) { c.LoadBunchSize = 2 })
	typ := usersModel()

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, m.New(typ, key).Save(ctx))
	}

	var bunches [][]string
	err := m.LoadAllBunches(ctx, typ, []string{"a", "b", "c", "missing", "e"}, func(recs []*riakpersist.Record) error {
		var keys []string
		for _, r := range recs {
			keys = append(keys, r.Key)
		}
		bunches = append(bunches, keys)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}, {"e"}}, bunches)

	errStop := errors.New("stop")
	calls := 0
	err = m.LoadAllBunches(ctx, typ, []string{"a", "b", "c"}, func([]*riakpersist.Record) error {
		calls++
		return errStop
	})
	assert.Equal(t, errStop, err)
	assert.Equal(t, 1, calls)
}

func TestManager_Delete(t *testing.T) {
	ctx := context.Background()
	client := inmem.NewClient()
	m := newManager(t, client)
	typ := usersModel()

	rec := m.New(typ, "u1")
	require.NoError(t, rec.Save(ctx))
	require.NoError(t, rec.Delete(ctx))

	got, err := m.Load(ctx, typ, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is fine.
	require.NoError(t, m.Delete(ctx, rec))
}

func TestManager_TransportErrorsOnWrite(t *testing.T) {
	ctx := context.Background()
	errTransport := errors.New("connection reset")
	client := &mock.StoreClient{
		PutFn: func(ctx context.Context, bucket, key string, content riakpersist.Content) error {
			return errTransport
		},
		DeleteFn: func(ctx context.Context, bucket, key string) error {
			return errTransport
		},
	}
	m := newManager(t, client)
	rec := m.New(usersModel(), "u1")

	_, err := m.Store(ctx, rec)
	assert.Equal(t, errTransport, err)
	assert.Equal(t, errTransport, m.Delete(ctx, rec))
}

func TestManager_EnableSearch(t *testing.T) {
	client := inmem.NewClient()
	m := newManager(t, client)
	require.NoError(t, m.EnableSearch(context.Background(), usersModel()))

	props := client.BucketProperties("test-users")
	assert.Equal(t, []interface{}{
		map[string]interface{}{"mod": "riak_search_kv_hook", "fun": "precommit"},
	}, props["precommit"])
}

func TestManager_Metrics(t *testing.T) {
	ctx := context.Background()
	client := inmem.NewClient()
	m := newManager(t, client)
	typ := usersModel()

	old := riakpersist.NewStoredObject("test-users", "u1", 0)
	old.Set("name", "ann")
	platformtesting.MustPut(t, client, old)
	require.NoError(t, m.New(typ, "u2").Save(ctx))

	_, err := m.Load(ctx, typ, "u1")
	require.NoError(t, err)
	_, err = m.Load(ctx, typ, "missing")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(m)
	mfs := promtest.MustGather(t, reg)

	assert.Equal(t, float64(2), promtest.BucketValue(t, mfs, "riakpersist_manager_loads_total", "test-users"))
	assert.Equal(t, float64(1), promtest.BucketValue(t, mfs, "riakpersist_manager_load_misses_total", "test-users"))
	assert.Equal(t, float64(1), promtest.BucketValue(t, mfs, "riakpersist_manager_stores_total", "test-users"))
	assert.Equal(t, float64(3), promtest.BucketValue(t, mfs, "riakpersist_manager_migration_steps_total", "test-users"))
}
