package riakpersist

import (
	"context"
)

// Migrator transforms a stored object of one schema version into the object
// of a later version.
type Migrator interface {
	Migrate(ctx context.Context, obj *StoredObject) (*StoredObject, error)
}

// MigratorFunc adapts a function to the Migrator interface.
type MigratorFunc func(ctx context.Context, obj *StoredObject) (*StoredObject, error)

// Migrate calls fn.
func (fn MigratorFunc) Migrate(ctx context.Context, obj *StoredObject) (*StoredObject, error) {
	return fn(ctx, obj)
}

// ModelType describes a domain type persisted by the manager.
type ModelType interface {
	// BucketName is the un-prefixed bucket holding objects of this type.
	BucketName() string
	// Version is the current schema version. Zero means unversioned.
	Version() int
	// NewMigrator returns the migrator able to move an object stored at
	// version from towards Version.
	NewMigrator(mgr Manager, from int) (Migrator, error)
}

// Record is a loaded domain object: the stored object of one key together
// with the manager that loaded it.
type Record struct {
	Type   ModelType
	Key    string
	Stored *StoredObject

	mgr Manager
}

// NewRecord binds a stored object to its type and manager.
func NewRecord(mgr Manager, typ ModelType, obj *StoredObject) *Record {
	return &Record{
		Type:   typ,
		Key:    obj.Key,
		Stored: obj,
		mgr:    mgr,
	}
}

// Manager returns the manager the record belongs to.
func (r *Record) Manager() Manager {
	return r.mgr
}

// Get returns the payload field name.
func (r *Record) Get(name string) (interface{}, bool) {
	return r.Stored.Get(name)
}

// Set writes the payload field name. The change is persisted by Save.
func (r *Record) Set(name string, v interface{}) {
	r.Stored.Set(name, v)
}

// Save stores the record through its manager.
func (r *Record) Save(ctx context.Context) error {
	_, err := r.mgr.Store(ctx, r)
	return err
}

// Delete removes the record through its manager.
func (r *Record) Delete(ctx context.Context) error {
	return r.mgr.Delete(ctx, r)
}

// MapperFunc transforms one map-reduce result row.
type MapperFunc func(ctx context.Context, mgr Manager, row interface{}) (interface{}, error)

// ReducerFunc folds the full sequence of map-reduce result rows.
type ReducerFunc func(ctx context.Context, mgr Manager, rows []interface{}) (interface{}, error)

// Manager stores, loads and deletes versioned domain objects and runs
// map-reduce jobs against the store.
type Manager interface {
	// BucketFor returns the namespaced bucket of typ.
	BucketFor(typ ModelType) string

	// Store writes the record's stored object as-is and returns the record.
	Store(ctx context.Context, rec *Record) (*Record, error)
	// Delete removes the record's key. Deleting an absent key is not an error.
	Delete(ctx context.Context, rec *Record) error

	// Load fetches key and migrates it to the current version of typ.
	// It returns nil, nil when the key does not exist.
	Load(ctx context.Context, typ ModelType, key string) (*Record, error)
	// LoadResult is Load with an already fetched raw result.
	LoadResult(ctx context.Context, typ ModelType, key string, result *FetchResult) (*Record, error)
	// LoadMultiple loads keys, omitting missing ones and keeping input order.
	LoadMultiple(ctx context.Context, typ ModelType, keys []string) ([]*Record, error)

	// RunMapReduce submits job and applies the optional mapper and reducer
	// to its result rows.
	RunMapReduce(ctx context.Context, job *MapReduceJob, mapper MapperFunc, reducer ReducerFunc) (interface{}, error)

	// PurgeAll deletes every key of every bucket owned by the manager.
	PurgeAll(ctx context.Context) error
}
