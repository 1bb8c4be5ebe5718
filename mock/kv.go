package mock

import (
	"context"

	"github.com/riakpersist/riakpersist"
)

var _ riakpersist.StoreClient = (*StoreClient)(nil)

// StoreClient is a mock riakpersist.StoreClient. Unset functions panic when
// called.
type StoreClient struct {
	FetchFn               func(ctx context.Context, bucket, key string) (*riakpersist.FetchResult, error)
	PutFn                 func(ctx context.Context, bucket, key string, content riakpersist.Content) error
	DeleteFn              func(ctx context.Context, bucket, key string) error
	ListBucketsFn         func(ctx context.Context) ([]string, error)
	ListKeysFn            func(ctx context.Context, bucket string) ([]string, error)
	SetBucketPropertiesFn func(ctx context.Context, bucket string, props map[string]interface{}) error
	MapReduceFn           func(ctx context.Context, job *riakpersist.MapReduceJob) ([]interface{}, error)
}

// Fetch retrieves the object at bucket/key.
func (s *StoreClient) Fetch(ctx context.Context, bucket, key string) (*riakpersist.FetchResult, error) {
	return s.FetchFn(ctx, bucket, key)
}

// Put writes content at bucket/key.
func (s *StoreClient) Put(ctx context.Context, bucket, key string, content riakpersist.Content) error {
	return s.PutFn(ctx, bucket, key, content)
}

// Delete removes bucket/key.
func (s *StoreClient) Delete(ctx context.Context, bucket, key string) error {
	return s.DeleteFn(ctx, bucket, key)
}

// ListBuckets returns the bucket names.
func (s *StoreClient) ListBuckets(ctx context.Context) ([]string, error) {
	return s.ListBucketsFn(ctx)
}

// ListKeys returns the keys of bucket.
func (s *StoreClient) ListKeys(ctx context.Context, bucket string) ([]string, error) {
	return s.ListKeysFn(ctx, bucket)
}

// SetBucketProperties sets properties on bucket.
func (s *StoreClient) SetBucketProperties(ctx context.Context, bucket string, props map[string]interface{}) error {
	return s.SetBucketPropertiesFn(ctx, bucket, props)
}

// MapReduce runs job.
func (s *StoreClient) MapReduce(ctx context.Context, job *riakpersist.MapReduceJob) ([]interface{}, error) {
	return s.MapReduceFn(ctx, job)
}

var _ riakpersist.ModelType = (*ModelType)(nil)

// ModelType is a mock riakpersist.ModelType.
type ModelType struct {
	Bucket         string
	CurrentVersion int
	NewMigratorFn  func(mgr riakpersist.Manager, from int) (riakpersist.Migrator, error)
}

// BucketName returns Bucket.
func (m *ModelType) BucketName() string {
	return m.Bucket
}

// Version returns CurrentVersion.
func (m *ModelType) Version() int {
	return m.CurrentVersion
}

// NewMigrator calls NewMigratorFn.
func (m *ModelType) NewMigrator(mgr riakpersist.Manager, from int) (riakpersist.Migrator, error) {
	return m.NewMigratorFn(mgr, from)
}
