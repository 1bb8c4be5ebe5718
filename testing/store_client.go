package testing

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/riakpersist/riakpersist"
)

var storeCmpOptions = cmp.Options{
	cmp.Transformer("Sort", func(in []string) []string {
		out := append([]string(nil), in...) // Copy input to avoid mutating it
		sort.Strings(out)
		return out
	}),
}

// StoreFields will include the objects to seed the store with.
type StoreFields struct {
	Objects []*riakpersist.StoredObject
}

type storeClientF func(
	init func(StoreFields, *testing.T) (riakpersist.StoreClient, func()),
	t *testing.T,
)

// StoreClient tests the store client contract every backend must honor.
func StoreClient(
	init func(StoreFields, *testing.T) (riakpersist.StoreClient, func()),
	t *testing.T,
) {
	tests := []struct {
		name string
		fn   storeClientF
	}{
		{
			name: "Fetch",
			fn:   FetchObject,
		},
		{
			name: "Put",
			fn:   PutObject,
		},
		{
			name: "Delete",
			fn:   DeleteObject,
		},
		{
			name: "ListBuckets",
			fn:   ListBuckets,
		},
		{
			name: "ListKeys",
			fn:   ListKeys,
		},
		{
			name: "SetBucketProperties",
			fn:   SetBucketProperties,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(init, t)
		})
	}
}

func userObject(key string, version int, name string, indexes ...riakpersist.IndexEntry) *riakpersist.StoredObject {
	obj := riakpersist.NewStoredObject("users", key, version)
	obj.Set("name", name)
	for _, e := range indexes {
		obj.AddIndex(e.Name, e.Value)
	}
	return obj
}

// FetchObject tests fetching objects and the normalization of what comes
// back.
func FetchObject(
	init func(StoreFields, *testing.T) (riakpersist.StoreClient, func()),
	t *testing.T,
) {
	type args struct {
		bucket string
		key    string
	}
	type wants struct {
		exists  bool
		version int
		name    string
		indexes riakpersist.Indexes
	}

	tests := []struct {
		name   string
		fields StoreFields
		args   args
		wants  wants
	}{
		{
			name: "fetch an existing object",
			fields: StoreFields{
				Objects: []*riakpersist.StoredObject{
					userObject("u1", 2, "ann",
						riakpersist.IndexEntry{Name: "email_bin", Value: "ann@example.com"},
						riakpersist.IndexEntry{Name: "age_int", Value: "31"},
					),
				},
			},
			args: args{bucket: "users", key: "u1"},
			wants: wants{
				exists:  true,
				version: 2,
				name:    "ann",
				indexes: riakpersist.Indexes{
					{Name: "age_int", Value: "31"},
					{Name: "email_bin", Value: "ann@example.com"},
				},
			},
		},
		{
			name: "multiple values of one index",
			fields: StoreFields{
				Objects: []*riakpersist.StoredObject{
					userObject("u1", 1, "ann",
						riakpersist.IndexEntry{Name: "tag_bin", Value: "b"},
						riakpersist.IndexEntry{Name: "tag_bin", Value: "a"},
					),
				},
			},
			args: args{bucket: "users", key: "u1"},
			wants: wants{
				exists:  true,
				version: 1,
				name:    "ann",
				indexes: riakpersist.Indexes{
					{Name: "tag_bin", Value: "a"},
					{Name: "tag_bin", Value: "b"},
				},
			},
		},
		{
			name: "missing key",
			fields: StoreFields{
				Objects: []*riakpersist.StoredObject{userObject("u1", 1, "ann")},
			},
			args:  args{bucket: "users", key: "u2"},
			wants: wants{indexes: riakpersist.Indexes{}},
		},
		{
			name:  "missing bucket",
			args:  args{bucket: "nobody", key: "u1"},
			wants: wants{indexes: riakpersist.Indexes{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, done := init(tt.fields, t)
			defer done()
			ctx := context.Background()

			res, err := s.Fetch(ctx, tt.args.bucket, tt.args.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			obj, err := riakpersist.DecodeStoredObject(tt.args.bucket, tt.args.key, res)
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}

			if got := obj.Exists(); got != tt.wants.exists {
				t.Fatalf("exists: expected %v got %v", tt.wants.exists, got)
			}
			if diff := cmp.Diff(obj.Indexes, tt.wants.indexes); diff != "" {
				t.Errorf("indexes are different -got/+want\ndiff %s", diff)
			}
			if !tt.wants.exists {
				return
			}
			version, err := obj.Version()
			if err != nil {
				t.Fatalf("unexpected version error: %v", err)
			}
			if version != tt.wants.version {
				t.Errorf("version: expected %d got %d", tt.wants.version, version)
			}
			if name, _ := obj.Get("name"); name != tt.wants.name {
				t.Errorf("name: expected %q got %v", tt.wants.name, name)
			}
		})
	}
}

// PutObject tests that writes are visible to fetches and replace earlier
// writes of the same key.
func PutObject(
	init func(StoreFields, *testing.T) (riakpersist.StoreClient, func()),
	t *testing.T,
) {
	tests := []struct {
		name     string
		fields   StoreFields
		put      *riakpersist.StoredObject
		wantName string
		wantIdx  riakpersist.Indexes
	}{
		{
			name:     "put a new object",
			put:      userObject("u1", 1, "ann", riakpersist.IndexEntry{Name: "email_bin", Value: "a@x"}),
			wantName: "ann",
			wantIdx:  riakpersist.Indexes{{Name: "email_bin", Value: "a@x"}},
		},
		{
			name: "put replaces the object and its indexes",
			fields: StoreFields{
				Objects: []*riakpersist.StoredObject{
					userObject("u1", 1, "ann", riakpersist.IndexEntry{Name: "email_bin", Value: "a@x"}),
				},
			},
			put:      userObject("u1", 1, "bob"),
			wantName: "bob",
			wantIdx:  riakpersist.Indexes{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, done := init(tt.fields, t)
			defer done()
			ctx := context.Background()

			MustPut(t, s, tt.put)

			res, err := s.Fetch(ctx, tt.put.Bucket, tt.put.Key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			obj, err := riakpersist.DecodeStoredObject(tt.put.Bucket, tt.put.Key, res)
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if name, _ := obj.Get("name"); name != tt.wantName {
				t.Errorf("name: expected %q got %v", tt.wantName, name)
			}
			if obj.ContentType != riakpersist.ContentTypeJSON {
				t.Errorf("content type: expected %q got %q", riakpersist.ContentTypeJSON, obj.ContentType)
			}
			if diff := cmp.Diff(obj.Indexes, tt.wantIdx); diff != "" {
				t.Errorf("indexes are different -got/+want\ndiff %s", diff)
			}
		})
	}
}

// DeleteObject tests deletes, including deletes of absent keys.
func DeleteObject(
	init func(StoreFields, *testing.T) (riakpersist.StoreClient, func()),
	t *testing.T,
) {
	tests := []struct {
		name     string
		fields   StoreFields
		bucket   string
		key      string
		wantKeys []string
	}{
		{
			name: "delete an existing key",
			fields: StoreFields{
				Objects: []*riakpersist.StoredObject{
					userObject("u1", 1, "ann"),
					userObject("u2", 1, "bob"),
				},
			},
			bucket:   "users",
			key:      "u1",
			wantKeys: []string{"u2"},
		},
		{
			name: "delete an absent key",
			fields: StoreFields{
				Objects: []*riakpersist.StoredObject{userObject("u1", 1, "ann")},
			},
			bucket:   "users",
			key:      "u9",
			wantKeys: []string{"u1"},
		},
		{
			name:     "delete in an absent bucket",
			bucket:   "users",
			key:      "u1",
			wantKeys: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, done := init(tt.fields, t)
			defer done()
			ctx := context.Background()

			if err := s.Delete(ctx, tt.bucket, tt.key); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			res, err := s.Fetch(ctx, tt.bucket, tt.key)
			if err != nil {
				t.Fatalf("unexpected fetch error: %v", err)
			}
			if res != nil {
				t.Errorf("expected %s/%s to be gone", tt.bucket, tt.key)
			}

			keys, err := s.ListKeys(ctx, tt.bucket)
			if err != nil {
				t.Fatalf("unexpected list error: %v", err)
			}
			if diff := cmp.Diff(keys, tt.wantKeys, storeCmpOptions...); diff != "" {
				t.Errorf("keys are different -got/+want\ndiff %s", diff)
			}
		})
	}
}

// ListBuckets tests that only buckets holding keys are listed.
func ListBuckets(
	init func(StoreFields, *testing.T) (riakpersist.StoreClient, func()),
	t *testing.T,
) {
	tests := []struct {
		name    string
		fields  StoreFields
		deletes [][2]string
		want    []string
	}{
		{
			name: "buckets with keys",
			fields: StoreFields{
				Objects: []*riakpersist.StoredObject{
					riakpersist.NewStoredObject("riak-users", "u1", 1),
					riakpersist.NewStoredObject("riak-groups", "g1", 1),
					riakpersist.NewStoredObject("other", "o1", 1),
				},
			},
			want: []string{"other", "riak-groups", "riak-users"},
		},
		{
			name: "emptied buckets are not listed",
			fields: StoreFields{
				Objects: []*riakpersist.StoredObject{
					riakpersist.NewStoredObject("riak-users", "u1", 1),
					riakpersist.NewStoredObject("riak-groups", "g1", 1),
				},
			},
			deletes: [][2]string{{"riak-groups", "g1"}},
			want:    []string{"riak-users"},
		},
		{
			name: "empty store",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, done := init(tt.fields, t)
			defer done()
			ctx := context.Background()

			for _, d := range tt.deletes {
				if err := s.Delete(ctx, d[0], d[1]); err != nil {
					t.Fatalf("unexpected delete error: %v", err)
				}
			}

			buckets, err := s.ListBuckets(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(buckets, tt.want, storeCmpOptions...); diff != "" {
				t.Errorf("buckets are different -got/+want\ndiff %s", diff)
			}
		})
	}
}

// ListKeys tests listing the keys of a bucket.
func ListKeys(
	init func(StoreFields, *testing.T) (riakpersist.StoreClient, func()),
	t *testing.T,
) {
	fields := StoreFields{
		Objects: []*riakpersist.StoredObject{
			userObject("u2", 1, "bob"),
			userObject("u1", 1, "ann"),
			riakpersist.NewStoredObject("groups", "g1", 1),
		},
	}
	s, done := init(fields, t)
	defer done()
	ctx := context.Background()

	keys, err := s.ListKeys(ctx, "users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(keys, []string{"u1", "u2"}, storeCmpOptions...); diff != "" {
		t.Errorf("keys are different -got/+want\ndiff %s", diff)
	}

	keys, err = s.ListKeys(ctx, "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

// SetBucketProperties tests that properties can be set repeatedly without
// affecting the objects of the bucket.
func SetBucketProperties(
	init func(StoreFields, *testing.T) (riakpersist.StoreClient, func()),
	t *testing.T,
) {
	fields := StoreFields{
		Objects: []*riakpersist.StoredObject{userObject("u1", 1, "ann")},
	}
	s, done := init(fields, t)
	defer done()
	ctx := context.Background()

	if err := s.SetBucketProperties(ctx, "users", map[string]interface{}{"n_val": float64(3)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetBucketProperties(ctx, "users", map[string]interface{}{"allow_mult": false}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keys, err := s.ListKeys(ctx, "users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(keys, []string{"u1"}); diff != "" {
		t.Errorf("keys are different -got/+want\ndiff %s", diff)
	}
}
