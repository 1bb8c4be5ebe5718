package riakpersist

import (
	"context"
	"encoding/json"
)

// StoreClient is the capability contract of the key-value store the manager
// runs on. Connection handling, authentication and socket level retries are
// the client's business.
type StoreClient interface {
	// Fetch returns the raw result stored at bucket/key, or nil when the
	// key does not exist.
	Fetch(ctx context.Context, bucket, key string) (*FetchResult, error)
	// Put writes content at bucket/key.
	Put(ctx context.Context, bucket, key string, content Content) error
	// Delete removes bucket/key. Deleting an absent key is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// ListBuckets returns the names of all buckets known to the store.
	ListBuckets(ctx context.Context) ([]string, error)
	// ListKeys returns the keys of bucket.
	ListKeys(ctx context.Context, bucket string) ([]string, error)
	// SetBucketProperties updates the properties of bucket.
	SetBucketProperties(ctx context.Context, bucket string, props map[string]interface{}) error

	// MapReduce runs job and returns the rows of its final phase.
	MapReduce(ctx context.Context, job *MapReduceJob) ([]interface{}, error)
}

// MapReduceJob is a map-reduce job description. Inputs are passed through
// to the store untouched.
type MapReduceJob struct {
	Inputs  interface{}      `json:"inputs"`
	Query   []MapReducePhase `json:"query"`
	Timeout *int             `json:"timeout,omitempty"`
}

// MarshalJSON implements json.Marshaler. The query is always encoded as a
// list, even when the job has no phases.
func (j MapReduceJob) MarshalJSON() ([]byte, error) {
	type job MapReduceJob
	if j.Query == nil {
		j.Query = []MapReducePhase{}
	}
	return json.Marshal(job(j))
}

// MapReducePhase is one stage of a map-reduce query. It is encoded as a
// single-member object keyed by its Type, e.g. {"map": {...}}.
type MapReducePhase struct {
	Type string
	Spec map[string]interface{}
}

// MarshalJSON implements json.Marshaler.
func (p MapReducePhase) MarshalJSON() ([]byte, error) {
	spec := p.Spec
	if spec == nil {
		spec = map[string]interface{}{}
	}
	return json.Marshal(map[string]interface{}{p.Type: spec})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *MapReducePhase) UnmarshalJSON(b []byte) error {
	var m map[string]map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return &Error{
			Code: EInvalid,
			Msg:  "map-reduce phase must have exactly one type",
		}
	}
	for typ, spec := range m {
		p.Type = typ
		p.Spec = spec
	}
	return nil
}
