package riakpersist

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	// VersionField is the reserved payload field holding the schema version
	// of a stored object.
	VersionField = "$VERSION"

	// ContentTypeJSON is the content type of every object written by the
	// manager.
	ContentTypeJSON = "application/json"
)

// StoredObject is the wire-level representation of one domain instance.
//
// A nil Data means the record does not exist in the store.
type StoredObject struct {
	Bucket      string
	Key         string
	ContentType string
	Indexes     Indexes
	Data        map[string]interface{}
}

// NewStoredObject returns a fresh object tagged with the given schema
// version and no other payload.
func NewStoredObject(bucket, key string, version int) *StoredObject {
	return &StoredObject{
		Bucket:      bucket,
		Key:         key,
		ContentType: ContentTypeJSON,
		Indexes:     Indexes{},
		Data:        map[string]interface{}{VersionField: version},
	}
}

// Exists reports whether the object carries a payload.
func (o *StoredObject) Exists() bool {
	return o != nil && o.Data != nil
}

// Version returns the schema version recorded in the payload. Payloads
// without a version field are version 0.
func (o *StoredObject) Version() (int, error) {
	if o.Data == nil {
		return 0, nil
	}
	raw, ok := o.Data[VersionField]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, versionError(raw)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, versionError(raw)
		}
		return int(n), nil
	default:
		return 0, versionError(raw)
	}
}

func versionError(raw interface{}) error {
	return &Error{
		Code: EInvalid,
		Msg:  fmt.Sprintf("%s must be an integer, got %v", VersionField, raw),
	}
}

// SetVersion records version in the payload.
func (o *StoredObject) SetVersion(version int) {
	if o.Data == nil {
		o.Data = map[string]interface{}{}
	}
	o.Data[VersionField] = version
}

// Get returns the payload field name.
func (o *StoredObject) Get(name string) (interface{}, bool) {
	v, ok := o.Data[name]
	return v, ok
}

// Set writes the payload field name.
func (o *StoredObject) Set(name string, v interface{}) {
	if o.Data == nil {
		o.Data = map[string]interface{}{}
	}
	o.Data[name] = v
}

// AddIndex adds an index entry, keeping the canonical ordering.
func (o *StoredObject) AddIndex(name, value string) {
	o.Indexes = canonical(append(o.Indexes, IndexEntry{Name: name, Value: value}))
}

// RemoveIndex removes index entries named name. With no values given every
// entry of that name is removed.
func (o *StoredObject) RemoveIndex(name string, values ...string) {
	drop := func(e IndexEntry) bool {
		if e.Name != name {
			return false
		}
		if len(values) == 0 {
			return true
		}
		for _, v := range values {
			if e.Value == v {
				return true
			}
		}
		return false
	}

	kept := o.Indexes[:0]
	for _, e := range o.Indexes {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	o.Indexes = kept
}

// Clone returns a deep copy of the object's metadata and a copy of the
// top-level payload map.
func (o *StoredObject) Clone() *StoredObject {
	c := &StoredObject{
		Bucket:      o.Bucket,
		Key:         o.Key,
		ContentType: o.ContentType,
		Indexes:     append(Indexes{}, o.Indexes...),
	}
	if o.Data != nil {
		c.Data = make(map[string]interface{}, len(o.Data))
		for k, v := range o.Data {
			c.Data[k] = v
		}
	}
	return c
}
