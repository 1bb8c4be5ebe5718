package riakpersist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
)

// Metadata is the metadata part of a raw fetch result. Index is left
// untyped: depending on the store it arrives as a mapping or as a list of
// pairs, and is normalized by DecodeStoredObject.
type Metadata struct {
	ContentType string      `json:"content-type"`
	Index       interface{} `json:"index"`
}

// FetchResult is the raw result of fetching one key from the store.
type FetchResult struct {
	Metadata Metadata `json:"metadata"`
	Data     []byte   `json:"data"`
}

// Content is the encoded form of a stored object handed to the store on
// write.
type Content struct {
	ContentType string
	Indexes     Indexes
	Body        []byte
}

// DecodeStoredObject builds the stored object of bucket/key from a raw fetch
// result. A nil result, or one with an empty body, yields an object with nil
// Data: the record does not exist.
func DecodeStoredObject(bucket, key string, result *FetchResult) (*StoredObject, error) {
	obj := &StoredObject{
		Bucket:      bucket,
		Key:         key,
		ContentType: ContentTypeJSON,
		Indexes:     Indexes{},
	}
	if result == nil {
		return obj, nil
	}

	indexes, err := NormalizeIndexes(result.Metadata.Index)
	if err != nil {
		return nil, err
	}
	obj.Indexes = indexes
	if result.Metadata.ContentType != "" {
		obj.ContentType = result.Metadata.ContentType
	}

	data, err := decodeBody(obj.ContentType, result.Data)
	if err != nil {
		return nil, &Error{
			Code: EInvalid,
			Op:   "riakpersist/DecodeStoredObject",
			Msg:  fmt.Sprintf("decoding %s/%s", bucket, key),
			Err:  err,
		}
	}
	obj.Data = data
	return obj, nil
}

func decodeBody(contentType string, body []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !isJSON(contentType) {
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || mt == "text/json"
}

// Encode returns the wire form of the object.
func (o *StoredObject) Encode() (Content, error) {
	ct := o.ContentType
	if ct == "" {
		ct = ContentTypeJSON
	}
	if !isJSON(ct) {
		return Content{}, &Error{
			Code: EInvalid,
			Op:   "riakpersist/StoredObject.Encode",
			Msg:  fmt.Sprintf("unsupported content type %q", ct),
		}
	}
	body, err := json.Marshal(o.Data)
	if err != nil {
		return Content{}, &Error{
			Code: EInvalid,
			Op:   "riakpersist/StoredObject.Encode",
			Err:  err,
		}
	}
	return Content{
		ContentType: ct,
		Indexes:     canonical(o.Indexes),
		Body:        body,
	}, nil
}
