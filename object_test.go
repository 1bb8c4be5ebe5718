package riakpersist

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoredObject(t *testing.T) {
	obj := NewStoredObject("prefix.users", "u1", 3)

	assert.Equal(t, ContentTypeJSON, obj.ContentType)
	assert.True(t, obj.Exists())
	v, err := obj.Version()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Len(t, obj.Data, 1)
}

func TestStoredObject_Version(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]interface{}
		want    int
		wantErr bool
	}{
		{name: "absent data", data: nil, want: 0},
		{name: "unversioned", data: map[string]interface{}{"a": 1}, want: 0},
		{name: "null version", data: map[string]interface{}{VersionField: nil}, want: 0},
		{name: "decoded number", data: map[string]interface{}{VersionField: float64(2)}, want: 2},
		{name: "json number", data: map[string]interface{}{VersionField: json.Number("5")}, want: 5},
		{name: "fractional", data: map[string]interface{}{VersionField: 1.5}, wantErr: true},
		{name: "string", data: map[string]interface{}{VersionField: "2"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := &StoredObject{Data: tt.data}
			got, err := obj.Version()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, EInvalid, ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStoredObject_EncodeDecode(t *testing.T) {
	obj := NewStoredObject("b", "k", 2)
	obj.Set("name", "alice")
	obj.AddIndex("name_bin", "alice")
	obj.AddIndex("age_int", "30")

	content, err := obj.Encode()
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, content.ContentType)
	assert.Equal(t, Indexes{{"age_int", "30"}, {"name_bin", "alice"}}, content.Indexes)

	got, err := DecodeStoredObject("b", "k", &FetchResult{
		Metadata: Metadata{ContentType: content.ContentType, Index: content.Indexes},
		Data:     content.Body,
	})
	require.NoError(t, err)

	want := &StoredObject{
		Bucket:      "b",
		Key:         "k",
		ContentType: ContentTypeJSON,
		Indexes:     Indexes{{"age_int", "30"}, {"name_bin", "alice"}},
		Data:        map[string]interface{}{VersionField: float64(2), "name": "alice"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected object -want/+got:\n%s", diff)
	}
}

func TestDecodeStoredObject_Absent(t *testing.T) {
	obj, err := DecodeStoredObject("b", "k", nil)
	require.NoError(t, err)
	assert.False(t, obj.Exists())

	obj, err = DecodeStoredObject("b", "k", &FetchResult{Data: []byte("  ")})
	require.NoError(t, err)
	assert.False(t, obj.Exists())
}

func TestDecodeStoredObject_BadBody(t *testing.T) {
	_, err := DecodeStoredObject("b", "k", &FetchResult{
		Metadata: Metadata{ContentType: "text/json"},
		Data:     []byte(`[1,2]`),
	})
	require.Error(t, err)
	assert.Equal(t, EInvalid, ErrorCode(err))

	_, err = DecodeStoredObject("b", "k", &FetchResult{
		Metadata: Metadata{ContentType: "application/octet-stream"},
		Data:     []byte{0x1},
	})
	require.Error(t, err)
}

func TestStoredObject_RemoveIndexAndClone(t *testing.T) {
	obj := NewStoredObject("b", "k", 1)
	obj.AddIndex("tag_bin", "x")
	obj.AddIndex("tag_bin", "y")
	obj.AddIndex("other_bin", "z")

	clone := obj.Clone()
	obj.RemoveIndex("tag_bin", "x")
	assert.Equal(t, Indexes{{"other_bin", "z"}, {"tag_bin", "y"}}, obj.Indexes)
	obj.RemoveIndex("tag_bin")
	assert.Equal(t, Indexes{{"other_bin", "z"}}, obj.Indexes)

	assert.Len(t, clone.Indexes, 3)
	clone.Set("extra", true)
	_, ok := obj.Get("extra")
	assert.False(t, ok)
}

func TestMapReducePhase_JSON(t *testing.T) {
	job := MapReduceJob{
		Inputs: "bucket",
		Query: []MapReducePhase{
			{Type: "map", Spec: map[string]interface{}{"language": "javascript", "keep": false}},
			{Type: "reduce", Spec: map[string]interface{}{"language": "erlang", "keep": true}},
		},
	}
	b, err := json.Marshal(job)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"inputs": "bucket",
		"query": [
			{"map": {"language": "javascript", "keep": false}},
			{"reduce": {"language": "erlang", "keep": true}}
		]
	}`, string(b))

	var decoded MapReduceJob
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "reduce", decoded.Query[1].Type)
	assert.Nil(t, decoded.Timeout)
}

func TestMapReduceJob_JSONWithoutPhases(t *testing.T) {
	timeout := 1000
	for _, job := range []*MapReduceJob{
		{Inputs: "bucket"},
		{Inputs: "bucket", Query: []MapReducePhase{}},
	} {
		b, err := json.Marshal(job)
		require.NoError(t, err)
		assert.JSONEq(t, `{"inputs":"bucket","query":[]}`, string(b))
	}

	b, err := json.Marshal(MapReduceJob{Inputs: "bucket", Timeout: &timeout})
	require.NoError(t, err)
	assert.JSONEq(t, `{"inputs":"bucket","query":[],"timeout":1000}`, string(b))
}
