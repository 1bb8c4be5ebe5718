// Package mapreduce builds map-reduce job descriptions and decodes the
// responses a node sends back for them.
package mapreduce

import (
	"fmt"

	"github.com/riakpersist/riakpersist"
)

// Phase types.
const (
	PhaseMap    = "map"
	PhaseReduce = "reduce"
	PhaseLink   = "link"
)

// Func names the code a map or reduce phase runs.
type Func struct {
	Language string
	// Source is anonymous JavaScript source.
	Source string
	// Name is a named JavaScript function such as "Riak.mapValuesJson".
	Name string
	// Module and Function name an Erlang function.
	Module   string
	Function string
}

// JavaScript returns an anonymous JavaScript function.
func JavaScript(source string) Func {
	return Func{Language: "javascript", Source: source}
}

// JavaScriptNamed returns a named JavaScript function.
func JavaScriptNamed(name string) Func {
	return Func{Language: "javascript", Name: name}
}

// Erlang returns an Erlang module function.
func Erlang(module, function string) Func {
	return Func{Language: "erlang", Module: module, Function: function}
}

func (f Func) spec() (map[string]interface{}, error) {
	spec := map[string]interface{}{"language": f.Language}
	switch f.Language {
	case "javascript":
		switch {
		case f.Source != "":
			spec["source"] = f.Source
		case f.Name != "":
			spec["name"] = f.Name
		default:
			return nil, fmt.Errorf("javascript function needs a source or a name")
		}
	case "erlang":
		if f.Module == "" || f.Function == "" {
			return nil, fmt.Errorf("erlang function needs a module and a function")
		}
		spec["module"] = f.Module
		spec["function"] = f.Function
	default:
		return nil, fmt.Errorf("unknown language %q", f.Language)
	}
	return spec, nil
}

// Builder assembles a map-reduce job. Inputs are either a whole bucket, an
// index query or a list of bucket/key pairs; the kinds cannot be mixed.
type Builder struct {
	bucket string
	index  map[string]interface{}
	keys   []interface{}
	phases []riakpersist.MapReducePhase
	err    error
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) fail(format string, args ...interface{}) *Builder {
	if b.err == nil {
		b.err = &riakpersist.Error{
			Code: riakpersist.EInvalid,
			Op:   "mapreduce/Builder",
			Msg:  fmt.Sprintf(format, args...),
		}
	}
	return b
}

// Add adds a bucket/key input.
func (b *Builder) Add(bucket, key string) *Builder {
	if b.bucket != "" || b.index != nil {
		return b.fail("cannot add key inputs to a bucket or index job")
	}
	b.keys = append(b.keys, []interface{}{bucket, key})
	return b
}

// AddKeyData adds a bucket/key input carrying key data for the first phase.
func (b *Builder) AddKeyData(bucket, key string, keyData interface{}) *Builder {
	if b.bucket != "" || b.index != nil {
		return b.fail("cannot add key inputs to a bucket or index job")
	}
	b.keys = append(b.keys, []interface{}{bucket, key, keyData})
	return b
}

// AddBucket makes every key of bucket the job's input.
func (b *Builder) AddBucket(bucket string) *Builder {
	if len(b.keys) > 0 || b.index != nil {
		return b.fail("cannot add a bucket input to a key or index job")
	}
	b.bucket = bucket
	return b
}

// AddIndex makes the result of a secondary-index query the job's input: an
// exact match when end is empty, a range query otherwise. The query is
// passed through to the node as-is.
func (b *Builder) AddIndex(bucket, index, start, end string) *Builder {
	if len(b.keys) > 0 || b.bucket != "" {
		return b.fail("cannot add an index input to a key or bucket job")
	}
	b.index = map[string]interface{}{"bucket": bucket, "index": index}
	if end == "" {
		b.index["key"] = start
	} else {
		b.index["start"] = start
		b.index["end"] = end
	}
	return b
}

// Map adds a map phase. A nil arg is omitted.
func (b *Builder) Map(fn Func, keep bool, arg interface{}) *Builder {
	return b.addFunc(PhaseMap, fn, keep, arg)
}

// Reduce adds a reduce phase. A nil arg is omitted.
func (b *Builder) Reduce(fn Func, keep bool, arg interface{}) *Builder {
	return b.addFunc(PhaseReduce, fn, keep, arg)
}

func (b *Builder) addFunc(typ string, fn Func, keep bool, arg interface{}) *Builder {
	spec, err := fn.spec()
	if err != nil {
		return b.fail("%s phase: %v", typ, err)
	}
	spec["keep"] = keep
	if arg != nil {
		spec["arg"] = arg
	}
	b.phases = append(b.phases, riakpersist.MapReducePhase{Type: typ, Spec: spec})
	return b
}

// Link adds a link phase. Empty bucket or tag match anything.
func (b *Builder) Link(bucket, tag string, keep bool) *Builder {
	if bucket == "" {
		bucket = "_"
	}
	if tag == "" {
		tag = "_"
	}
	b.phases = append(b.phases, riakpersist.MapReducePhase{
		Type: PhaseLink,
		Spec: map[string]interface{}{"bucket": bucket, "tag": tag, "keep": keep},
	})
	return b
}

// Job returns the assembled job. When no phase asks to keep its output the
// last phase is kept.
func (b *Builder) Job() (*riakpersist.MapReduceJob, error) {
	if b.err != nil {
		return nil, b.err
	}

	job := &riakpersist.MapReduceJob{Query: make([]riakpersist.MapReducePhase, len(b.phases))}
	switch {
	case b.bucket != "":
		job.Inputs = b.bucket
	case b.index != nil:
		job.Inputs = b.index
	default:
		job.Inputs = append([]interface{}{}, b.keys...)
	}

	keep := false
	for i, p := range b.phases {
		spec := make(map[string]interface{}, len(p.Spec))
		for k, v := range p.Spec {
			spec[k] = v
		}
		job.Query[i] = riakpersist.MapReducePhase{Type: p.Type, Spec: spec}
		if k, _ := spec["keep"].(bool); k {
			keep = true
		}
	}
	if !keep && len(job.Query) > 0 {
		job.Query[len(job.Query)-1].Spec["keep"] = true
	}
	return job, nil
}
