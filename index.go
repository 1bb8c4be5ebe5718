package riakpersist

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// IndexEntry is a single secondary-index entry of a stored object.
type IndexEntry struct {
	Name  string
	Value string
}

// Indexes is the canonical form of a set of index entries: sorted by name,
// then value, without duplicates.
type Indexes []IndexEntry

func (idx Indexes) Len() int      { return len(idx) }
func (idx Indexes) Swap(i, j int) { idx[i], idx[j] = idx[j], idx[i] }
func (idx Indexes) Less(i, j int) bool {
	if idx[i].Name != idx[j].Name {
		return idx[i].Name < idx[j].Name
	}
	return idx[i].Value < idx[j].Value
}

// Values returns every value indexed under name.
func (idx Indexes) Values(name string) []string {
	var vals []string
	for _, e := range idx {
		if e.Name == name {
			vals = append(vals, e.Value)
		}
	}
	return vals
}

func canonical(entries []IndexEntry) Indexes {
	if len(entries) == 0 {
		return Indexes{}
	}
	out := make(Indexes, len(entries))
	copy(out, entries)
	sort.Sort(out)

	uniq := out[:1]
	for _, e := range out[1:] {
		if e != uniq[len(uniq)-1] {
			uniq = append(uniq, e)
		}
	}
	return uniq
}

// NormalizeIndexes converts the index metadata of a fetch result into the
// canonical ordered pairs. The store may hand indexes back either as a
// mapping of name to value(s) or as a list of (name, value) pairs; both
// shapes normalize to the same result.
func NormalizeIndexes(raw interface{}) (Indexes, error) {
	var entries []IndexEntry
	switch v := raw.(type) {
	case nil:
	case Indexes:
		entries = v
	case []IndexEntry:
		entries = v
	case map[string]string:
		for name, val := range v {
			entries = append(entries, IndexEntry{Name: name, Value: val})
		}
	case map[string][]string:
		for name, vals := range v {
			for _, val := range vals {
				entries = append(entries, IndexEntry{Name: name, Value: val})
			}
		}
	case map[string]interface{}:
		for name, val := range v {
			vals, err := indexValues(val)
			if err != nil {
				return nil, indexShapeError(fmt.Errorf("index %q: %w", name, err))
			}
			for _, s := range vals {
				entries = append(entries, IndexEntry{Name: name, Value: s})
			}
		}
	case [][2]string:
		for _, p := range v {
			entries = append(entries, IndexEntry{Name: p[0], Value: p[1]})
		}
	case [][]string:
		for _, p := range v {
			if len(p) != 2 {
				return nil, indexShapeError(fmt.Errorf("pair of length %d", len(p)))
			}
			entries = append(entries, IndexEntry{Name: p[0], Value: p[1]})
		}
	case []interface{}:
		for _, item := range v {
			p, ok := item.([]interface{})
			if !ok || len(p) != 2 {
				return nil, indexShapeError(fmt.Errorf("unexpected pair %v", item))
			}
			name, ok := p[0].(string)
			if !ok {
				return nil, indexShapeError(fmt.Errorf("index name %v is not a string", p[0]))
			}
			val, err := scalarString(p[1])
			if err != nil {
				return nil, indexShapeError(fmt.Errorf("index %q: %w", name, err))
			}
			entries = append(entries, IndexEntry{Name: name, Value: val})
		}
	case json.RawMessage:
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err != nil {
			return nil, indexShapeError(err)
		}
		return NormalizeIndexes(decoded)
	default:
		return nil, indexShapeError(fmt.Errorf("unsupported index shape %T", raw))
	}
	return canonical(entries), nil
}

func indexValues(v interface{}) ([]string, error) {
	if list, ok := v.([]interface{}); ok {
		vals := make([]string, 0, len(list))
		for _, item := range list {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			vals = append(vals, s)
		}
		return vals, nil
	}
	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func scalarString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	default:
		return "", fmt.Errorf("unsupported index value %T", v)
	}
}

func indexShapeError(err error) error {
	return &Error{
		Code: EInvalid,
		Op:   "riakpersist/NormalizeIndexes",
		Msg:  "malformed index metadata",
		Err:  err,
	}
}
