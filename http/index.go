package http

import (
	"net/http"
	"strings"

	"github.com/riakpersist/riakpersist"
)

const indexHeaderPrefix = "X-Riak-Index-"

// indexHeaders renders index entries as X-Riak-Index-* headers, one header
// value per entry.
func indexHeaders(indexes riakpersist.Indexes) http.Header {
	h := make(http.Header, len(indexes))
	for _, e := range indexes {
		h.Add(indexHeaderPrefix+e.Name, e.Value)
	}
	return h
}

// indexesFromHeader collects the index headers of a fetch response into a
// mapping of index name to values. The node lowercases index names, and
// may join several values of one index with commas.
func indexesFromHeader(h http.Header) map[string][]string {
	out := map[string][]string{}
	prefix := strings.ToLower(indexHeaderPrefix)
	for k, vals := range h {
		lk := strings.ToLower(k)
		if !strings.HasPrefix(lk, prefix) {
			continue
		}
		name := lk[len(prefix):]
		for _, v := range vals {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out[name] = append(out[name], part)
				}
			}
		}
	}
	return out
}
