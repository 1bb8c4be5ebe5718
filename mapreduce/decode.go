package mapreduce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/riakpersist/riakpersist"
)

// DecodeResponse decodes the response of a map-reduce submission. It does
// not close the response body.
func DecodeResponse(resp *http.Response) ([]interface{}, error) {
	return Decode(resp.StatusCode, resp.Header, resp.Body)
}

// Decode decodes a map-reduce response body.
//
// A multipart body is a stream of chunks, each a JSON object holding the
// index of the phase that produced it and a list of rows. Rows are gathered
// per phase in arrival order, and only the rows of the highest phase seen are
// returned: earlier phases are discarded.
//
// Any other body is a single JSON document. An empty body means no results.
// An error document fails with a *riakpersist.MapReduceError, as does a
// non-success status.
func Decode(statusCode int, header http.Header, body io.Reader) ([]interface{}, error) {
	if statusCode != http.StatusOK {
		raw, err := io.ReadAll(body)
		return nil, &riakpersist.MapReduceError{StatusCode: statusCode, Header: header, Body: raw, Err: err}
	}

	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, decodeError(fmt.Errorf("multipart response without boundary"))
		}
		return decodeChunks(statusCode, header, multipart.NewReader(body, boundary))
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return decodeDocument(statusCode, header, raw)
}

func decodeDocument(statusCode int, header http.Header, raw []byte) ([]interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []interface{}{}, nil
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, decodeError(err)
	}
	switch v := doc.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		if _, ok := v["error"]; ok {
			return nil, &riakpersist.MapReduceError{StatusCode: statusCode, Header: header, Body: raw}
		}
	}
	return []interface{}{doc}, nil
}

func decodeChunks(statusCode int, header http.Header, mr *multipart.Reader) ([]interface{}, error) {
	phases := make(map[int64][]interface{})
	var last int64
	seen := false

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, decodeError(err)
		}
		chunk, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, decodeError(err)
		}

		if _, _, _, err := jsonparser.Get(chunk, "error"); err == nil {
			return nil, &riakpersist.MapReduceError{StatusCode: statusCode, Header: header, Body: chunk}
		}
		phase, rows, err := decodeChunk(chunk)
		if err != nil {
			return nil, err
		}
		if _, ok := phases[phase]; !ok {
			phases[phase] = []interface{}{}
		}
		phases[phase] = append(phases[phase], rows...)
		if !seen || phase > last {
			last = phase
			seen = true
		}
	}

	if !seen {
		return []interface{}{}, nil
	}
	return phases[last], nil
}

func decodeChunk(chunk []byte) (int64, []interface{}, error) {
	phase, err := jsonparser.GetInt(chunk, "phase")
	if err != nil {
		return 0, nil, decodeError(fmt.Errorf("chunk phase: %w", err))
	}
	data, typ, _, err := jsonparser.Get(chunk, "data")
	if err != nil {
		return 0, nil, decodeError(fmt.Errorf("chunk data: %w", err))
	}
	if typ != jsonparser.Array {
		return 0, nil, decodeError(fmt.Errorf("chunk data is a %s, not an array", typ))
	}
	rows := []interface{}{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, nil, decodeError(err)
	}
	return phase, rows, nil
}

func decodeError(err error) error {
	return &riakpersist.Error{
		Code: riakpersist.EInvalid,
		Op:   "mapreduce/Decode",
		Msg:  "malformed map-reduce response",
		Err:  err,
	}
}
