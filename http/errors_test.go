package http

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/riakpersist/riakpersist"
	platformtesting "github.com/riakpersist/riakpersist/testing"
)

func TestCheckError(t *testing.T) {
	for _, tt := range []struct {
		name  string
		write func(w *http.Response)
		want  error
	}{
		{
			name: "success",
			write: func(w *http.Response) {
				w.StatusCode = http.StatusNoContent
			},
		},
		{
			name: "siblings",
			write: func(w *http.Response) {
				w.StatusCode = http.StatusMultipleChoices
				w.Body = io.NopCloser(strings.NewReader("Siblings:\n1\n2\n"))
			},
			want: &riakpersist.Error{
				Code: riakpersist.EConflict,
				Msg:  "unexpected status code: 300: Siblings:\n1\n2",
			},
		},
		{
			name: "bad request",
			write: func(w *http.Response) {
				w.StatusCode = http.StatusBadRequest
			},
			want: &riakpersist.Error{
				Code: riakpersist.EInvalid,
				Msg:  "unexpected status code: 400",
			},
		},
		{
			name: "overloaded",
			write: func(w *http.Response) {
				w.StatusCode = http.StatusServiceUnavailable
				w.Body = io.NopCloser(strings.NewReader("overload"))
			},
			want: &riakpersist.Error{
				Code: riakpersist.EUnavailable,
				Msg:  "unexpected status code: 503: overload",
			},
		},
		{
			name: "not found",
			write: func(w *http.Response) {
				w.StatusCode = http.StatusNotFound
			},
			want: &riakpersist.Error{
				Code: riakpersist.ENotFound,
				Msg:  "unexpected status code: 404",
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Body: io.NopCloser(strings.NewReader(""))}
			tt.write(resp)
			platformtesting.ErrorsEqual(t, CheckError(resp), tt.want)
		})
	}
}
