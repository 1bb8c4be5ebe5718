package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/riakpersist/riakpersist"
)

// maxErrorBody bounds how much of an error response is kept in the message.
const maxErrorBody = 4 << 10

// CheckError reads the http.Response and returns an error if one exists.
// Every 2xx status is a success. 300 means the key has siblings.
func CheckError(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, maxErrorBody)); err != nil {
		return &riakpersist.Error{
			Code: riakpersist.EInternal,
			Msg:  "failed to read error response",
			Err:  err,
		}
	}

	msg := fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	if body := bytes.TrimSpace(buf.Bytes()); len(body) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return &riakpersist.Error{
		Code: statusCodeToErrorCode(resp.StatusCode),
		Msg:  msg,
	}
}

func statusCodeToErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusMultipleChoices, http.StatusConflict, http.StatusPreconditionFailed:
		return riakpersist.EConflict
	case http.StatusNotFound:
		return riakpersist.ENotFound
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return riakpersist.EInvalid
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return riakpersist.EUnavailable
	case http.StatusNotImplemented:
		return riakpersist.ENotImplemented
	default:
		return riakpersist.EInternal
	}
}
