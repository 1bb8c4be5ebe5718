package riakpersist

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes used across the persistence layer.
const (
	EInternal       = "internal error"
	ENotImplemented = "not implemented"
	ENotFound       = "not found"
	EConflict       = "conflict"
	EInvalid        = "invalid"
	EUnavailable    = "unavailable"
)

// Error is the error struct of the persistence layer.
//
// The Code targets automated handlers so that recovery can occur.
// Msg is used by the operator to help diagnose and fix the problem.
// Op and Err chain errors together in a logical stack trace.
//
// To create a simple error,
//
//	&Error{
//	    Code: ENotFound,
//	}
//
// To show where the error happens, add Op.
//
//	&Error{
//	    Code: EInvalid,
//	    Op:   "migration/Migrate",
//	}
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// NewError returns an instance of an error.
func NewError(options ...func(*Error)) *Error {
	err := &Error{}
	for _, o := range options {
		o(err)
	}

	return err
}

// WithErrorErr sets the err on the error.
func WithErrorErr(err error) func(*Error) {
	return func(e *Error) {
		e.Err = err
	}
}

// WithErrorCode sets the code on the error.
func WithErrorCode(code string) func(*Error) {
	return func(e *Error) {
		e.Code = code
	}
}

// WithErrorMsg sets the message on the error.
func WithErrorMsg(msg string) func(*Error) {
	return func(e *Error) {
		e.Msg = msg
	}
}

// WithErrorOp sets the op on the error.
func WithErrorOp(op string) func(*Error) {
	return func(e *Error) {
		e.Op = op
	}
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		fmt.Fprintf(&b, "<%s>", e.Code)
	}
	return b.String()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code of the root error, if available; otherwise returns EInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return EInternal
	}

	if e == nil {
		return ""
	}

	if e.Code != "" {
		return e.Code
	}

	if e.Err != nil {
		return ErrorCode(e.Err)
	}

	return EInternal
}

// ErrorOp returns the op of the error, if available; otherwise return empty string.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) || e == nil {
		return ""
	}

	if e.Op != "" {
		return e.Op
	}

	if e.Err != nil {
		return ErrorOp(e.Err)
	}

	return ""
}

// ErrorMessage returns the human-readable message of the error, if available.
// Otherwise returns a generic error message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return "An internal error has occurred."
	}

	if e == nil {
		return ""
	}

	if e.Msg != "" {
		return e.Msg
	}

	if e.Err != nil {
		return ErrorMessage(e.Err)
	}

	return "An internal error has occurred."
}

// ErrPhaselessUnsupported is returned when a map-reduce job without query
// phases is submitted to a node that cannot run it.
var ErrPhaselessUnsupported = &Error{
	Code: ENotImplemented,
	Msg:  "phase-less map-reduce is not supported by the node",
}

// MapReduceError is returned when a map-reduce submission fails on the node,
// either with a non-success status or with an error document in the body.
// The raw response is kept for diagnostics. Err is set when the body could
// not be read in full; Body then holds what was read.
type MapReduceError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error
}

func (e *MapReduceError) Error() string {
	msg := fmt.Sprintf("error running map-reduce operation: status %d headers %v body %q",
		e.StatusCode, e.Header, e.Body)
	if e.Err != nil {
		msg += ": reading body: " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the body read error, if any.
func (e *MapReduceError) Unwrap() error {
	return e.Err
}

// Reason extracts the "error" member of a JSON error document in the body,
// or returns the body as-is when it is not such a document.
func (e *MapReduceError) Reason() string {
	var doc struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &doc); err != nil || len(doc.Error) == 0 {
		return string(e.Body)
	}
	var s string
	if err := json.Unmarshal(doc.Error, &s); err == nil {
		return s
	}
	return string(doc.Error)
}
