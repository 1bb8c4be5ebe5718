package testing

import (
	"context"
	"testing"

	"github.com/riakpersist/riakpersist"
)

// ErrorsEqual checks to see if the provided errors are equivalent by code,
// op prefix and message.
func ErrorsEqual(t *testing.T, actual, expected error) {
	t.Helper()
	diffErrors(t.Name(), actual, expected, "", t)
}

func diffErrors(name string, actual, expected error, opPrefix string, t *testing.T) {
	t.Helper()

	if expected == nil && actual == nil {
		return
	}

	if expected == nil && actual != nil {
		t.Fatalf("%s failed, unexpected error %s", name, actual.Error())
	}

	if expected != nil && actual == nil {
		t.Fatalf("%s failed, expected error %s but received nil", name, expected.Error())
	}

	if riakpersist.ErrorCode(expected) != riakpersist.ErrorCode(actual) {
		t.Fatalf("%s failed, expected error code %q but received %q", name, riakpersist.ErrorCode(expected), riakpersist.ErrorCode(actual))
	}

	if opPrefix+riakpersist.ErrorOp(expected) != riakpersist.ErrorOp(actual) {
		t.Fatalf("%s failed, expected error op %q but received %q", name, opPrefix+riakpersist.ErrorOp(expected), riakpersist.ErrorOp(actual))
	}

	if riakpersist.ErrorMessage(expected) != riakpersist.ErrorMessage(actual) {
		t.Fatalf("%s failed, expected error message %q but received %q", name, riakpersist.ErrorMessage(expected), riakpersist.ErrorMessage(actual))
	}
}

// MustPut encodes obj and writes it to s, failing the test on error.
func MustPut(t *testing.T, s riakpersist.StoreClient, obj *riakpersist.StoredObject) {
	t.Helper()

	content, err := obj.Encode()
	if err != nil {
		t.Fatalf("failed to encode %s/%s: %v", obj.Bucket, obj.Key, err)
	}
	if err := s.Put(context.Background(), obj.Bucket, obj.Key, content); err != nil {
		t.Fatalf("failed to put %s/%s: %v", obj.Bucket, obj.Key, err)
	}
}
