package errs

import (
	"errors"
	"io"
	"testing"
)

func TestCodeErrorIsMatchesByCode(t *testing.T) {
	err := ErrUpload.WrapMsg("put object", "key", "1.png")
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if errors.Is(err, ErrStore) {
		t.Fatalf("upload error must not match store error")
	}
	ce, ok := As(err)
	if !ok || ce.Code != UploadError {
		t.Fatalf("As() = %v, %v", ce, ok)
	}
	if ce.Detail != "put object, key=1.png" {
		t.Fatalf("detail = %q", ce.Detail)
	}
}

func TestCauseKeepsUnderlyingError(t *testing.T) {
	err := ErrStore.Cause(io.ErrUnexpectedEOF, "sender", "u1")
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected store error")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected underlying cause to be reachable")
	}
	if ErrStore.Cause(nil) != nil {
		t.Fatalf("nil cause must stay nil")
	}
}

func TestErrPanic(t *testing.T) {
	if ErrPanic(nil) != nil {
		t.Fatalf("nil recover value must give nil error")
	}
	if err := ErrPanic("boom"); !errors.Is(err, ErrServerInternal) {
		t.Fatalf("panic error = %v", err)
	}
}
