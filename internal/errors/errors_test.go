package errors

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestWrapPreservesCodeThroughFmtWrapping(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := fmt.Errorf("list accounts: %w", Wrap(CodeStorageFailure, cause, "查询账号失败"))

	if got := CodeOf(err); got != CodeStorageFailure {
		t.Fatalf("expected %s, got %s", CodeStorageFailure, got)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable via errors.Is")
	}
	if !RetryableError(err) {
		t.Fatalf("storage failures should be retryable by default")
	}
	if !stdErrors.Is(err, New(CodeStorageFailure, "")) {
		t.Fatalf("expected errors.Is to match on code")
	}
}

func TestDefaultsAndOverrides(t *testing.T) {
	err := New(CodeNotFound, "")
	if err.Message() != "resource not found" {
		t.Fatalf("unexpected default message: %q", err.Message())
	}
	if err.Severity() != SeverityInfo {
		t.Fatalf("unexpected severity: %s", err.Severity())
	}
	if RetryableError(err) {
		t.Fatalf("not found should not be retryable")
	}
}

func TestUnregisteredCodeFallsBackToUnknown(t *testing.T) {
	err := New(Code("SOMETHING_ELSE"), "")
	if err.Message() != AttributesOf(CodeUnknown).Message {
		t.Fatalf("expected unknown message, got %q", err.Message())
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors should map to UNKNOWN")
	}
}

func TestLogAttrsIncludesMetadata(t *testing.T) {
	err := New(CodeConflict, "duplicate", WithMetadata("account_name", "Env Factory Account"))
	attrs := LogAttrs(err)

	found := map[string]string{}
	for _, a := range attrs {
		attr, ok := a.(slog.Attr)
		if !ok {
			t.Fatalf("unexpected attr type %T", a)
		}
		found[attr.Key] = attr.Value.String()
	}
	if found["code"] != string(CodeConflict) {
		t.Fatalf("missing code attr: %+v", found)
	}
	if found["account_name"] != "Env Factory Account" {
		t.Fatalf("missing metadata attr: %+v", found)
	}
	if LogAttrs(nil) != nil {
		t.Fatalf("nil error should produce no attrs")
	}
}
