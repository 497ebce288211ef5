package errdefs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		check       func(error) bool
		recoverable bool
	}{
		{"parse", NewParseError("bad", nil), IsParse, false},
		{"resolve", NewResolveError("missing", nil), IsResolve, false},
		{"configuration", NewConfigurationError("bad settings", nil), IsConfiguration, false},
		{"not supported", NewNotSupportedError("no fetch", nil), IsNotSupported, false},
		{"internal", NewInternalError("broken", nil), IsInternal, false},
		{"disposed", ErrDisposed, IsDisposed, false},
		{"rate limit", NewTransportError(KindRateLimit, "429", nil), IsTransport, true},
		{"server error", NewTransportError(KindServerError, "500", nil), IsTransport, true},
		{"unavailable", NewTransportError(KindServiceUnavailable, "503", nil), IsTransport, true},
		{"other transport", NewTransportError(KindOther, "401", nil), IsTransport, false},
		{"plain error", errors.New("boom"), func(error) bool { return true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("classification check failed for %v", tt.err)
			}
			if got := IsRecoverable(tt.err); got != tt.recoverable {
				t.Errorf("IsRecoverable() = %v, want %v", got, tt.recoverable)
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTransportError(KindServerError, "fetch failed", cause).WithPath("Account.Bank")
	wrapped := fmt.Errorf("resolve: %w", err)

	if !errors.Is(wrapped, cause) {
		t.Error("expected wrapped error to match cause")
	}
	if !IsRecoverable(wrapped) {
		t.Error("expected wrapped error to stay recoverable")
	}
	kind, ok := TransportKindOf(wrapped)
	if !ok || kind != KindServerError {
		t.Errorf("TransportKindOf() = %v, %v", kind, ok)
	}
	if _, ok := TransportKindOf(NewParseError("x", nil)); ok {
		t.Error("parse error must not report a transport kind")
	}
	if got := ClassOf(wrapped); got != ClassTransport {
		t.Errorf("ClassOf() = %q, want %q", got, ClassTransport)
	}
	if got := ClassOf(cause); got != "" {
		t.Errorf("ClassOf(plain) = %q, want empty", got)
	}
}

func TestErrorIs(t *testing.T) {
	err := NewParseError("unbalanced", nil).WithCode(ErrCodeUnbalancedBracket)
	if !errors.Is(err, &Error{Class: ClassParse, Code: ErrCodeUnbalancedBracket}) {
		t.Error("expected class and code match")
	}
	if errors.Is(err, &Error{Class: ClassParse, Code: ErrCodeEmptySegment}) {
		t.Error("different code must not match")
	}
	if !errors.Is(fmt.Errorf("x: %w", ErrDisposed), ErrDisposed) {
		t.Error("expected ErrDisposed to match through wrapping")
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewTransportError(KindRateLimit, "fetch failed", errors.New("429")).
		WithQuery("Account.Bank[INT:5]").
		WithPath("Account.Bank")

	want := "[transport/rate_limit] fetch failed (query=Account.Bank[INT:5], path=Account.Bank): 429"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
