// Package errdefs defines the classified error type shared by every pathq package.
// Callers branch on the class with the Is* helpers rather than on message text.
package errdefs

import (
	"errors"
	"fmt"
)

// Class represents the classification of an error for propagation and fallback logic.
type Class string

const (
	// ClassParse indicates malformed query text.
	ClassParse Class = "parse"

	// ClassResolve indicates a well-formed query that does not address a live resource,
	// an empty fetch result, or a value whose shape cannot satisfy the query.
	ClassResolve Class = "resolve"

	// ClassConfiguration indicates inconsistent settings supplied by the caller.
	ClassConfiguration Class = "configuration"

	// ClassTransport indicates a failure raised by the remote capability graph.
	// See Kind for whether it is recoverable.
	ClassTransport Class = "transport"

	// ClassNotSupported indicates a resolved resource whose shape cannot be cached.
	ClassNotSupported Class = "not_supported"

	// ClassInternal indicates a violated internal invariant. Always a bug.
	ClassInternal Class = "internal"

	// ClassDisposed indicates use of a component after Close.
	ClassDisposed Class = "disposed"
)

// TransportKind classifies a transport failure.
type TransportKind string

const (
	// KindRateLimit indicates the remote side throttled the request.
	KindRateLimit TransportKind = "rate_limit"

	// KindServerError indicates a generic server-side failure.
	KindServerError TransportKind = "server_error"

	// KindServiceUnavailable indicates the remote service is temporarily down.
	KindServiceUnavailable TransportKind = "service_unavailable"

	// KindOther covers every other transport failure. Not recoverable.
	KindOther TransportKind = "other"
)

// Recoverable reports whether a failure of this kind is eligible for retry and fallback.
func (k TransportKind) Recoverable() bool {
	return k == KindRateLimit || k == KindServerError || k == KindServiceUnavailable
}

// Error represents a classified error with context.
type Error struct {
	// Class is the error classification.
	Class Class `json:"class"`

	// Kind is set for transport errors only.
	Kind TransportKind `json:"kind,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Query is the query text being processed, if known.
	Query string `json:"query,omitempty"`

	// Path is the resolved resource path, if known.
	Path string `json:"path,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	label := string(e.Class)
	if e.Kind != "" {
		label = label + "/" + string(e.Kind)
	}

	msg := fmt.Sprintf("[%s] %s", label, e.Message)
	switch {
	case e.Query != "" && e.Path != "":
		msg = fmt.Sprintf("%s (query=%s, path=%s)", msg, e.Query, e.Path)
	case e.Query != "":
		msg = fmt.Sprintf("%s (query=%s)", msg, e.Query)
	case e.Path != "":
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// Two errors match when class and code are equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// Recoverable reports whether the error is a recoverable transport failure.
func (e *Error) Recoverable() bool {
	return e.Class == ClassTransport && e.Kind.Recoverable()
}

func newError(class Class, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

// NewParseError creates a new parse error.
func NewParseError(message string, err error) *Error {
	return newError(ClassParse, message, err)
}

// NewResolveError creates a new resolve error.
func NewResolveError(message string, err error) *Error {
	return newError(ClassResolve, message, err)
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *Error {
	return newError(ClassConfiguration, message, err)
}

// NewTransportError creates a new transport error of the given kind.
func NewTransportError(kind TransportKind, message string, err error) *Error {
	e := newError(ClassTransport, message, err)
	e.Kind = kind
	return e
}

// NewNotSupportedError creates a new not-supported error.
func NewNotSupportedError(message string, err error) *Error {
	return newError(ClassNotSupported, message, err).WithCode(ErrCodeQueryNotSupported)
}

// NewInternalError creates a new internal invariant error.
func NewInternalError(message string, err error) *Error {
	return newError(ClassInternal, message, err).WithCode(ErrCodeInvariant)
}

// ErrDisposed is returned by every operation invoked after Close.
var ErrDisposed = &Error{Class: ClassDisposed, Message: "component has been closed", Code: ErrCodeDisposed}

// WithQuery adds query context to an error.
func (e *Error) WithQuery(query string) *Error {
	e.Query = query
	return e
}

// WithPath adds resolved-path context to an error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func classOf(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ClassOf returns the class of err, or "" when err is not classified.
func ClassOf(err error) Class {
	if e, ok := classOf(err); ok {
		return e.Class
	}
	return ""
}

func hasClass(err error, class Class) bool {
	e, ok := classOf(err)
	return ok && e.Class == class
}

// IsParse returns true if the error is classified as a parse error.
func IsParse(err error) bool { return hasClass(err, ClassParse) }

// IsResolve returns true if the error is classified as a resolve error.
func IsResolve(err error) bool { return hasClass(err, ClassResolve) }

// IsConfiguration returns true if the error is classified as a configuration error.
func IsConfiguration(err error) bool { return hasClass(err, ClassConfiguration) }

// IsTransport returns true if the error is classified as a transport error.
func IsTransport(err error) bool { return hasClass(err, ClassTransport) }

// IsNotSupported returns true if the error signals an unsupported query.
func IsNotSupported(err error) bool { return hasClass(err, ClassNotSupported) }

// IsInternal returns true if the error signals a violated invariant.
func IsInternal(err error) bool { return hasClass(err, ClassInternal) }

// IsDisposed returns true if the error signals use after Close.
func IsDisposed(err error) bool { return hasClass(err, ClassDisposed) }

// IsRecoverable returns true if the error is a rate-limit, server-error or
// service-unavailable transport failure.
func IsRecoverable(err error) bool {
	e, ok := classOf(err)
	return ok && e.Recoverable()
}

// TransportKindOf returns the transport kind carried by err.
// The second result is false when err is not a transport error.
func TransportKindOf(err error) (TransportKind, bool) {
	e, ok := classOf(err)
	if !ok || e.Class != ClassTransport {
		return "", false
	}
	if e.Kind == "" {
		return KindOther, true
	}
	return e.Kind, true
}

// Common error codes.
const (
	ErrCodeUnbalancedBracket  = "UNBALANCED_BRACKET"
	ErrCodeEmptySegment       = "EMPTY_SEGMENT"
	ErrCodeUnknownType        = "UNKNOWN_TYPE"
	ErrCodeUnexpectedToken    = "UNEXPECTED_TOKEN"
	ErrCodeBadLiteral         = "BAD_LITERAL"
	ErrCodeNoEndpoint         = "NO_ENDPOINT"
	ErrCodeUnresolvedVariable = "UNRESOLVED_VARIABLE"
	ErrCodeEmptyResult        = "EMPTY_RESULT"
	ErrCodeShapeMismatch      = "SHAPE_MISMATCH"
	ErrCodeMissingResolver    = "MISSING_VARIABLE_RESOLVER"
	ErrCodeInvalidSettings    = "INVALID_SETTINGS"
	ErrCodeQueryNotSupported  = "QUERY_NOT_SUPPORTED"
	ErrCodeInvariant          = "INVARIANT_VIOLATED"
	ErrCodeDisposed           = "DISPOSED"
)
