package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies engine errors so callers can decide on retries and the
// boundary layer can map them to transport responses.
type Kind int

const (
	// KindUnknown is the zero value, treated as an internal error
	KindUnknown Kind = iota

	// Permanent errors (caller must change something)
	KindValidation
	KindThreadLocked
	KindInvalidTransition
	KindCapabilityMissing
	KindNotFound

	// Transient errors (retryable)
	KindRateLimited
	KindVersionConflict
	KindUnavailable
)

// String returns the kind's label for logs and metrics
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindThreadLocked:
		return "thread_locked"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindCapabilityMissing:
		return "capability_missing"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindVersionConflict:
		return "version_conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Sentinel errors for the storage adapter contract. Adapters return these
// (possibly wrapped) so services can branch with errors.Is.
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrVersionConflict   = &Error{Kind: KindVersionConflict, Message: "version conflict"}
	ErrUnavailable       = &Error{Kind: KindUnavailable, Message: "backend unavailable"}
	ErrCapabilityMissing = &Error{Kind: KindCapabilityMissing, Message: "backend capability missing"}
)

// Error is a structured error with a kind, message and optional cause
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, so errors.Is(err, ErrVersionConflict) holds for
// any wrapped Error carrying the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the kind from an error chain, KindUnknown if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether the error is transient and worth retrying
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindVersionConflict, KindUnavailable:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error kind to the HTTP status the boundary layer returns
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindThreadLocked, KindInvalidTransition:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindVersionConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindCapabilityMissing:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors for common errors

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", what, id)}
}

func ThreadLocked(threadID string) *Error {
	return &Error{Kind: KindThreadLocked, Message: fmt.Sprintf("thread is locked: %s", threadID)}
}

func InvalidTransition(from, to string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("invalid transition: %s -> %s", from, to)}
}

func RateLimited(identityHash string) *Error {
	return &Error{Kind: KindRateLimited, Message: fmt.Sprintf("rate limit exceeded for %s", identityHash)}
}

func VersionConflict(key string, cause error) *Error {
	return &Error{Kind: KindVersionConflict, Message: fmt.Sprintf("version conflict on %s", key), Cause: cause}
}

func Unavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Cause: cause}
}

func CapabilityMissing(backend, capability string) *Error {
	return &Error{Kind: KindCapabilityMissing, Message: fmt.Sprintf("backend %s does not support %s", backend, capability)}
}
