// Package ingesterr defines the typed error kinds used across the control
// plane (spec §7). It is the internal analogue of the teacher's
// errors.APIError: a small structured error type callers can branch on by
// kind, instead of a public HTTP-facing error writer.
package ingesterr

import "fmt"

// Kind is one of the error kinds the orchestrator's API, steps and recovery
// workers can produce.
type Kind string

const (
	InvalidTransition   Kind = "invalid_transition"
	ConfigError         Kind = "config_error"
	NotFound            Kind = "not_found"
	PreconditionFailed  Kind = "precondition_failed"
	ExternalUnavailable Kind = "external_unavailable"
	Timeout             Kind = "timeout"
	WorkerDisconnected  Kind = "worker_disconnected"
	DuplicateWork       Kind = "duplicate_work"
	PathTranslationErr  Kind = "path_translation_error"
	IntegrityError      Kind = "integrity_error"
)

// Error is the structured error type returned by control-plane operations.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind wrapping a cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and the
// zero Kind + false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ie, ok := err.(*Error); ok {
			e = ie
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
