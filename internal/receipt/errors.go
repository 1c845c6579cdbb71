package receipt

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures. Low confidence is not a kind: it is
// a designed signal carried on the result, never an error.
type ErrorKind string

const (
	// KindInvalidInput marks an empty, corrupt, non-image or oversized
	// buffer. Fatal to the request, never retried.
	KindInvalidInput ErrorKind = "invalid_input"

	// KindTimeout marks a stage timer firing. Recoverable at the pipeline
	// level by skipping to the next strategy or falling back to manual entry.
	KindTimeout ErrorKind = "processing_timeout"

	// KindBackendUnavailable marks an optional imaging or OCR backend being
	// absent. Always recoverable via the defined fallback path.
	KindBackendUnavailable ErrorKind = "backend_unavailable"
)

// Error is the typed error every stage converts its internal failures into.
// Nothing below the pipeline entry point lets an un-typed error escape.
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewInvalidInput wraps err as an InvalidInput error for the given stage.
func NewInvalidInput(stage string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Stage: stage, Err: err}
}

// NewTimeout wraps err as a ProcessingTimeout error for the given stage.
func NewTimeout(stage string, err error) *Error {
	return &Error{Kind: KindTimeout, Stage: stage, Err: err}
}

// NewBackendUnavailable wraps err as a BackendUnavailable error for the given stage.
func NewBackendUnavailable(stage string, err error) *Error {
	return &Error{Kind: KindBackendUnavailable, Stage: stage, Err: err}
}

// IsKind reports whether err is (or wraps) a pipeline Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
