package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels). Handlers map these onto HTTP status codes;
// everything unrecognised falls through to ErrInternal.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrRateLimited     = errors.New("rate limited")
	ErrNotFound        = errors.New("not found")
	ErrNoBackends      = errors.New("no backends available")
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenInvalid    = errors.New("token invalid")
	ErrInternal        = errors.New("internal error")
)

// Errorf wraps a sentinel with formatted detail.
func Errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}

// WorkerErrorKind classifies a single worker failure inside a fan-out.
type WorkerErrorKind string

// Worker failure classes.
const (
	WorkerErrUnreachable WorkerErrorKind = "unreachable"
	WorkerErrTimeout     WorkerErrorKind = "timeout"
	WorkerErrHTTP        WorkerErrorKind = "http"
	WorkerErrMalformed   WorkerErrorKind = "malformed"
)

// WorkerError is a per-worker failure. It is recorded in the result but
// fails the request only when every selected worker fails.
type WorkerError struct {
	Worker string          `json:"worker"`
	Kind   WorkerErrorKind `json:"kind"`
	Status int             `json:"status,omitempty"`
	Detail string          `json:"detail,omitempty"`
}

// Error implements error. HTTP failures render as HTTP(code) to keep the
// wire label stable.
func (e *WorkerError) Error() string {
	if e.Kind == WorkerErrHTTP {
		return fmt.Sprintf("worker %s: HTTP(%d)", e.Worker, e.Status)
	}
	return fmt.Sprintf("worker %s: %s", e.Worker, e.Kind)
}

// Label returns the canonical error-class label, e.g. "HTTP(500)".
func (e *WorkerError) Label() string {
	if e.Kind == WorkerErrHTTP {
		return fmt.Sprintf("HTTP(%d)", e.Status)
	}
	switch e.Kind {
	case WorkerErrUnreachable:
		return "Unreachable"
	case WorkerErrTimeout:
		return "Timeout"
	case WorkerErrMalformed:
		return "Malformed"
	}
	return string(e.Kind)
}

// AsWorkerError unwraps err into a *WorkerError when possible.
func AsWorkerError(err error) (*WorkerError, bool) {
	var we *WorkerError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// StageFailure terminates one training job. It never escapes the
// supervisor; the affected job transitions to Failed and the process
// keeps running.
type StageFailure struct {
	Stage  TrainingStage
	Detail string
	Err    error
}

func (e *StageFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s failed: %s: %v", e.Stage, e.Detail, e.Err)
	}
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Detail)
}

func (e *StageFailure) Unwrap() error { return e.Err }
