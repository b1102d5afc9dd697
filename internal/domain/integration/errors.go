package integration

import (
	"errors"
	"fmt"
)

// Binding and local-store errors
var (
	// ErrBindingNotFound is returned when no binding exists for the lookup key
	ErrBindingNotFound = errors.New("integration: binding not found")
	// ErrBindingConflict is returned when a remote id is already bound for the same owner
	ErrBindingConflict = errors.New("integration: remote id already bound")
	// ErrBindingInvalid is returned when a binding fails validation
	ErrBindingInvalid = errors.New("integration: invalid binding")
	// ErrRecordNotFound is returned when the local record does not exist
	ErrRecordNotFound = errors.New("integration: local record not found")
	// ErrJobNotFound is returned when a sync job does not exist
	ErrJobNotFound = errors.New("integration: sync job not found")
	// ErrJobInvalidState is returned on an illegal job state transition
	ErrJobInvalidState = errors.New("integration: invalid job state transition")
	// ErrUnsupportedEntityType is returned when no mapper is registered for a type
	ErrUnsupportedEntityType = errors.New("integration: unsupported entity type")
	// ErrMalformedRepresentation is returned when remote data cannot be mapped
	ErrMalformedRepresentation = errors.New("integration: malformed remote representation")
)

// Remote directory errors
var (
	// ErrRemoteNotFound is returned when the remote entity does not exist (anymore)
	ErrRemoteNotFound = errors.New("integration: remote entity not found")
	// ErrRemoteUnavailable is returned on network failures or 5xx responses
	ErrRemoteUnavailable = errors.New("integration: remote directory unavailable")
	// ErrRemoteAuthFailed is returned when the remote rejects the credentials
	ErrRemoteAuthFailed = errors.New("integration: remote authentication failed")
	// ErrRemoteRateLimited is returned when the remote throttles requests
	ErrRemoteRateLimited = errors.New("integration: remote rate limit exceeded")
	// ErrRemoteRejected is returned when the remote refuses the payload as invalid
	ErrRemoteRejected = errors.New("integration: remote rejected request")
	// ErrRemoteVersionMismatch is returned when a conditional remote write loses the race
	ErrRemoteVersionMismatch = errors.New("integration: remote version mismatch")
)

// Lock errors
var (
	// ErrLockBusy is returned when a non-blocking row lock is held elsewhere
	ErrLockBusy = errors.New("integration: lock busy")
	// ErrLockTimeout is returned when an advisory lock cannot be obtained in time
	ErrLockTimeout = errors.New("integration: lock wait timed out")
)

// ErrorClass classifies a failed job attempt
type ErrorClass string

const (
	// ErrorClassRetryable marks a transient failure; the job is rescheduled
	ErrorClassRetryable ErrorClass = "RETRYABLE"
	// ErrorClassFatal marks a permanent failure; the job is recorded and not retried
	ErrorClassFatal ErrorClass = "FATAL"
)

// SyncError wraps a failure with its retry classification.
// Payload carries the offending representation for fatal errors so operators can inspect it.
type SyncError struct {
	Class   ErrorClass
	Op      string
	Err     error
	Payload map[string]string
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Class, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a retryable failure of op
func Retryable(op string, err error) *SyncError {
	return &SyncError{Class: ErrorClassRetryable, Op: op, Err: err}
}

// Fatal wraps err as a fatal failure of op
func Fatal(op string, err error) *SyncError {
	return &SyncError{Class: ErrorClassFatal, Op: op, Err: err}
}

// FatalWithPayload wraps err as a fatal failure and keeps the offending payload
func FatalWithPayload(op string, err error, payload map[string]string) *SyncError {
	return &SyncError{Class: ErrorClassFatal, Op: op, Err: err, Payload: payload}
}

// IsRetryable reports whether err should cause the job to be rescheduled.
// Unclassified errors are treated as retryable unless they wrap a known permanent sentinel.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassOf(err) == ErrorClassRetryable
}

// IsFatal reports whether err must not be retried
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return ClassOf(err) == ErrorClassFatal
}

// ClassOf returns the retry classification of err
func ClassOf(err error) ErrorClass {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Class
	}
	switch {
	case errors.Is(err, ErrRemoteRejected),
		errors.Is(err, ErrMalformedRepresentation),
		errors.Is(err, ErrUnsupportedEntityType),
		errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrBindingInvalid):
		return ErrorClassFatal
	}
	return ErrorClassRetryable
}
