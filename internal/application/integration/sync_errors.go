package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
)

// classifyRemote turns a remote directory failure into a SyncError.
// Rejected payloads and undecodable representations are fatal and keep the
// payload; transport failures are retryable.
func classifyRemote(op string, err error, payload map[string]string) error {
	var se *integration.SyncError
	if errors.As(err, &se) {
		return err
	}
	if integration.ClassOf(err) == integration.ErrorClassFatal {
		return integration.FatalWithPayload(op, err, payload)
	}
	return integration.Retryable(op, err)
}

// classifyLock wraps a lock failure. Contention is retryable; anything else
// (a vanished row, a broken connection) is classified like a local store error.
func classifyLock(op string, err error) error {
	if errors.Is(err, integration.ErrLockBusy) || errors.Is(err, integration.ErrLockTimeout) {
		return integration.Retryable(op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return integration.Retryable(op, fmt.Errorf("%w: %v", integration.ErrLockTimeout, err))
	}
	return classifyLocal(op, err)
}

// classifyLocal wraps a local store failure
func classifyLocal(op string, err error) error {
	var se *integration.SyncError
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, integration.ErrRecordNotFound),
		errors.Is(err, integration.ErrBindingInvalid),
		errors.Is(err, integration.ErrUnsupportedEntityType):
		return integration.Fatal(op, err)
	case errors.Is(err, integration.ErrBindingConflict):
		// a racing import bound the same remote id; the retry will resolve it
		return integration.Retryable(op, err)
	}
	return integration.Retryable(op, err)
}
