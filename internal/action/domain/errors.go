package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrAdminProtected is returned when the target belongs to the administrative group.
	ErrAdminProtected = errors.New("target is admin-protected")
	// ErrProtectionCheck is returned when group membership could not be resolved. The action is refused.
	ErrProtectionCheck = errors.New("admin protection check unavailable")
	// ErrQueueUnavailable is returned when the queue entry could not be written.
	ErrQueueUnavailable = errors.New("action queue unavailable")
	// ErrNotReady means the worker has not written a result yet.
	ErrNotReady = errors.New("action result not ready")
	// ErrNotFound means the action_id is unknown.
	ErrNotFound = errors.New("action not found")
	// ErrWorkerFailure is matched by every WorkerFailureError.
	ErrWorkerFailure = errors.New("worker reported failure")
)

// ValidationError describes a malformed enqueue request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WorkerFailureError carries the worker's details text for an action that did not succeed.
// Unconfirmed is set when the result had no success flag the caller accepts.
type WorkerFailureError struct {
	ActionID    string
	Details     string
	Unconfirmed bool
}

func (e *WorkerFailureError) Error() string {
	if e.Unconfirmed {
		if e.Details == "" {
			return fmt.Sprintf("action %s: result carries no success flag", e.ActionID)
		}
		return fmt.Sprintf("action %s: result carries no success flag: %s", e.ActionID, e.Details)
	}
	if e.Details == "" {
		return fmt.Sprintf("action %s failed", e.ActionID)
	}
	return fmt.Sprintf("action %s failed: %s", e.ActionID, e.Details)
}

// Is makes errors.Is(err, ErrWorkerFailure) true.
func (e *WorkerFailureError) Is(target error) bool {
	return target == ErrWorkerFailure
}
