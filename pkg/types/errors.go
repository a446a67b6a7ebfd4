package types

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Subsystem failures are converted to degradation at
// the orchestrator boundary; only ErrServiceUnavailable and validation
// errors ever reach a caller.
var (
	// ErrNotFound marks an unknown entity or seed. Callers treat it as
	// an empty result, not a fault.
	ErrNotFound = errors.New("not found")

	// ErrBackendUnavailable marks a graph or vector subsystem that is
	// down. Distinct from generic errors so the orchestrator can degrade.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrServiceUnavailable is returned when both retrieval subsystems
	// are down and no usable result exists.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout marks a branch or query that exceeded its budget.
	ErrTimeout = errors.New("query timed out")
)

// ValidationError rejects malformed queries or ingestion input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is implements errors.Is support for ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ConflictError marks a dedup merge race. It is resolved deterministically
// by quality score and never surfaced to callers.
type ConflictError struct {
	EntityID string
	Message  string
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("merge conflict on entity %s", e.EntityID)
	}
	return e.Message
}

// Is implements errors.Is support for ConflictError.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}

// NewValidationError creates a validation error for a named field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
