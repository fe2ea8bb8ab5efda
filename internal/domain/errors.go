package domain

import "fmt"

// Error types for consistent error handling across the CRM engine.

// ErrNotFound indicates a lead, meeting, cadence or touch does not exist.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates the input does not match the expected shape
// (unknown stage key, invalid calendar date, bad cadence type...).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrPreconditionFailed is returned when a stage transition is attempted
// without its mandatory side-effect data. Requirement is shown to the user
// so the caller can prompt for it.
type ErrPreconditionFailed struct {
	Stage       Stage
	Requirement string
}

func (e *ErrPreconditionFailed) Error() string {
	return fmt.Sprintf("precondition failed for stage '%s': %s", e.Stage, e.Requirement)
}

// ErrExternalService indicates a failure in a storage or transport collaborator.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrUnauthorized indicates a missing or invalid actor token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
