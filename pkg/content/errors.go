package content

import (
	"errors"
	"fmt"
)

// Sentinel errors distinguish the outcomes callers must be able to branch on.
// Everything else a service returns is an *OpError wrapping the internal
// cause; the cause is logged at the point of capture and never shown to the
// external caller.
var (
	// ErrUnauthorized means the permission check evaluated to false. It is a
	// legitimate denial, not a backend failure.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed input rejected before any transaction or
// remote call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// OpError is the single error family surfaced by orchestration services.
// Op/Entity identify the failed operation; Err carries the internal cause
// for logging and errors.Is/As inspection.
type OpError struct {
	Op     string
	Entity string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err as a failure of the given operation.
func NewOpError(op, entity string, err error) *OpError {
	return &OpError{Op: op, Entity: entity, Err: err}
}

// IsUnauthorized reports whether err is a permission denial.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound reports whether err is a missing-entity error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err was rejected during input validation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
