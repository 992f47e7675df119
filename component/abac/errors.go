package abac

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed request before any policy is consulted.
// It maps to a 400-equivalent at the boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid authorization request: %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CollaboratorError signals that a relationship or consent lookup failed.
// It is a distinct failure mode from a deny: the caller decides whether to
// fail closed or retry, and the result is never cached.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s lookup unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// IsCollaboratorUnavailable reports whether err is (or wraps) a
// CollaboratorError.
func IsCollaboratorUnavailable(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}
