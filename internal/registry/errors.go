package registry

import (
	"errors"
	"fmt"
)

// RegistryError is returned for failed registrations and resolutions.
//
// Error categories:
//   - Conflict: same identity registered with different content
//   - Unknown ref: a ref that no arena entry backs
//   - Unknown name: a name or label that resolves to nothing
//   - Bad spec: a pipeline spec that is structurally unusable
type RegistryError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Name is the offending name, path, or label, when known.
	Name string
}

// ErrorCode categorizes registry errors.
type ErrorCode string

const (
	// ErrCodeConflict indicates an identity was re-registered with
	// different content.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeUnknownRef indicates a ref outside the arena.
	ErrCodeUnknownRef ErrorCode = "UNKNOWN_REF"

	// ErrCodeUnknownName indicates a name that resolves to nothing.
	ErrCodeUnknownName ErrorCode = "UNKNOWN_NAME"

	// ErrCodeBadSpec indicates a structurally unusable pipeline spec.
	ErrCodeBadSpec ErrorCode = "BAD_SPEC"
)

// Error implements the error interface.
func (e *RegistryError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConflict returns true if err is a conflict error.
// Uses errors.As to handle wrapped errors.
func IsConflict(err error) bool {
	var re *RegistryError
	return errors.As(err, &re) && re.Code == ErrCodeConflict
}

// IsUnknownRef returns true if err is an unknown-ref error.
func IsUnknownRef(err error) bool {
	var re *RegistryError
	return errors.As(err, &re) && re.Code == ErrCodeUnknownRef
}

// IsUnknownName returns true if err is an unknown-name error.
func IsUnknownName(err error) bool {
	var re *RegistryError
	return errors.As(err, &re) && re.Code == ErrCodeUnknownName
}

func conflictError(name, format string, args ...any) *RegistryError {
	return &RegistryError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...), Name: name}
}

func unknownRefError(format string, args ...any) *RegistryError {
	return &RegistryError{Code: ErrCodeUnknownRef, Message: fmt.Sprintf(format, args...)}
}

func unknownNameError(name, format string, args ...any) *RegistryError {
	return &RegistryError{Code: ErrCodeUnknownName, Message: fmt.Sprintf(format, args...), Name: name}
}

func badSpecError(name, format string, args ...any) *RegistryError {
	return &RegistryError{Code: ErrCodeBadSpec, Message: fmt.Sprintf(format, args...), Name: name}
}
