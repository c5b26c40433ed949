package reactive

import (
	"errors"
	"fmt"
)

// Error represents an orchestration contract violation: bad dispatch
// arguments, malformed components, or invalid descriptors. These throw
// synchronously and are never retried internally.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Mutation is the dispatch action involved, if any.
	Mutation string
}

// ErrorCode categorizes orchestration errors.
type ErrorCode string

const (
	// ErrCodeInvalidMutationName indicates a dispatch with an empty
	// action name.
	ErrCodeInvalidMutationName ErrorCode = "INVALID_MUTATION_NAME"

	// ErrCodePrivateMutation indicates a dispatch of an underscore-
	// prefixed (reserved) action.
	ErrCodePrivateMutation ErrorCode = "PRIVATE_MUTATION"

	// ErrCodeUnknownMutation indicates a dispatch of an unregistered
	// action.
	ErrCodeUnknownMutation ErrorCode = "UNKNOWN_MUTATION"

	// ErrCodeMissingElement indicates a component without a DOM anchor.
	ErrCodeMissingElement ErrorCode = "MISSING_ELEMENT"

	// ErrCodeMissingReactive indicates a component without an
	// orchestrator.
	ErrCodeMissingReactive ErrorCode = "MISSING_REACTIVE"

	// ErrCodeComponentInvalid indicates a malformed component
	// registration (for example a watcher without a handler).
	ErrCodeComponentInvalid ErrorCode = "COMPONENT_INVALID"

	// ErrCodeMissingTemplate indicates a template component without a
	// template source.
	ErrCodeMissingTemplate ErrorCode = "MISSING_TEMPLATE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Mutation != "" {
		return fmt.Sprintf("%s: %s (mutation=%s)", e.Code, e.Message, e.Mutation)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
