package state

import (
	"errors"
	"fmt"
)

// Error represents a state-tree contract violation or a malformed update
// batch. Contract violations (read-only writes, key/id mismatches, double
// initial loads) are programmer errors and are never retried internally;
// update-batch errors surface to the caller as operation failures.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Field is the root state field involved, if any.
	Field string

	// Prop is the attribute involved, if any.
	Prop string

	// ID is the entity id involved, 0 when not entity-scoped.
	ID int64
}

// ErrorCode categorizes state errors.
type ErrorCode string

const (
	// ErrCodeReadOnly indicates a write was attempted while the state
	// tree was locked.
	ErrCodeReadOnly ErrorCode = "READ_ONLY"

	// ErrCodeAlreadyLoaded indicates SetInitialState was called twice.
	ErrCodeAlreadyLoaded ErrorCode = "STATE_ALREADY_LOADED"

	// ErrCodeReentrantMutation indicates an unlock was attempted while
	// a mutation window was already open.
	ErrCodeReentrantMutation ErrorCode = "REENTRANT_MUTATION"

	// ErrCodeKeyMismatch indicates a collection insert whose storage key
	// differs from the element's id attribute.
	ErrCodeKeyMismatch ErrorCode = "KEY_MISMATCH"

	// ErrCodeMissingID indicates a collection element without an id.
	ErrCodeMissingID ErrorCode = "MISSING_ID"

	// ErrCodeFieldNotFound indicates an update referenced an unknown
	// root field with a non-create action.
	ErrCodeFieldNotFound ErrorCode = "FIELD_NOT_FOUND"

	// ErrCodeEntityNotFound indicates an update referenced an id absent
	// from the target collection.
	ErrCodeEntityNotFound ErrorCode = "ENTITY_NOT_FOUND"

	// ErrCodeMissingName indicates an update record without a name.
	ErrCodeMissingName ErrorCode = "MISSING_NAME"

	// ErrCodeMissingFields indicates an update record without fields.
	ErrCodeMissingFields ErrorCode = "MISSING_FIELDS"

	// ErrCodeInvalidDocument indicates an initial-state document whose
	// root fields are neither records nor entity collections.
	ErrCodeInvalidDocument ErrorCode = "INVALID_DOCUMENT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Prop != "":
		return fmt.Sprintf("%s: %s (field=%s, prop=%s)", e.Code, e.Message, e.Field, e.Prop)
	case e.Field != "" && e.ID != 0:
		return fmt.Sprintf("%s: %s (field=%s, id=%d)", e.Code, e.Message, e.Field, e.ID)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns "" for nil or non-state errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsReadOnly reports whether err is a read-only violation.
func IsReadOnly(err error) bool {
	return CodeOf(err) == ErrCodeReadOnly
}

// IsNotFound reports whether err is a missing field or missing entity.
func IsNotFound(err error) bool {
	c := CodeOf(err)
	return c == ErrCodeFieldNotFound || c == ErrCodeEntityNotFound
}
