package network

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateID      = errors.New("duplicate ID")
	ErrInvalidIndex     = errors.New("invalid index")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNodeInUse        = errors.New("node referenced by links")
	ErrNotMonotonic     = errors.New("curve x values not increasing")
	ErrNotInitialized   = errors.New("network state not initialized")
)

// ModelError provides structured error information for network model operations.
type ModelError struct {
	Op     string // Operation that failed (e.g., "AddJunction", "DeleteLink")
	Entity string // Entity type (e.g., "node", "link", "pattern")
	ID     string // Entity ID (if applicable)
	Index  int    // Entity index (-1 if not applicable)
	Cause  error  // Underlying error
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %q: %v", e.Op, e.Entity, e.ID, e.Cause)
	}
	if e.Index >= 0 {
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Entity, e.Index, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ModelError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error or its cause.
func (e *ModelError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

func newError(op, entity string, cause error) *ModelError {
	return &ModelError{Op: op, Entity: entity, Index: -1, Cause: cause}
}

func newIDError(op, entity, id string, cause error) *ModelError {
	return &ModelError{Op: op, Entity: entity, ID: id, Index: -1, Cause: cause}
}

func newIndexError(op, entity string, index int, cause error) *ModelError {
	return &ModelError{Op: op, Entity: entity, Index: index, Cause: cause}
}
