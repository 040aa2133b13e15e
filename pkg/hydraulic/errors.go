package hydraulic

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotOpen is returned when a solve is attempted before Open/Init.
	ErrNotOpen = errors.New("hydraulic solver not open")
	// ErrConvergence is returned when the trial limit is reached without
	// convergence and unbalanced solutions are not accepted. The step's
	// best available solution is still written to the network state.
	ErrConvergence = errors.New("hydraulic solve did not converge")
	// ErrIsolatedNode is returned at Open for a junction with no links.
	ErrIsolatedNode = errors.New("junction has no connecting links")
	// ErrValveConflict is returned at Open for pressure valves arranged
	// so that their settings cannot be resolved simultaneously.
	ErrValveConflict = errors.New("unresolvable pressure-valve arrangement")
	// ErrDisconnected is returned when factorization finds a junction
	// group with no path to a fixed-head node.
	ErrDisconnected = errors.New("network portion disconnected from any fixed head")
)

// SolveError wraps a fatal solver failure with the node it was traced to.
type SolveError struct {
	Op    string
	Node  string // node ID, when identifiable
	Cause error
}

// Error implements the error interface.
func (e *SolveError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s (node %s): %v", e.Op, e.Node, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SolveError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error or its cause.
func (e *SolveError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}
