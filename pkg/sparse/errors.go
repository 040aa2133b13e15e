package sparse

import (
	"errors"
	"fmt"
)

// ErrSingular is returned when numeric factorization hits a zero or
// near-zero pivot, which for a network system means a junction (or a
// group of junctions) has no path to a fixed-head node.
var ErrSingular = errors.New("singular system")

// SingularError reports which row of the original system could not be
// pivoted. Node carries the caller's (unpermuted) index.
type SingularError struct {
	Node  int
	Pivot float64
}

// Error implements the error interface.
func (e *SingularError) Error() string {
	return fmt.Sprintf("singular system: near-zero pivot %g at node %d", e.Pivot, e.Node)
}

// Is reports whether the target matches ErrSingular.
func (e *SingularError) Is(target error) bool {
	return target == ErrSingular
}
