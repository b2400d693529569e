package cfg

import (
	"errors"
	"fmt"

	"github.com/l3aro/codeflow/pkg/pyast"
)

var (
	// ErrStructural is wrapped by every *StructuralError.
	ErrStructural = errors.New("structural inconsistency")

	// ErrDepthExceeded is shared with the parser so callers can test for a
	// resource limit with a single errors.Is.
	ErrDepthExceeded = pyast.ErrDepthExceeded
)

// StructuralError reports a graph that breaks one of its invariants, such
// as an edge to an undeclared node. A build that hits one fails as a whole.
type StructuralError struct {
	Reason string
	NodeID string
}

func (e *StructuralError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("structural inconsistency: %s", e.Reason)
	}
	return fmt.Sprintf("structural inconsistency: %s (node %s)", e.Reason, e.NodeID)
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

// LimitError reports that the builder stopped at its nesting limit.
type LimitError struct {
	Depth int
	Line  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("line %d: nesting depth %d exceeds limit", e.Line, e.Depth)
}

func (e *LimitError) Unwrap() error { return ErrDepthExceeded }
