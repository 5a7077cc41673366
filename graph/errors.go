package graph

import "fmt"

// InvariantViolationError reports that a node attempted to write a field
// outside its declared output set, or produced a value the declared reducer
// could not merge. It always aborts the run that produced it.
type InvariantViolationError struct {
	Node   string
	Field  string
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("graph: invariant violation in node %q, field %q: %s", e.Node, e.Field, e.Reason)
}

// CompileError reports a structural problem found while compiling a Graph,
// such as an edge referencing an unknown node.
type CompileError struct {
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("graph: compile error: %s", e.Reason)
}
