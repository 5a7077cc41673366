package agent

import "fmt"

// All error kinds below are fatal to the run that produced them: there is no
// per-node retry at the orchestrator level (business retry lives inside the
// sub-task loop via the Reflector back-edge). Each kind carries enough
// context (node name, sub-task index when applicable) for structured
// logging, and supports errors.Is/errors.As via a stable Kind marker.

// Kind identifies one of the orchestrator's fatal error categories.
type Kind string

const (
	KindPlanParseError       Kind = "plan_parse_error"
	KindReflectionParseError Kind = "reflection_parse_error"
	KindNoToolSelected       Kind = "no_tool_selected"
	KindUnknownTool          Kind = "unknown_tool"
	KindToolExecutionError   Kind = "tool_execution_error"
	KindModelCallError       Kind = "model_call_error"
	KindInvariantViolation   Kind = "invariant_violation"
)

// Error is the orchestrator's single error type. Kind discriminates the
// category; callers compare against the package-level sentinels below with
// errors.Is, or use errors.As to recover the full Error value (Tool, Node,
// SubtaskIndex) for structured logging.
type Error struct {
	Kind         Kind
	Node         string
	SubtaskIndex int
	Tool         string
	Message      string
	Cause        error
}

func (e *Error) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("agent: %s: node=%s tool=%s: %s", e.Kind, e.Node, e.Tool, e.Message)
	}
	return fmt.Sprintf("agent: %s: node=%s: %s", e.Kind, e.Node, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, ErrUnknownTool) style comparisons work without exposing
// field-by-field matching.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind
}

// Sentinel values for errors.Is comparisons. Only Kind is compared.
var (
	ErrPlanParseError       = &Error{Kind: KindPlanParseError}
	ErrReflectionParseError = &Error{Kind: KindReflectionParseError}
	ErrNoToolSelected       = &Error{Kind: KindNoToolSelected}
	ErrUnknownTool          = &Error{Kind: KindUnknownTool}
	ErrToolExecutionError   = &Error{Kind: KindToolExecutionError}
	ErrModelCallError       = &Error{Kind: KindModelCallError}
	ErrInvariantViolation   = &Error{Kind: KindInvariantViolation}
)

func newError(kind Kind, node, message string, cause error) *Error {
	return &Error{Kind: kind, Node: node, Message: message, Cause: cause}
}
