package tools

import (
	"context"
	"encoding/json"
	"fmt"

	runtimetools "github.com/orchestra-ai/agentcore/runtime/agent/tools"
	"github.com/orchestra-ai/agentcore/tools/policy"
)

// Dispatcher is the thin layer the Tool Selector and Tool Executor go
// through: it consults the policy before advertising or invoking a tool, and
// validates arguments against the tool's declared JSON Schema before calling
// its handler. The Registry itself never consults policy, so callers that
// legitimately need the unfiltered tool list (administrative tooling, tests)
// can still use it directly.
type Dispatcher struct {
	registry *Registry
	policy   policy.Engine
}

// NewDispatcher builds a Dispatcher over registry, gated by the given
// policy.Engine. Pass policy.AllowAll for no restrictions.
func NewDispatcher(registry *Registry, eng policy.Engine) *Dispatcher {
	if eng == nil {
		eng = policy.AllowAll
	}
	return &Dispatcher{registry: registry, policy: eng}
}

// Advertise returns the ToolSpecs the policy currently allows, for the Tool
// Selector to present to the model as function-calling definitions.
func (d *Dispatcher) Advertise() []runtimetools.ToolSpec {
	all := d.registry.Specs()
	out := make([]runtimetools.ToolSpec, 0, len(all))
	for _, spec := range all {
		if d.policy.Allowed(spec) {
			out = append(out, spec)
		}
	}
	return out
}

// Dispatch validates args against the tool's declared schema and invokes its
// handler. Policy denial and an unregistered name are indistinguishable to
// the caller: both report "unknown tool", so the sub-task loop cannot use
// dispatch failures to enumerate which tools exist but are merely blocked.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) ([]SearchHit, error) {
	handler, spec, ok := d.registry.Lookup(name)
	if !ok || !d.policy.Allowed(spec) {
		return nil, errUnknownTool(name)
	}
	if err := d.registry.Validate(name, args); err != nil {
		return nil, errToolExecution(name, err)
	}
	hits, err := handler(ctx, args)
	if err != nil {
		return nil, errToolExecution(name, err)
	}
	return hits, nil
}

// DispatchError carries enough structure for callers to translate a
// dispatch failure into the orchestrator's agent.Error kinds (UnknownTool or
// ToolExecutionError) without this package importing the agent package.
type DispatchError struct {
	Tool    string
	Unknown bool
	Cause   error
}

func (e *DispatchError) Error() string { return e.Cause.Error() }
func (e *DispatchError) Unwrap() error { return e.Cause }

func errUnknownTool(name string) error {
	return &DispatchError{Tool: name, Unknown: true, Cause: fmt.Errorf("tools: %q is not available", name)}
}

func errToolExecution(name string, cause error) error {
	return &DispatchError{Tool: name, Cause: cause}
}
