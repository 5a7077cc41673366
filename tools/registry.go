// Package tools implements the tool registry and dispatcher: a process-wide,
// read-only-after-init mapping from tool name to handler, with JSON-Schema
// argument validation and pluggable handler transports.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/orchestra-ai/agentcore/runtime/agent/toolerrors"
	runtimetools "github.com/orchestra-ai/agentcore/runtime/agent/tools"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SearchHit is one result item returned by a tool handler. It is the
// contract's sole output shape: handlers are pure with respect to
// orchestrator state, returning only evidence for the model to read.
type SearchHit struct {
	Source   string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Handler executes one tool call against already-JSON-Schema-validated,
// parsed arguments. Handlers may fail with a *toolerrors.ToolError; any
// other error is wrapped the same way by the Dispatcher.
type Handler func(ctx context.Context, args json.RawMessage) ([]SearchHit, error)

// entry pairs a registered handler with its advertised spec and a compiled
// JSON Schema validator for its argument payload.
type entry struct {
	spec    runtimetools.ToolSpec
	handler Handler
	schema  *jsonschema.Schema
}

// Registry is a read-only-after-init, name-to-handler map. Registration
// happens once at startup; Lookup and Specs are safe for concurrent use
// without further locking once registration is complete, but the mutex
// guards against accidental concurrent Register calls during initialization.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*entry{}}
}

// Register adds a tool handler under spec.Name, compiling spec.Payload.Schema
// as a JSON Schema for later argument validation. It returns an error if the
// name is already registered or the schema fails to compile.
func (r *Registry) Register(spec runtimetools.ToolSpec, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[spec.Name]; exists {
		return fmt.Errorf("tools: %q already registered", spec.Name)
	}
	compiler := jsonschema.NewCompiler()
	schemaURL := "mem://" + spec.Name + "/payload.schema.json"
	var doc any
	if len(spec.Payload.Schema) > 0 {
		if err := json.Unmarshal(spec.Payload.Schema, &doc); err != nil {
			return fmt.Errorf("tools: %q: invalid payload schema: %w", spec.Name, err)
		}
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			return fmt.Errorf("tools: %q: compiling payload schema: %w", spec.Name, err)
		}
	} else {
		// No declared schema: accept any object.
		if err := compiler.AddResource(schemaURL, map[string]any{}); err != nil {
			return fmt.Errorf("tools: %q: compiling default schema: %w", spec.Name, err)
		}
	}
	compiled, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("tools: %q: compiling payload schema: %w", spec.Name, err)
	}
	r.entries[spec.Name] = &entry{spec: spec, handler: h, schema: compiled}
	return nil
}

// Lookup returns the handler and spec registered under name, or false if no
// such tool is registered.
func (r *Registry) Lookup(name string) (Handler, runtimetools.ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, runtimetools.ToolSpec{}, false
	}
	return e.handler, e.spec, true
}

// Validate checks args against the tool's declared JSON Schema, returning a
// *toolerrors.ToolError describing the first violation found.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return toolerrors.Errorf("tools: %q not registered", name)
	}
	var doc any
	if len(args) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(args, &doc); err != nil {
		return toolerrors.NewWithCause("tools: arguments are not valid JSON", err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return toolerrors.NewWithCause(fmt.Sprintf("tools: %q: arguments do not match declared schema", name), err)
	}
	return nil
}

// Specs returns the advertised ToolSpec for every registered tool, in no
// particular order. Callers that need provider-facing tool definitions
// should filter this list through a policy.Engine before advertising it to
// the model.
func (r *Registry) Specs() []runtimetools.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]runtimetools.ToolSpec, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.spec)
	}
	return out
}
