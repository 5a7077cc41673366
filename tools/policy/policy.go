// Package policy implements an optional tool availability guardrail: an
// allow/block gate, by tool name or tag, consulted before the tool selector
// advertises tools and before the tool executor dispatches one. It never
// retries or rewrites a call; it only decides availability. The interface
// shape mirrors the allow/block-list policy engine used elsewhere in this
// codebase, trimmed to the single decision this orchestrator needs (full
// per-run caps/retry-hint negotiation is out of scope here).
package policy

import runtimetools "github.com/orchestra-ai/agentcore/runtime/agent/tools"

// Engine decides whether a given tool may be advertised/dispatched.
type Engine interface {
	// Allowed reports whether spec may be advertised to the model and
	// dispatched if requested.
	Allowed(spec runtimetools.ToolSpec) bool
}

// Options configures a basic Engine. Zero-valued Options allows everything.
type Options struct {
	AllowTags  []string
	BlockTags  []string
	AllowTools []string
	BlockTools []string
}

// basic is the default Engine: optional allow/block lists by tool name or
// tag. A non-empty AllowTools/AllowTags list is exclusive (only matching
// tools are allowed); BlockTools/BlockTags always win over an allow match.
type basic struct {
	allowTags  map[string]bool
	blockTags  map[string]bool
	allowTools map[string]bool
	blockTools map[string]bool
}

// New constructs an Engine from Options. With no options set, every tool is
// allowed.
func New(opts Options) Engine {
	return &basic{
		allowTags:  toSet(opts.AllowTags),
		blockTags:  toSet(opts.BlockTags),
		allowTools: toSet(opts.AllowTools),
		blockTools: toSet(opts.BlockTools),
	}
}

func toSet(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

func (b *basic) Allowed(spec runtimetools.ToolSpec) bool {
	if b.blockTools[spec.Name] {
		return false
	}
	for _, t := range spec.Tags {
		if b.blockTags[t] {
			return false
		}
	}
	if len(b.allowTools) == 0 && len(b.allowTags) == 0 {
		return true
	}
	if b.allowTools[spec.Name] {
		return true
	}
	for _, t := range spec.Tags {
		if b.allowTags[t] {
			return true
		}
	}
	return false
}

// AllowAll is the zero-configuration Engine used when no policy is
// configured: every tool is advertised and dispatchable.
var AllowAll Engine = New(Options{})
