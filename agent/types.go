// Package agent implements the plan-and-execute orchestrator: a planner
// produces an ordered list of sub-tasks, each sub-task runs a bounded
// self-reflective tool-use loop in parallel, and an aggregator fuses the
// results into a final answer. Orchestration is expressed as two compiled
// graph.Graph values (the top-level run and the per-sub-task loop) so
// scheduling, state merging, and invariant checking are handled uniformly by
// the graph package rather than hand-rolled here.
package agent

import (
	"encoding/json"

	"github.com/orchestra-ai/agentcore/tools"
)

// Role identifies the speaker of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is a single turn in a sub-task's conversation buffer. It is a
// tagged record over Role: only the fields relevant to that role are
// populated, and nodes must preserve the invariant that every tool message
// is preceded by an assistant message whose ToolCalls contains the matching
// ID.
type ChatMessage struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// SearchHit is one result item returned by a tool handler. It is an alias of
// tools.SearchHit so the sub-task loop and the tool dispatcher share one
// definition of the tool contract's output shape.
type SearchHit = tools.SearchHit

// ToolInvocationResult records one tool call and the hits it returned.
type ToolInvocationResult struct {
	Name      string
	Arguments json.RawMessage
	Results   []SearchHit
}

// Reflection is the structured self-critique produced by the Reflector node.
type Reflection struct {
	IsCompleted bool   `json:"is_completed"`
	Critique    string `json:"critique"`
}

// SubtaskResult is the terminal record for one plan entry, produced exactly
// once by the sub-task loop's terminal state.
type SubtaskResult struct {
	Description       string
	ToolResults       [][]ToolInvocationResult
	ReflectionResults []Reflection
	IsCompleted       bool
	Answer            string
	ChallengeCount    int
}

// Plan is the ordered list of sub-task descriptions produced by the Plan
// Node.
type Plan []string

// AgentResult is the final, user-visible outcome of a run.
type AgentResult struct {
	Question string
	Plan     Plan
	Subtasks []SubtaskResult
	Answer   string
}

// planSchema is the structured-parse response shape requested of the model
// by the Plan Node.
type planSchema struct {
	Subtasks []string `json:"subtasks"`
}
