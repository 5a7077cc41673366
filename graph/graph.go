package graph

import (
	"context"
)

// NodeFunc is a pure function from state to a set of field updates. Nodes
// must not mutate the state they receive; all writes flow through the
// returned Delta so the engine can apply reducers and reject undeclared
// writes.
type NodeFunc[S any] func(ctx context.Context, state S) (Delta, error)

// Router computes the name of the next node to evaluate (or a terminal
// label) given the current state. It is used for both unconditional and
// conditional edges; an unconditional edge is simply a Router that ignores
// its argument and always returns the same name.
type Router[S any] func(state S) string

type node[S any] struct {
	name    string
	fn      NodeFunc[S]
	outputs map[string]bool
	route   Router[S]
}

// Graph is a compiled, immutable dataflow plan over state type S. Build one
// with NewBuilder, then Compile it once; the resulting value is safe to
// share and reuse across many Run calls (in particular across fan-out
// siblings, which all invoke the same compiled sub-graph).
type Graph[S any] struct {
	start    string
	nodes    map[string]*node[S]
	terminal map[string]bool
}

// Builder accumulates nodes and edges before Compile validates and freezes
// them into a Graph.
type Builder[S any] struct {
	start    string
	nodes    map[string]*node[S]
	terminal map[string]bool
}

// NewBuilder starts a new graph builder. start names the first node
// evaluated when the graph runs.
func NewBuilder[S any](start string) *Builder[S] {
	return &Builder[S]{
		start:    start,
		nodes:    map[string]*node[S]{},
		terminal: map[string]bool{},
	}
}

// AddNode registers a node by name along with the set of state fields it is
// allowed to write (its declared output set) and an unconditional edge to
// next. Use AddConditionalNode instead when the next node depends on the
// state the node produced.
func (b *Builder[S]) AddNode(name string, fn NodeFunc[S], outputs []string, next string) *Builder[S] {
	b.nodes[name] = &node[S]{
		name:    name,
		fn:      fn,
		outputs: toSet(outputs),
		route:   func(S) string { return next },
	}
	return b
}

// AddConditionalNode registers a node whose outgoing edge is computed from
// the post-reduction state by route. This is how back-edges (the sub-task
// loop's Reflector -> Tool Selector cycle) and terminal routing are
// expressed.
func (b *Builder[S]) AddConditionalNode(name string, fn NodeFunc[S], outputs []string, route Router[S]) *Builder[S] {
	b.nodes[name] = &node[S]{
		name:    name,
		fn:      fn,
		outputs: toSet(outputs),
		route:   route,
	}
	return b
}

// SetTerminal marks name as a terminal label: when routing reaches it, Run
// returns instead of evaluating it as a node. Terminal labels do not need a
// corresponding AddNode/AddConditionalNode call.
func (b *Builder[S]) SetTerminal(name string) *Builder[S] {
	b.terminal[name] = true
	return b
}

// Compile validates the accumulated nodes and edges and returns an immutable
// Graph. It is an error for the start node to be undeclared, or for no
// terminal label to have been registered.
func (b *Builder[S]) Compile() (*Graph[S], error) {
	if _, ok := b.nodes[b.start]; !ok && !b.terminal[b.start] {
		return nil, &CompileError{Reason: "start node " + b.start + " is not declared"}
	}
	if len(b.terminal) == 0 {
		return nil, &CompileError{Reason: "graph has no terminal label"}
	}
	nodes := make(map[string]*node[S], len(b.nodes))
	for k, v := range b.nodes {
		nodes[k] = v
	}
	terminal := make(map[string]bool, len(b.terminal))
	for k, v := range b.terminal {
		terminal[k] = v
	}
	return &Graph[S]{start: b.start, nodes: nodes, terminal: terminal}, nil
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Run executes the compiled graph starting from its declared start node,
// stepping one super-step at a time: evaluate the current node, apply its
// delta via the state's reducer tags, then compute the next node from the
// routing function. Run returns once routing reaches a terminal label.
//
// A single super-step here evaluates exactly one node; real concurrency
// within a super-step (for example a fan-out over many plan entries) is
// achieved by a node's own body launching and joining on sibling graph runs
// before returning its Delta, rather than by the engine scheduling multiple
// top-level nodes at once. The two graphs this module compiles (the
// top-level plan/fan-out/aggregate graph and the per-sub-task loop) are both
// linear-with-back-edge, so this degenerate single-ready-node case is
// sufficient to satisfy the super-step barrier contract: reducers are still
// applied atomically between node evaluations, and fan-out joins still wait
// for every sibling before the downstream node observes merged state.
func Run[S any](ctx context.Context, g *Graph[S], initial S) (S, error) {
	state := initial
	cur := g.start
	for {
		if g.terminal[cur] {
			return state, nil
		}
		n, ok := g.nodes[cur]
		if !ok {
			return state, &CompileError{Reason: "no such node: " + cur}
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}
		delta, err := n.fn(ctx, state)
		if err != nil {
			return state, err
		}
		state, err = applyDelta(state, delta, n.outputs, n.name)
		if err != nil {
			return state, err
		}
		cur = n.route(state)
	}
}
