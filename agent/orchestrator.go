package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/orchestra-ai/agentcore/graph"
	"github.com/orchestra-ai/agentcore/runtime/agent/model"
	"github.com/orchestra-ai/agentcore/runtime/agent/runlog"
	"github.com/orchestra-ai/agentcore/runtime/agent/telemetry"
	"github.com/orchestra-ai/agentcore/tools"
)

const (
	nodePlan      = "plan"
	nodeFanOut    = "fan_out"
	nodeAggregate = "aggregate"
	nodeFinal     = "final"
)

// Orchestrator wires plan generation, the fan-out over the compiled
// sub-task loop, and the final aggregation step into one compiled
// graph.Graph[MainState], exposing a single synchronous entry point:
// Run(ctx, question) -> AgentResult.
type Orchestrator struct {
	compiled *graph.Graph[MainState]
	runlog   runlog.Sink
	logger   telemetry.Logger
}

// New constructs an Orchestrator. client is the (middleware-wrapped) model
// client used by every node that calls the provider; dispatcher is the tool
// dispatcher consulted by the sub-task loop; cache and sink are optional
// (nil disables the plan cache / run-history recording respectively).
func New(client model.Client, dispatcher *tools.Dispatcher, cache PlanCache, sink runlog.Sink, logger telemetry.Logger, cfg Config) (*Orchestrator, error) {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	plan := &planNode{client: client, modelID: cfg.modelID(), temperature: 0, cache: cache}
	loop, err := newSubtaskLoop(client, dispatcher, cfg.subtaskTemperature(), cfg.maxChallenges())
	if err != nil {
		return nil, fmt.Errorf("agent: compiling sub-task loop: %w", err)
	}
	aggregate := &aggregatorNode{client: client, temperature: cfg.aggregateTemperature()}
	fanOut := &fanOutNode{loop: loop, logger: logger}

	b := graph.NewBuilder[MainState](nodePlan)
	b.AddNode(nodePlan, plan.run, planNodeOutputs, nodeFanOut)
	b.AddNode(nodeFanOut, fanOut.run, fanOutNodeOutputs, nodeAggregate)
	b.AddNode(nodeAggregate, aggregate.run, aggregatorNodeOutputs, nodeFinal)
	b.SetTerminal(nodeFinal)
	compiled, err := b.Compile()
	if err != nil {
		return nil, fmt.Errorf("agent: compiling orchestrator graph: %w", err)
	}

	return &Orchestrator{compiled: compiled, runlog: sink, logger: logger}, nil
}

// fanOutNode launches one sub-task-loop child per plan entry and joins
// deterministically in plan-index order, regardless of sibling completion
// order.
type fanOutNode struct {
	loop   *subtaskLoop
	logger telemetry.Logger
}

func (f *fanOutNode) run(ctx context.Context, s MainState) (graph.Delta, error) {
	n := len(s.Plan)
	results := make([]SubtaskResult, n)

	grp, grpCtx := errgroup.WithContext(ctx)
	for i, subtask := range s.Plan {
		i, subtask := i, subtask
		grp.Go(func() error {
			seed := SubGraphState{Question: s.Question, Plan: s.Plan, Subtask: subtask}
			final, err := f.loop.run(grpCtx, seed)
			if err != nil {
				if agentErr, ok := err.(*Error); ok {
					agentErr.SubtaskIndex = i
				}
				f.logger.Error(grpCtx, "sub-task failed", "index", i, "subtask", subtask, "error", err)
				return err
			}
			results[i] = toSubtaskResult(final)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		// A cancelled or failed sibling must not publish its contribution; the
		// run aborts entirely rather than returning partial results.
		return nil, err
	}
	return graph.Delta{"SubtaskResults": results}, nil
}

// Run blocks until the entire graph terminates, the context is cancelled, or
// the run fails, returning the typed error on failure. On success it records
// one run-history entry before returning.
func (o *Orchestrator) Run(ctx context.Context, question string) (AgentResult, error) {
	runID := uuid.NewString()
	initial := MainState{Question: question}
	final, err := graph.Run(ctx, o.compiled, initial)
	if err != nil {
		o.recordRunHistory(ctx, runID, question, nil, nil, "", err)
		return AgentResult{}, err
	}
	result := AgentResult{
		Question: final.Question,
		Plan:     final.Plan,
		Subtasks: final.SubtaskResults,
		Answer:   final.LastAnswer,
	}
	o.recordRunHistory(ctx, runID, question, result.Plan, result.Subtasks, result.Answer, nil)
	return result, nil
}

func (o *Orchestrator) recordRunHistory(ctx context.Context, runID, question string, plan Plan, subtasks []SubtaskResult, answer string, runErr error) {
	if o.runlog == nil {
		return
	}
	entry := runlog.Entry{
		RunID:     runID,
		Question:  question,
		Plan:      []string(plan),
		Answer:    answer,
		Timestamp: time.Now(),
	}
	for _, r := range subtasks {
		entry.Subtasks = append(entry.Subtasks, runlog.SubtaskSummary{
			Description:    r.Description,
			IsCompleted:    r.IsCompleted,
			ChallengeCount: r.ChallengeCount,
		})
	}
	if runErr != nil {
		entry.ErrorKind = errorKindOf(runErr)
	}
	if err := o.runlog.Record(ctx, entry); err != nil {
		o.logger.Warn(ctx, "failed to record run history", "run_id", runID, "error", err)
	}
}

func errorKindOf(err error) string {
	if ae, ok := err.(*Error); ok {
		return string(ae.Kind)
	}
	return "unknown"
}
