package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/orchestra-ai/agentcore/graph"
	"github.com/orchestra-ai/agentcore/runtime/agent/model"
)

// PlanCache memoizes plan-node structured-parse results keyed on a
// deterministic hash of (model identifier, prompt version, question). It is
// an optimization only: implementations must treat a miss or a Get error as
// "no cached plan" and let the caller fall through to a live model call, and
// Set failures must never fail the run.
type PlanCache interface {
	Get(ctx context.Context, key string) (Plan, bool)
	Set(ctx context.Context, key string, plan Plan)
}

// planCacheKey hashes the tuple that makes a plan a pure function: model
// identifier, prompt template version, and the question text.
func planCacheKey(modelID, question string) string {
	h := sha256.Sum256([]byte(modelID + "\x00" + promptVersion + "\x00" + question))
	return hex.EncodeToString(h[:])
}

// planNode implements plan generation: a structured-parse completion that
// decomposes a question into an ordered list of sub-task descriptions. It
// consults an optional PlanCache before calling the model, and forwards its
// pinned temperature. No seed is sent: model.Request has no seed field.
type planNode struct {
	client      model.Client
	modelID     string
	temperature float32
	cache       PlanCache
}

func (n *planNode) run(ctx context.Context, s MainState) (graph.Delta, error) {
	key := planCacheKey(n.modelID, s.Question)
	if n.cache != nil {
		if cached, ok := n.cache.Get(ctx, key); ok {
			return graph.Delta{"Plan": Plan(cached)}, nil
		}
	}

	parser := newStructuredParser(n.client)
	messages := []*model.Message{
		{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: planSystemPrompt}}},
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: render(planUserTemplate, s)}}},
	}
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"subtasks": {"type": "array", "items": {"type": "string"}}},
		"required": ["subtasks"]
	}`)
	var parsed planSchema
	if err := parser.parse(ctx, messages, schema, n.temperature, &parsed); err != nil {
		return nil, newError(KindPlanParseError, "plan", err.Error(), err)
	}
	if len(parsed.Subtasks) == 0 {
		return nil, newError(KindPlanParseError, "plan", "structured parse returned zero subtasks", nil)
	}

	plan := Plan(parsed.Subtasks)
	if n.cache != nil {
		n.cache.Set(ctx, key, plan)
	}
	return graph.Delta{"Plan": plan}, nil
}

// placeholderAnswer is the deterministic placeholder substituted for
// subtask_answer when a sub-task exhausts its challenge budget without
// completing.
func placeholderAnswer(subtask string) string {
	return fmt.Sprintf("no answer found for: %s", subtask)
}
