package agent

import (
	"context"

	"github.com/orchestra-ai/agentcore/graph"
	"github.com/orchestra-ai/agentcore/runtime/agent/model"
)

// aggregatorNode fuses sub-task answers into the final user-visible
// response. Only each sub-task's description/answer pair is included in the
// prompt; tool_results and reflection history are deliberately excluded to
// bound prompt size.
type aggregatorNode struct {
	client      model.Client
	temperature float32
}

func (n *aggregatorNode) run(ctx context.Context, s MainState) (graph.Delta, error) {
	findings := make([]aggregatorFinding, 0, len(s.SubtaskResults))
	for _, r := range s.SubtaskResults {
		findings = append(findings, aggregatorFinding{Description: r.Description, Answer: r.Answer})
	}
	data := struct {
		Question string
		Plan     Plan
		Findings []aggregatorFinding
	}{Question: s.Question, Plan: s.Plan, Findings: findings}

	req := &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: aggregatorSystemPrompt}}},
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: render(aggregatorUserTemplate, data)}}},
		},
		Temperature: n.temperature,
		MaxTokens:   4096,
	}
	resp, err := n.client.Complete(ctx, req)
	if err != nil {
		return nil, newError(KindModelCallError, "aggregate", err.Error(), err)
	}
	return graph.Delta{"LastAnswer": assistantTextContent(resp)}, nil
}
