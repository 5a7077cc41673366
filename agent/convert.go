package agent

import (
	"encoding/json"

	"github.com/orchestra-ai/agentcore/runtime/agent/model"
	"github.com/orchestra-ai/agentcore/runtime/agent/tools"
)

// toModelMessages translates the orchestrator's role-tagged ChatMessage
// buffer into the provider-facing model.Message shape. The model package
// models tool results as parts attached to a user message rather than a
// distinct "tool" role, so RoleTool messages are folded into a user message
// carrying a ToolResultPart; everything else maps one-to-one.
func toModelMessages(messages []ChatMessage) []*model.Message {
	out := make([]*model.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, &model.Message{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: m.Content}}})
		case RoleUser:
			out = append(out, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: m.Content}}})
		case RoleAssistant:
			parts := make([]model.Part, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				parts = append(parts, model.TextPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input any
				_ = json.Unmarshal(tc.Arguments, &input)
				parts = append(parts, model.ToolUsePart{ID: tc.ID, Name: tc.Name, Input: input})
			}
			out = append(out, &model.Message{Role: model.ConversationRoleAssistant, Parts: parts})
		case RoleTool:
			out = append(out, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{
				model.ToolResultPart{ToolUseID: m.ToolCallID, Content: m.Content},
			}})
		}
	}
	return out
}

// toolDefinitions translates the tool registry's advertised specs into
// model.ToolDefinition values suitable for a Request.Tools list.
func toolDefinitions(specs []tools.ToolSpec) []*model.ToolDefinition {
	out := make([]*model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		out = append(out, &model.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: json.RawMessage(s.Payload.Schema),
		})
	}
	return out
}

// fromModelToolCalls translates a completion response's tool calls back into
// the orchestrator's ToolCall shape.
func fromModelToolCalls(calls []model.ToolCall) []ToolCall {
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, ToolCall{ID: c.ID, Name: string(c.Name), Arguments: c.Payload})
	}
	return out
}

// assistantTextContent extracts the concatenated text parts of every content
// message in a response, used when a plain completion (no forced tool use)
// should be read back as plain text (Answer Synthesizer, Aggregator).
func assistantTextContent(resp *model.Response) string {
	var text string
	for _, msg := range resp.Content {
		for _, p := range msg.Parts {
			if tp, ok := p.(model.TextPart); ok {
				text += tp.Text
			}
		}
	}
	return text
}
