package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/orchestra-ai/agentcore/runtime/agent/model"
	runtimetools "github.com/orchestra-ai/agentcore/runtime/agent/tools"
)

// fakeModelClient is a model.Client test double that dispatches each
// completion by inspecting the shape of the incoming request rather than by
// call order, so it behaves correctly under the sub-task loop's concurrent
// fan-out across sibling sub-tasks. It recognizes four request shapes: a
// forced emit_result call whose schema mentions "subtasks" (the plan node), a
// forced emit_result call whose schema mentions "is_completed" (the
// reflector), an auto-tool-choice call (the tool selector), and a plain
// completion distinguished by its system prompt text (the answer synthesizer
// vs. the aggregator).
type fakeModelClient struct {
	subtasks    []string
	toolName    string
	toolArgs    string
	reflectDone bool

	mu    sync.Mutex
	calls []*model.Request
}

func (f *fakeModelClient) Complete(_ context.Context, req *model.Request) (*model.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if req.ToolChoice != nil && req.ToolChoice.Mode == model.ToolChoiceModeTool {
		schema, _ := req.Tools[0].InputSchema.(json.RawMessage)
		switch {
		case bytes.Contains(schema, []byte("subtasks")):
			return f.planResponse()
		case bytes.Contains(schema, []byte("is_completed")):
			return f.reflectResponse()
		}
		return nil, fmt.Errorf("fakeModelClient: unrecognized forced-tool schema: %s", schema)
	}

	if req.ToolChoice != nil && req.ToolChoice.Mode == model.ToolChoiceModeAuto {
		return f.selectResponse()
	}

	if systemPromptContains(req, "summarizer") {
		return plainTextResponse("final answer combining all sub-tasks"), nil
	}
	if systemPromptContains(req, "research assistant") {
		return plainTextResponse("sub-task answer"), nil
	}
	return nil, errors.New("fakeModelClient: unrecognized request shape")
}

func (f *fakeModelClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, errors.New("fakeModelClient: streaming is not supported")
}

func (f *fakeModelClient) planResponse() (*model.Response, error) {
	payload, err := json.Marshal(struct {
		Subtasks []string `json:"subtasks"`
	}{Subtasks: f.subtasks})
	if err != nil {
		return nil, err
	}
	return toolCallResponse(structuredEmitTool, payload), nil
}

func (f *fakeModelClient) reflectResponse() (*model.Response, error) {
	payload, err := json.Marshal(Reflection{IsCompleted: f.reflectDone, Critique: "looks complete"})
	if err != nil {
		return nil, err
	}
	return toolCallResponse(structuredEmitTool, payload), nil
}

func (f *fakeModelClient) selectResponse() (*model.Response, error) {
	name := f.toolName
	args := f.toolArgs
	if args == "" {
		args = "{}"
	}
	return toolCallResponse(name, json.RawMessage(args)), nil
}

func toolCallResponse(name string, payload json.RawMessage) *model.Response {
	return &model.Response{
		ToolCalls: []model.ToolCall{{ID: "call-1", Name: runtimetools.Ident(name), Payload: payload}},
	}
}

func plainTextResponse(text string) *model.Response {
	return &model.Response{
		Content: []model.Message{
			{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}},
		},
	}
}

func systemPromptContains(req *model.Request, needle string) bool {
	for _, m := range req.Messages {
		if m.Role != model.ConversationRoleSystem {
			continue
		}
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok && bytes.Contains([]byte(tp.Text), []byte(needle)) {
				return true
			}
		}
	}
	return false
}
