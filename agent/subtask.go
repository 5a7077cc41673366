package agent

import (
	"context"
	"encoding/json"

	"github.com/orchestra-ai/agentcore/graph"
	"github.com/orchestra-ai/agentcore/runtime/agent/model"
	"github.com/orchestra-ai/agentcore/tools"
)

const (
	nodeSelect  = "select"
	nodeExec    = "exec"
	nodeAnswer  = "answer"
	nodeReflect = "reflect"
	nodeDone    = "done"
)

// subtaskLoop holds everything the four sub-task nodes need and compiles the
// sub-graph once at construction, so it can be invoked per fan-out child
// without recompiling.
type subtaskLoop struct {
	client       model.Client
	dispatcher   *tools.Dispatcher
	temperature  float32
	maxChallenges int
	compiled     *graph.Graph[SubGraphState]
}

func newSubtaskLoop(client model.Client, dispatcher *tools.Dispatcher, temperature float32, maxChallenges int) (*subtaskLoop, error) {
	if maxChallenges <= 0 {
		maxChallenges = MaxChallenges
	}
	l := &subtaskLoop{client: client, dispatcher: dispatcher, temperature: temperature, maxChallenges: maxChallenges}

	b := graph.NewBuilder[SubGraphState](nodeSelect)
	b.AddNode(nodeSelect, l.select_, selectorNodeOutputs, nodeExec)
	b.AddNode(nodeExec, l.exec, executorNodeOutputs, nodeAnswer)
	b.AddNode(nodeAnswer, l.answer, synthesizerNodeOutputs, nodeReflect)
	b.AddConditionalNode(nodeReflect, l.reflect, reflectorNodeOutputs, func(s SubGraphState) string {
		if s.IsCompleted || s.ChallengeCount >= l.maxChallenges {
			return nodeDone
		}
		return nodeSelect
	})
	b.SetTerminal(nodeDone)
	compiled, err := b.Compile()
	if err != nil {
		return nil, err
	}
	l.compiled = compiled
	return l, nil
}

// run drives seed through the compiled sub-task loop to completion.
func (l *subtaskLoop) run(ctx context.Context, seed SubGraphState) (SubGraphState, error) {
	return graph.Run(ctx, l.compiled, seed)
}

// select_ implements the tool selector. Named with a trailing underscore
// because "select" is a Go keyword.
func (l *subtaskLoop) select_(ctx context.Context, s SubGraphState) (graph.Delta, error) {
	messages := s.Messages
	if s.ChallengeCount == 0 {
		messages = []ChatMessage{
			{Role: RoleSystem, Content: subtaskSystemPrompt},
			{Role: RoleUser, Content: render(subtaskUserTemplate, s)},
		}
	} else {
		messages = pruneForRetry(messages)
		messages = append(messages, ChatMessage{Role: RoleUser, Content: retryUserPrompt})
	}

	specs := l.dispatcher.Advertise()
	req := &model.Request{
		Messages:    toModelMessages(messages),
		Temperature: l.temperature,
		MaxTokens:   4096,
		Tools:       toolDefinitions(specs),
		ToolChoice:  &model.ToolChoice{Mode: model.ToolChoiceModeAuto},
	}
	resp, err := l.client.Complete(ctx, req)
	if err != nil {
		return nil, newError(KindModelCallError, nodeSelect, err.Error(), err)
	}
	if len(resp.ToolCalls) == 0 {
		return nil, newError(KindNoToolSelected, nodeSelect, "model produced no tool call", nil)
	}

	messages = append(messages, ChatMessage{Role: RoleAssistant, ToolCalls: fromModelToolCalls(resp.ToolCalls)})
	return graph.Delta{"Messages": messages}, nil
}

// pruneForRetry drops every tool message and every assistant message that
// carried tool_calls, keeping the original user turn and every prior
// critique.
func pruneForRetry(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleTool {
			continue
		}
		if m.Role == RoleAssistant && len(m.ToolCalls) > 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}

// exec implements the tool executor.
func (l *subtaskLoop) exec(ctx context.Context, s SubGraphState) (graph.Delta, error) {
	last := lastMessage(s.Messages)
	if last == nil || len(last.ToolCalls) == 0 {
		return nil, newError(KindInvariantViolation, nodeExec, "no pending tool calls to execute", nil)
	}

	messages := s.Messages
	round := make([]ToolInvocationResult, 0, len(last.ToolCalls))
	for _, tc := range last.ToolCalls {
		hits, err := l.dispatcher.Dispatch(ctx, tc.Name, tc.Arguments)
		if err != nil {
			var de *tools.DispatchError
			if asDispatchError(err, &de) {
				if de.Unknown {
					return nil, newErrorWithTool(KindUnknownTool, nodeExec, tc.Name, de.Error(), de)
				}
				return nil, newErrorWithTool(KindToolExecutionError, nodeExec, tc.Name, de.Error(), de)
			}
			return nil, newErrorWithTool(KindToolExecutionError, nodeExec, tc.Name, err.Error(), err)
		}
		round = append(round, ToolInvocationResult{Name: tc.Name, Arguments: tc.Arguments, Results: hits})

		content, _ := json.Marshal(hits)
		messages = append(messages, ChatMessage{Role: RoleTool, Content: string(content), ToolCallID: tc.ID})
	}

	return graph.Delta{
		"Messages":    messages,
		"ToolResults": [][]ToolInvocationResult{round},
	}, nil
}

// answer implements the answer synthesizer.
func (l *subtaskLoop) answer(ctx context.Context, s SubGraphState) (graph.Delta, error) {
	req := &model.Request{
		Messages:    toModelMessages(s.Messages),
		Temperature: l.temperature,
		MaxTokens:   4096,
	}
	resp, err := l.client.Complete(ctx, req)
	if err != nil {
		return nil, newError(KindModelCallError, nodeAnswer, err.Error(), err)
	}
	text := assistantTextContent(resp)
	messages := append(s.Messages, ChatMessage{Role: RoleAssistant, Content: text})
	return graph.Delta{"Messages": messages, "SubtaskAnswer": text}, nil
}

// reflect implements the reflector.
func (l *subtaskLoop) reflect(ctx context.Context, s SubGraphState) (graph.Delta, error) {
	messages := append(s.Messages, ChatMessage{Role: RoleUser, Content: reflectionUserPrompt})

	parser := newStructuredParser(l.client)
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"is_completed": {"type": "boolean"}, "critique": {"type": "string"}},
		"required": ["is_completed", "critique"]
	}`)
	var parsed Reflection
	if err := parser.parse(ctx, toModelMessages(messages), schema, l.temperature, &parsed); err != nil {
		return nil, newError(KindReflectionParseError, nodeReflect, err.Error(), err)
	}

	serialized, _ := json.Marshal(parsed)
	messages = append(messages, ChatMessage{Role: RoleAssistant, Content: string(serialized)})

	challengeCount := s.ChallengeCount + 1
	delta := graph.Delta{
		"Messages":          messages,
		"ReflectionResults": []Reflection{parsed},
		"ChallengeCount":    challengeCount,
		"IsCompleted":       parsed.IsCompleted,
	}
	if challengeCount >= l.maxChallenges && !parsed.IsCompleted {
		delta["SubtaskAnswer"] = placeholderAnswer(s.Subtask)
	}
	return delta, nil
}

func lastMessage(messages []ChatMessage) *ChatMessage {
	if len(messages) == 0 {
		return nil
	}
	return &messages[len(messages)-1]
}

func asDispatchError(err error, target **tools.DispatchError) bool {
	de, ok := err.(*tools.DispatchError)
	if !ok {
		return false
	}
	*target = de
	return true
}

func newErrorWithTool(kind Kind, node, tool, message string, cause error) *Error {
	e := newError(kind, node, message, cause)
	e.Tool = tool
	return e
}
