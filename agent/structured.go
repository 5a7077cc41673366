package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orchestra-ai/agentcore/runtime/agent/model"
)

// structuredParser issues structured-output completions against a
// model.Client. Providers in this module do not expose a native JSON-mode
// response format, so structured output is obtained the same way tool-use
// already works: advertise a single synthetic tool whose input schema is the
// desired result shape, force the model to call it (ToolChoiceModeTool), and
// decode the tool call's arguments as the parsed value. This keeps the
// structured-parse contract (parse(messages, schema) -> parsed value or
// ParseError) entirely on top of the existing Client interface instead of
// requiring a provider-specific response-format parameter.
type structuredParser struct {
	client model.Client
}

func newStructuredParser(client model.Client) *structuredParser {
	return &structuredParser{client: client}
}

const structuredEmitTool = "emit_result"

// parse requests a structured completion constrained to schema (a JSON
// Schema document) and decodes the result into out (a pointer). temperature
// is forwarded unchanged so callers can pin it; model.Request has no seed
// field, so no seed is sent.
func (p *structuredParser) parse(ctx context.Context, messages []*model.Message, schema any, temperature float32, out any) error {
	req := &model.Request{
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   4096,
		Tools: []*model.ToolDefinition{{
			Name:        structuredEmitTool,
			Description: "Emit the final structured result for this request.",
			InputSchema: schema,
		}},
		ToolChoice: &model.ToolChoice{Mode: model.ToolChoiceModeTool, Name: structuredEmitTool},
	}
	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("structured parse: %w", err)
	}
	for _, tc := range resp.ToolCalls {
		if string(tc.Name) != structuredEmitTool {
			continue
		}
		if len(tc.Payload) == 0 {
			return fmt.Errorf("structured parse: empty payload")
		}
		if err := json.Unmarshal(tc.Payload, out); err != nil {
			return fmt.Errorf("structured parse: %w", err)
		}
		return nil
	}
	return fmt.Errorf("structured parse: provider returned no parsed value")
}
