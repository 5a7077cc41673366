package tools

import (
	"context"
	"encoding/json"

	mcp "github.com/orchestra-ai/agentcore/features/mcp/runtime"
)

// MCPHandler adapts an MCP Caller into the Handler contract, so a tool
// backed by an out-of-process MCP server (reached over stdio or HTTP
// JSON-RPC) is dispatched through the same ToolSpec/Handler shape as an
// in-process Go function. The MCP tool is expected to return a JSON array of
// SearchHit-shaped objects as its result payload; tools that return a
// different shape should wrap this handler with their own translation.
func MCPHandler(caller mcp.Caller, suite, tool string) Handler {
	return func(ctx context.Context, args json.RawMessage) ([]SearchHit, error) {
		resp, err := caller.CallTool(ctx, mcp.CallRequest{Suite: suite, Tool: tool, Payload: args})
		if err != nil {
			return nil, err
		}
		var hits []SearchHit
		if len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, &hits); err != nil {
				return nil, err
			}
		}
		return hits, nil
	}
}
