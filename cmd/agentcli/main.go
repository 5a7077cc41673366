// Command agentcli wires configuration, the model client, the tool
// registry, and the compiled orchestrator graph together and runs a single
// question end to end. It is a thin smoke-testing wrapper, not a
// long-running service: one invocation, one printed result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"goa.design/clue/log"

	"github.com/orchestra-ai/agentcore/agent"
	runtimetools "github.com/orchestra-ai/agentcore/runtime/agent/tools"
	"github.com/orchestra-ai/agentcore/runtime/agent/runlog/inmem"
	"github.com/orchestra-ai/agentcore/runtime/agent/telemetry"
	"github.com/orchestra-ai/agentcore/tools"
)

func main() {
	var (
		configF = flag.String("config", "", "path to a YAML configuration file")
		dbgF    = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	question := strings.Join(flag.Args(), " ")
	if question == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal(ctx, fmt.Errorf("reading question from stdin: %w", err))
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		log.Fatal(ctx, fmt.Errorf("usage: agentcli [-config path] \"question\" (or pipe the question on stdin)"))
	}

	cfg, err := agent.LoadConfig(*configF)
	if err != nil {
		log.Fatal(ctx, err)
	}

	client, err := agent.NewModelClient(ctx, cfg, nil)
	if err != nil {
		log.Fatal(ctx, err)
	}

	registry := tools.NewRegistry()
	if err := registry.Register(demoKeywordSearchSpec(), tools.KeywordSearchHandler(demoSearcher{})); err != nil {
		log.Fatal(ctx, err)
	}
	dispatcher := tools.NewDispatcher(registry, nil)

	var cache agent.PlanCache
	if cfg.PlanCacheAddr != "" {
		// A Redis-backed cache would be wired here via
		// features/planner/rediscache.New(cfg.PlanCacheAddr, 0); omitted by
		// default so the CLI has no network dependency out of the box.
		log.Print(ctx, log.KV{K: "plan_cache_addr", V: cfg.PlanCacheAddr}, log.KV{K: "msg", V: "plan cache configured but not wired by agentcli"})
	}

	sink := inmem.NewSink()

	logger := telemetry.NewClueLogger()
	orch, err := agent.New(client, dispatcher, cache, sink, logger, cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}

	result, runErr := orch.Run(ctx, question)
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

// demoSearcher is a minimal in-process KeywordSearcher so the CLI can
// demonstrate the full tool-call loop without an external search index.
type demoSearcher struct{}

var demoCorpus = []string{
	"The graph engine applies per-field reducers between node steps.",
	"The sub-task loop bounds retries with a fixed challenge budget.",
	"The aggregator fuses sub-task answers into one final response.",
}

func (demoSearcher) SearchKeyword(_ context.Context, query string, limit int) ([]tools.SearchHit, error) {
	var hits []tools.SearchHit
	q := strings.ToLower(query)
	for _, doc := range demoCorpus {
		if q == "" || strings.Contains(strings.ToLower(doc), q) {
			hits = append(hits, tools.SearchHit{Source: "demo_corpus", Score: 1, Content: doc})
		}
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func demoKeywordSearchSpec() runtimetools.ToolSpec {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
		},
		"required": []string{"query"},
	})
	return runtimetools.ToolSpec{
		Name:        "keyword_search",
		Service:     "agentcli",
		Toolset:     "demo",
		Description: "Search a small in-memory corpus by keyword.",
		Payload:     runtimetools.TypeSpec{Name: "KeywordSearchPayload", Schema: schema},
	}
}
