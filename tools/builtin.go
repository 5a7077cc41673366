package tools

import (
	"context"
	"encoding/json"
)

// KeywordSearcher is the narrow interface to an external keyword search
// index. The index itself (storage, tokenization, ranking) is an external
// collaborator; only this query contract matters here.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// VectorSearcher is the narrow interface to an external vector database. As
// with KeywordSearcher, embedding generation and index storage are external
// collaborators; only the query contract matters here.
type VectorSearcher interface {
	SearchVector(ctx context.Context, query string, topK int) ([]SearchHit, error)
}

// CodeSandbox is the narrow interface to an external code-execution sandbox
// worker. The sandboxing itself (process/container isolation, resource
// limits) is an external collaborator.
type CodeSandbox interface {
	Execute(ctx context.Context, language, source string) (stdout string, stderr string, err error)
}

type keywordSearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// KeywordSearchHandler adapts a KeywordSearcher to the Handler contract.
func KeywordSearchHandler(s KeywordSearcher) Handler {
	return func(ctx context.Context, args json.RawMessage) ([]SearchHit, error) {
		var a keywordSearchArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		if a.Limit <= 0 {
			a.Limit = 10
		}
		return s.SearchKeyword(ctx, a.Query, a.Limit)
	}
}

type vectorSearchArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// VectorSearchHandler adapts a VectorSearcher to the Handler contract.
func VectorSearchHandler(s VectorSearcher) Handler {
	return func(ctx context.Context, args json.RawMessage) ([]SearchHit, error) {
		var a vectorSearchArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		if a.TopK <= 0 {
			a.TopK = 5
		}
		return s.SearchVector(ctx, a.Query, a.TopK)
	}
}

type codeExecArgs struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

// CodeSandboxHandler adapts a CodeSandbox to the Handler contract, wrapping
// stdout/stderr as a single SearchHit since the sandbox has no notion of
// ranked results.
func CodeSandboxHandler(s CodeSandbox) Handler {
	return func(ctx context.Context, args json.RawMessage) ([]SearchHit, error) {
		var a codeExecArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		stdout, stderr, err := s.Execute(ctx, a.Language, a.Source)
		if err != nil {
			return nil, err
		}
		return []SearchHit{{
			Source:   "code_sandbox",
			Score:    1,
			Content:  stdout,
			Metadata: map[string]any{"stderr": stderr, "language": a.Language},
		}}, nil
	}
}
