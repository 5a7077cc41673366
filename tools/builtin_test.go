package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeywordSearcher struct {
	gotQuery string
	gotLimit int
	hits     []SearchHit
	err      error
}

func (f *fakeKeywordSearcher) SearchKeyword(_ context.Context, query string, limit int) ([]SearchHit, error) {
	f.gotQuery, f.gotLimit = query, limit
	return f.hits, f.err
}

func TestKeywordSearchHandlerDefaultsLimit(t *testing.T) {
	t.Parallel()

	searcher := &fakeKeywordSearcher{hits: []SearchHit{{Source: "kw", Content: "hit"}}}
	h := KeywordSearchHandler(searcher)

	hits, err := h(context.Background(), json.RawMessage(`{"query":"foo"}`))
	require.NoError(t, err)
	assert.Equal(t, "foo", searcher.gotQuery)
	assert.Equal(t, 10, searcher.gotLimit)
	assert.Equal(t, searcher.hits, hits)
}

func TestKeywordSearchHandlerPropagatesError(t *testing.T) {
	t.Parallel()

	searcher := &fakeKeywordSearcher{err: errors.New("index unavailable")}
	h := KeywordSearchHandler(searcher)

	_, err := h(context.Background(), json.RawMessage(`{"query":"foo"}`))
	assert.Error(t, err)
}

type fakeVectorSearcher struct {
	gotTopK int
}

func (f *fakeVectorSearcher) SearchVector(_ context.Context, _ string, topK int) ([]SearchHit, error) {
	f.gotTopK = topK
	return nil, nil
}

func TestVectorSearchHandlerDefaultsTopK(t *testing.T) {
	t.Parallel()

	searcher := &fakeVectorSearcher{}
	h := VectorSearchHandler(searcher)

	_, err := h(context.Background(), json.RawMessage(`{"query":"foo"}`))
	require.NoError(t, err)
	assert.Equal(t, 5, searcher.gotTopK)
}

type fakeCodeSandbox struct{}

func (fakeCodeSandbox) Execute(_ context.Context, language, source string) (string, string, error) {
	return "out:" + source, "", nil
}

func TestCodeSandboxHandlerWrapsOutput(t *testing.T) {
	t.Parallel()

	h := CodeSandboxHandler(fakeCodeSandbox{})
	hits, err := h(context.Background(), json.RawMessage(`{"language":"go","source":"fmt.Println(1)"}`))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "out:fmt.Println(1)", hits[0].Content)
	assert.Equal(t, "go", hits[0].Metadata["language"])
}
