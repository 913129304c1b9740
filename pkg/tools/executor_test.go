package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/searchprovider"
)

type stubStore struct {
	getByID map[string]*graph.Direction
	matches []*graph.Direction
}

func (s *stubStore) Get(_ context.Context, _, id string) (*graph.Direction, error) {
	d, ok := s.getByID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (s *stubStore) SearchByText(_ context.Context, _, _ string, _ int) ([]*graph.Direction, error) {
	return s.matches, nil
}

type stubSearcher struct {
	results  []searchprovider.Result
	provider string
	err      error
}

func (s *stubSearcher) Search(_ string, _ int) ([]searchprovider.Result, string, error) {
	return s.results, s.provider, s.err
}

type stubFetcher struct {
	content string
	err     error
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (string, error) {
	return f.content, f.err
}

func newTestExecutor(store GraphStore, search Searcher, fetch Fetcher) *Executor {
	return NewExecutor(Options{WorkspaceID: "ws1", Store: store, Search: search, Fetch: fetch})
}

func TestExecutor_WebSearchRecordsSearchRecord(t *testing.T) {
	searcher := &stubSearcher{
		results:  []searchprovider.Result{{Title: "A", URL: "https://a", Snippet: "about a"}},
		provider: "tavily",
	}
	e := newTestExecutor(&stubStore{}, searcher, &stubFetcher{})

	result, record, err := e.Execute(context.Background(), ToolWebSearch, map[string]any{"query": "golang"})
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "golang", record.Query)
	assert.Equal(t, "tavily", record.Engine)
	assert.Contains(t, result, "https://a")
}

func TestExecutor_WebSearchMissingQuery(t *testing.T) {
	e := newTestExecutor(&stubStore{}, &stubSearcher{}, &stubFetcher{})
	_, record, err := e.Execute(context.Background(), ToolWebSearch, map[string]any{})
	require.Error(t, err)
	assert.Nil(t, record)
}

func TestExecutor_WebFetch(t *testing.T) {
	e := newTestExecutor(&stubStore{}, &stubSearcher{}, &stubFetcher{content: "# hi"})
	result, record, err := e.Execute(context.Background(), ToolWebFetch, map[string]any{"url": "https://x"})
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Equal(t, "# hi", result)
}

func TestExecutor_ReadGraphNodeNotFound(t *testing.T) {
	e := newTestExecutor(&stubStore{getByID: map[string]*graph.Direction{}}, &stubSearcher{}, &stubFetcher{})
	result, _, err := e.Execute(context.Background(), ToolReadGraphNode, map[string]any{"id": "missing"})
	require.Error(t, err)
	assert.Contains(t, result, "Error executing read_graph_node")
}

func TestExecutor_SearchGraphNoMatches(t *testing.T) {
	e := newTestExecutor(&stubStore{}, &stubSearcher{}, &stubFetcher{})
	result, _, err := e.Execute(context.Background(), ToolSearchGraph, map[string]any{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, "no matching directions found", result)
}

func TestExecutor_UnknownToolWithNoExternal(t *testing.T) {
	e := newTestExecutor(&stubStore{}, &stubSearcher{}, &stubFetcher{})
	_, _, err := e.Execute(context.Background(), "nonexistent_tool", map[string]any{})
	require.Error(t, err)
}
