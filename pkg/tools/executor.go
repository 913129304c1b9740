// Package tools implements the four tools exposed to a Research Worker
// (§4.7, §6): web_search, web_fetch, read_graph_node, and search_graph.
// Execution (as opposed to the provider-shape normalization owned by
// pkg/llmadapter) lives here, including SearchRecord bookkeeping and
// one rate limit shared by all tool calls.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
	"github.com/codeready-toolchain/research-engine/pkg/models"
	"github.com/codeready-toolchain/research-engine/pkg/researrors"
	"github.com/codeready-toolchain/research-engine/pkg/searchprovider"
)

// GraphStore is the narrow slice of pkg/store.Store the graph-reading
// tools need, following the teacher's narrow-local-interface style
// (see pkg/views.Store, pkg/context.Store).
type GraphStore interface {
	Get(ctx context.Context, workspaceID, id string) (*graph.Direction, error)
	SearchByText(ctx context.Context, workspaceID, query string, limit int) ([]*graph.Direction, error)
}

// Searcher is the narrow slice of searchprovider.Manager the web_search
// tool needs.
type Searcher interface {
	Search(query string, maxResults int) (results []searchprovider.Result, provider string, err error)
}

// Tool names as exposed to the model (§4.7.3).
const (
	ToolWebSearch     = "web_search"
	ToolWebFetch      = "web_fetch"
	ToolReadGraphNode = "read_graph_node"
	ToolSearchGraph   = "search_graph"
)

// Executor dispatches normalized tool calls from workers' tool-use
// loops. Its Execute method has the exact shape of
// llmadapter.ToolExecutor, so it is passed directly as the adapter's
// Executor callback.
type Executor struct {
	workspaceID string
	store       GraphStore
	search      Searcher
	fetch       Fetcher
	limiter     *rate.Limiter
	external    *ExternalToolClient // optional gRPC tool daemon, nil if unconfigured
	log         *slog.Logger
}

// Options configures an Executor.
type Options struct {
	WorkspaceID string
	Store       GraphStore
	Search      Searcher
	Fetch       Fetcher
	// RatePerSecond bounds total tool calls/sec across all four tools,
	// protecting both outbound HTTP quotas and the local store. 0 means
	// unlimited.
	RatePerSecond float64
	// External, if non-nil, is consulted for any tool name the four
	// built-ins don't recognize — the gRPC research-tool daemon (§6,
	// mirrors pkg/mcp's transport pattern generalized to gRPC).
	External *ExternalToolClient
}

// NewExecutor builds an Executor from opts.
func NewExecutor(opts Options) *Executor {
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &Executor{
		workspaceID: opts.WorkspaceID,
		store:       opts.Store,
		search:      opts.Search,
		fetch:       opts.Fetch,
		limiter:     limiter,
		external:    opts.External,
		log:         slog.With("component", "tools.executor", "workspace", opts.WorkspaceID),
	}
}

// Specs returns the tool specifications to advertise to the model,
// augmented with whatever the external daemon lists (if configured).
func (e *Executor) Specs(ctx context.Context) []llmadapter.ToolSpec {
	specs := []llmadapter.ToolSpec{
		{
			Name:        ToolWebSearch,
			Description: "Search the web for the given query and return titles, URLs, and snippets.",
			InputSchema: map[string]any{
				"properties": map[string]any{
					"query":       map[string]any{"type": "string"},
					"max_results": map[string]any{"type": "integer"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolWebFetch,
			Description: "Fetch a URL and return its content as Markdown.",
			InputSchema: map[string]any{
				"properties": map[string]any{"url": map[string]any{"type": "string"}},
				"required":   []string{"url"},
			},
		},
		{
			Name:        ToolReadGraphNode,
			Description: "Read one direction node from the research graph by id.",
			InputSchema: map[string]any{
				"properties": map[string]any{"id": map[string]any{"type": "string"}},
				"required":   []string{"id"},
			},
		},
		{
			Name:        ToolSearchGraph,
			Description: "Full-text search over the research graph's direction claims.",
			InputSchema: map[string]any{
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
					"limit": map[string]any{"type": "integer"},
				},
				"required": []string{"query"},
			},
		},
	}
	if e.external != nil {
		if extra, err := e.external.ListTools(ctx); err != nil {
			e.log.Warn("external tool daemon listing failed, continuing without its tools", "error", err)
		} else {
			specs = append(specs, extra...)
		}
	}
	return specs
}

// Execute implements llmadapter.ToolExecutor.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (string, *models.SearchRecord, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", nil, &researrors.ToolExecutionError{Tool: name, Err: err}
		}
	}

	switch name {
	case ToolWebSearch:
		return e.webSearch(args)
	case ToolWebFetch:
		return e.webFetch(ctx, args)
	case ToolReadGraphNode:
		return e.readGraphNode(ctx, args)
	case ToolSearchGraph:
		return e.searchGraph(ctx, args)
	default:
		if e.external != nil {
			result, err := e.external.Execute(ctx, name, args)
			if err != nil {
				return fmt.Sprintf("Error executing %s: %v", name, err), nil, &researrors.ToolExecutionError{Tool: name, Err: err}
			}
			return result, nil, nil
		}
		err := fmt.Errorf("unknown tool %q", name)
		return fmt.Sprintf("Error executing %s: %v", name, err), nil, &researrors.ToolExecutionError{Tool: name, Err: err}
	}
}

func (e *Executor) webSearch(args map[string]any) (string, *models.SearchRecord, error) {
	query, _ := args["query"].(string)
	if query == "" {
		err := fmt.Errorf("web_search requires a non-empty query")
		return err.Error(), nil, &researrors.ToolExecutionError{Tool: ToolWebSearch, Err: err}
	}
	maxResults := intArg(args, "max_results", 5)

	results, provider, err := e.search.Search(query, maxResults)
	if err != nil {
		toolErr := &researrors.ToolExecutionError{Tool: ToolWebSearch, Err: err}
		return fmt.Sprintf("Error executing %s: %v", ToolWebSearch, err), nil, toolErr
	}

	urls := make([]string, 0, len(results))
	summary := ""
	for i, r := range results {
		urls = append(urls, r.URL)
		if i < 3 {
			if summary != "" {
				summary += "; "
			}
			summary += r.Title
		}
	}

	record := &models.SearchRecord{
		Query:   query,
		Engine:  provider,
		Time:    time.Now().UTC(),
		Summary: summary,
		URLs:    urls,
	}

	return formatSearchResults(results), record, nil
}

func (e *Executor) webFetch(ctx context.Context, args map[string]any) (string, *models.SearchRecord, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		err := fmt.Errorf("web_fetch requires a non-empty url")
		return err.Error(), nil, &researrors.ToolExecutionError{Tool: ToolWebFetch, Err: err}
	}
	content, err := e.fetch.Fetch(ctx, rawURL)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", ToolWebFetch, err), nil, &researrors.ToolExecutionError{Tool: ToolWebFetch, Err: err}
	}
	return content, nil, nil
}

func (e *Executor) readGraphNode(ctx context.Context, args map[string]any) (string, *models.SearchRecord, error) {
	id, _ := args["id"].(string)
	if id == "" {
		err := fmt.Errorf("read_graph_node requires a non-empty id")
		return err.Error(), nil, &researrors.ToolExecutionError{Tool: ToolReadGraphNode, Err: err}
	}
	d, err := e.store.Get(ctx, e.workspaceID, id)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", ToolReadGraphNode, err), nil, &researrors.ToolExecutionError{Tool: ToolReadGraphNode, Err: err}
	}
	return fmt.Sprintf("claim: %s\nconfidence: %.2f\nimportance: %.2f\nstatus: %s\ndescription: %s",
		d.Claim, d.Confidence, d.Importance, d.Status, d.Description), nil, nil
}

func (e *Executor) searchGraph(ctx context.Context, args map[string]any) (string, *models.SearchRecord, error) {
	query, _ := args["query"].(string)
	if query == "" {
		err := fmt.Errorf("search_graph requires a non-empty query")
		return err.Error(), nil, &researrors.ToolExecutionError{Tool: ToolSearchGraph, Err: err}
	}
	limit := intArg(args, "limit", 10)
	matches, err := e.store.SearchByText(ctx, e.workspaceID, query, limit)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", ToolSearchGraph, err), nil, &researrors.ToolExecutionError{Tool: ToolSearchGraph, Err: err}
	}
	if len(matches) == 0 {
		return "no matching directions found", nil, nil
	}
	out := ""
	for _, d := range matches {
		out += fmt.Sprintf("- [%s] %s (confidence %.2f)\n", d.ID, d.Claim, d.Confidence)
	}
	return out, nil, nil
}

func formatSearchResults(results []searchprovider.Result) string {
	if len(results) == 0 {
		return "no results"
	}
	out := ""
	for _, r := range results {
		out += fmt.Sprintf("- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
	}
	return out
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
