// Package llmadapter defines the LLMAdapter interface every Lead and
// worker call goes through, plus the concrete Anthropic and LangChain
// adapters and the shared per-model price table (§6, §9 "Per-provider
// price tables").
package llmadapter

import (
	"context"
	"time"

	"github.com/codeready-toolchain/research-engine/pkg/models"
)

// ToolSpec describes one tool exposed to the model for function calling.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolExecutor runs one normalized tool call and reports whether it was
// a web_search call worth recording as a models.SearchRecord. Worker
// code supplies this; the adapter never executes tools itself — it
// only normalizes what the provider returned and calls back out.
type ToolExecutor func(ctx context.Context, name string, args map[string]any) (result string, search *models.SearchRecord, err error)

// CompletionRequest is everything one Run call needs.
type CompletionRequest struct {
	SystemPrompt  string
	UserPrompt    string
	Tools         []ToolSpec
	MaxIterations int
	Executor      ToolExecutor // nil for Lead calls (tools=[], 1 iteration)
}

// RunOutput is the adapter-agnostic result of one Run call (§6).
type RunOutput struct {
	RawText      string
	SelfCritique string
	Searches     []models.SearchRecord
	TokensIn     int
	TokensOut    int
	CostUSD      float64
	Duration     time.Duration
}

// LLMAdapter is the external collaborator every Lead/worker call goes
// through (§6).
type LLMAdapter interface {
	Name() string
	SupportsNativeSearch() bool
	Verify(ctx context.Context) error
	Run(ctx context.Context, req CompletionRequest) (RunOutput, error)
}

// ModelPrice is one entry of the static per-model price table (§9).
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// defaultPrice is used, with a logged warning, for any model id absent
// from a table.
var defaultPrice = ModelPrice{InputPerMillion: 3.0, OutputPerMillion: 15.0}

// PriceTable is a static map keyed by model id.
type PriceTable map[string]ModelPrice

// Cost computes USD cost for tokensIn/tokensOut against model's entry,
// falling back to defaultPrice (and reporting the fallback) when model
// is unknown.
func (t PriceTable) Cost(model string, tokensIn, tokensOut int) (costUSD float64, usedDefault bool) {
	price, ok := t[model]
	if !ok {
		price = defaultPrice
	}
	cost := float64(tokensIn)/1_000_000*price.InputPerMillion + float64(tokensOut)/1_000_000*price.OutputPerMillion
	return cost, !ok
}
