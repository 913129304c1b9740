package llmadapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/codeready-toolchain/research-engine/pkg/models"
	"github.com/codeready-toolchain/research-engine/pkg/researrors"
)

// LangChainAdapter is the fallback/secondary LLMAdapter implementation
// (§6 "multi-provider"), built on langchaingo's provider-agnostic
// llms.Model interface. Like anthropic-sdk-go, langchaingo is
// go.mod-declared in the retrieved pack (jordigilh-kubernaut) but not
// imported by any retrieved source file there, so the call shape below
// follows langchaingo's own published conventions.
type LangChainAdapter struct {
	name   string
	model  string
	llm    llms.Model
	prices PriceTable
	log    *slog.Logger
}

// NewLangChainAdapter builds an OpenAI-compatible langchaingo adapter.
// baseURL lets this point at any OpenAI-wire-compatible endpoint
// (self-hosted models, proxies) per §6's provider-agnostic contract.
func NewLangChainAdapter(name, model, apiKey, baseURL string, prices PriceTable) (*LangChainAdapter, error) {
	opts := []openai.Option{openai.WithModel(model), openai.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, &researrors.AuthError{Adapter: name, Err: err}
	}
	return &LangChainAdapter{
		name:   name,
		model:  model,
		llm:    llm,
		prices: prices,
		log:    slog.With("adapter", name, "model", model),
	}, nil
}

func (a *LangChainAdapter) Name() string              { return a.name }
func (a *LangChainAdapter) SupportsNativeSearch() bool { return false }

func (a *LangChainAdapter) Verify(ctx context.Context) error {
	_, err := a.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "ping"),
	}, llms.WithMaxTokens(1))
	if err != nil {
		return &researrors.AuthError{Adapter: a.name, Err: err}
	}
	return nil
}

// Run mirrors AnthropicAdapter.Run against langchaingo's
// provider-agnostic GenerateContent/ToolCall shape.
func (a *LangChainAdapter) Run(ctx context.Context, req CompletionRequest) (RunOutput, error) {
	start := time.Now()
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}

	tools := make([]llms.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	history := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, req.UserPrompt),
	}

	var (
		rawText           string
		totalIn, totalOut int
		searches          []models.SearchRecord
	)

	for i := 0; i < maxIter; i++ {
		resp, err := a.llm.GenerateContent(ctx, history, llms.WithTools(tools))
		if err != nil {
			return RunOutput{}, classifyLangChainError(a.name, err)
		}
		if len(resp.Choices) == 0 {
			break
		}
		choice := resp.Choices[0]
		totalIn += intFromGenerationInfo(choice.GenerationInfo, "PromptTokens")
		totalOut += intFromGenerationInfo(choice.GenerationInfo, "CompletionTokens")

		rawText = joinNonEmpty(rawText, []string{choice.Content})

		raws := make([]rawToolCall, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			var rc rawToolCall
			rc.ID = tc.ID
			rc.Function.Name = tc.FunctionCall.Name
			rc.Function.Arguments = tc.FunctionCall.Arguments
			raws = append(raws, rc)
		}

		calls := normalizeRaws(raws)
		if len(calls) == 0 || req.Executor == nil {
			break
		}

		history = append(history, llms.TextParts(llms.ChatMessageTypeAI, choice.Content))
		for _, call := range calls {
			result, search, execErr := req.Executor(ctx, call.Name, call.Arguments)
			if execErr != nil {
				result = fmt.Sprintf("error executing %s: %v", call.Name, execErr)
			}
			if search != nil {
				searches = append(searches, *search)
			}
			history = append(history, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{ToolCallID: call.ID, Name: call.Name, Content: result},
				},
			})
		}
	}

	cost, usedDefault := a.prices.Cost(a.model, totalIn, totalOut)
	if usedDefault {
		a.log.Warn("model not in price table, using default price", "model", a.model)
	}

	return RunOutput{
		RawText:   rawText,
		TokensIn:  totalIn,
		TokensOut: totalOut,
		CostUSD:   cost,
		Duration:  time.Since(start),
		Searches:  searches,
	}, nil
}

func intFromGenerationInfo(info map[string]any, key string) int {
	v, ok := info[key].(int)
	if !ok {
		return 0
	}
	return v
}

func classifyLangChainError(adapter string, err error) error {
	// langchaingo providers wrap provider HTTP errors without a shared
	// typed error; fall back to the retry-eligible classification and
	// let the worker's retry policy bound the damage (§7, §9).
	return &researrors.ProviderTransientError{Provider: adapter, Err: err}
}
