package llmadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeready-toolchain/research-engine/pkg/models"
	"github.com/codeready-toolchain/research-engine/pkg/researrors"
)

// AnthropicAdapter is the reference LLMAdapter backed by Anthropic's
// Messages API (§6 DOMAIN STACK). No repo in the retrieved pack
// imports anthropic-sdk-go directly, so this call shape follows the
// SDK's own published conventions rather than a pack usage site.
type AnthropicAdapter struct {
	name   string
	model  string
	client anthropic.Client
	prices PriceTable
	log    *slog.Logger
}

// NewAnthropicAdapter builds an adapter named name, calling model via an
// API key already resolved from the configured env var by the caller.
func NewAnthropicAdapter(name, model, apiKey string, prices PriceTable) *AnthropicAdapter {
	return &AnthropicAdapter{
		name:   name,
		model:  model,
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		prices: prices,
		log:    slog.With("adapter", name, "model", model),
	}
}

func (a *AnthropicAdapter) Name() string              { return a.name }
func (a *AnthropicAdapter) SupportsNativeSearch() bool { return false }

// Verify performs a minimal call to confirm the API key is accepted. An
// auth failure surfaces as a typed researrors.AuthError per §7.
func (a *AnthropicAdapter) Verify(ctx context.Context) error {
	_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return &researrors.AuthError{Adapter: a.name, Err: err}
	}
	return nil
}

// Run drives up to req.MaxIterations rounds of message exchange,
// normalizing each round's tool_use blocks with NormalizeToolCalls and
// dispatching them through req.Executor.
func (a *AnthropicAdapter) Run(ctx context.Context, req CompletionRequest) (RunOutput, error) {
	start := time.Now()
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropicInputSchema(t.InputSchema),
			},
		})
	}

	messages := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt))}

	var (
		rawText           string
		totalIn, totalOut int
		searches          []models.SearchRecord
	)

	for i := 0; i < maxIter; i++ {
		resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: 4096,
			System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
			Messages:  messages,
			Tools:     tools,
		})
		if err != nil {
			return RunOutput{}, classifyAnthropicError(a.name, err)
		}

		totalIn += int(resp.Usage.InputTokens)
		totalOut += int(resp.Usage.OutputTokens)

		var textParts []string
		var raws []rawToolCall
		for _, block := range resp.Content {
			switch b := block.AsAny().(type) {
			case anthropic.TextBlock:
				textParts = append(textParts, b.Text)
			case anthropic.ToolUseBlock:
				var rc rawToolCall
				rc.ID = b.ID
				rc.Function.Name = b.Name
				rc.Function.Arguments = json.RawMessage(b.Input)
				raws = append(raws, rc)
			}
		}
		rawText = joinNonEmpty(rawText, textParts)

		calls := normalizeRaws(raws)
		if len(calls) == 0 || req.Executor == nil || resp.StopReason != anthropic.StopReasonToolUse {
			break
		}

		messages = append(messages, resp.ToParam())

		var results []anthropic.ContentBlockParamUnion
		for _, call := range calls {
			result, search, execErr := req.Executor(ctx, call.Name, call.Arguments)
			if execErr != nil {
				result = fmt.Sprintf("error executing %s: %v", call.Name, execErr)
			}
			if search != nil {
				searches = append(searches, *search)
			}
			results = append(results, anthropic.NewToolResultBlock(call.ID, result, false))
		}
		messages = append(messages, anthropic.NewUserMessage(results...))
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

func anthropicInputSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	props, _ := schema["properties"].(map[string]any)
	required, _ := schema["required"].([]string)
	return anthropic.ToolInputSchemaParam{
		Properties: props,
		Required:   required,
	}
}

func joinNonEmpty(existing string, parts []string) string {
	for _, p := range parts {
		if p == "" {
			continue
		}
		if existing != "" {
			existing += "\n"
		}
		existing += p
	}
	return existing
}

func classifyAnthropicError(adapter string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return &researrors.AuthError{Adapter: adapter, Err: err}
		case apiErr.StatusCode >= 500 || apiErr.StatusCode == 408 || apiErr.StatusCode == 429:
			return &researrors.ProviderTransientError{Provider: adapter, Err: err}
		default:
			return &researrors.ProviderPermanentError{Provider: adapter, Err: err}
		}
	}
	return &researrors.ProviderTransientError{Provider: adapter, Err: err}
}
