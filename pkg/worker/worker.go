// Package worker runs one Research Worker's tool-use loop against an
// LLMAdapter (§4.7): it builds the worker's system/user prompts, drives
// the adapter's own internal tool-call loop, retries transient provider
// failures with backoff, and reduces any other failure to a failed
// WorkerOutput rather than propagating an error out of the cycle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
	"github.com/codeready-toolchain/research-engine/pkg/models"
	"github.com/codeready-toolchain/research-engine/pkg/researrors"
)

// RetryPolicy is an explicit backoff policy value (§9 "Retry/backoff
// library dependency" design note: generalize to a policy value and a
// small driver rather than inheriting a library's idioms).
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Attempts  int
}

// DefaultRetryPolicy matches §4.7's Failures rule: base 2s, cap 10s, 3
// attempts, retried only for connection/timeout classes.
var DefaultRetryPolicy = RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second, Attempts: 3}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// maxIterations is the default tool-use loop bound (§4.7).
const maxIterations = 30

// selfCritiqueOpenTag / selfCritiqueCloseTag delimit the worker's
// self-assessment inside its own raw text, per the system prompt's
// instruction to close every response this way.
const selfCritiqueOpenTag = "<self_critique>"
const selfCritiqueCloseTag = "</self_critique>"

// Worker runs the tool-use loop for one named agent against one adapter.
type Worker struct {
	name    string
	role    string
	adapter llmadapter.LLMAdapter
	tools   []llmadapter.ToolSpec
	exec    llmadapter.ToolExecutor
	policy  RetryPolicy
	log     *slog.Logger
}

// Options configures a Worker.
type Options struct {
	Name     string
	Role     string // free-text role description embedded in the system prompt
	Adapter  llmadapter.LLMAdapter
	Tools    []llmadapter.ToolSpec
	Executor llmadapter.ToolExecutor
	Policy   RetryPolicy // zero value uses DefaultRetryPolicy
}

// New builds a Worker.
func New(opts Options) *Worker {
	policy := opts.Policy
	if policy.Attempts == 0 {
		policy = DefaultRetryPolicy
	}
	return &Worker{
		name:    opts.Name,
		role:    opts.Role,
		adapter: opts.Adapter,
		tools:   opts.Tools,
		exec:    opts.Executor,
		policy:  policy,
		log:     slog.With("component", "worker", "agent", opts.Name),
	}
}

// Name returns the worker's configured agent name.
func (w *Worker) Name() string { return w.name }

// Input is everything a worker call needs from the cycle executor.
type Input struct {
	FocusedView   string // the target direction's focused view (§4.5)
	CycleOverride string
}

// Run drives the adapter's tool-use loop to completion and returns a
// WorkerOutput. It never returns an error: any failure inside the loop,
// context cancellation included, is reduced to Failed=true with the
// error message carried in Critique, so the cycle continues with the
// remaining workers (§4.7 Failures).
func (w *Worker) Run(ctx context.Context, in Input) models.WorkerOutput {
	systemPrompt := w.systemPrompt(in)
	userPrompt := in.FocusedView

	out, err := w.runWithRetry(ctx, systemPrompt, userPrompt)
	if err != nil {
		w.log.Warn("worker failed", "error", err)
		return models.WorkerOutput{
			AgentName: w.name,
			Model:     w.adapter.Name(),
			Critique:  err.Error(),
			Failed:    true,
		}
	}

	body, critique := splitSelfCritique(out.RawText)
	if critique == "" {
		critique = out.SelfCritique
	}

	return models.WorkerOutput{
		AgentName:    w.name,
		Model:        w.adapter.Name(),
		RawText:      body,
		Critique:     critique,
		Searches:     out.Searches,
		Cost:         out.CostUSD,
		Duration:     out.Duration,
		TokensTotal:  out.TokensIn + out.TokensOut,
		TokensInput:  out.TokensIn,
		TokensOutput: out.TokensOut,
	}
}

// runWithRetry retries a ProviderTransientError up to policy.Attempts
// times with exponential backoff; any other error (including
// AuthError) returns immediately (§4.7 Failures).
func (w *Worker) runWithRetry(ctx context.Context, systemPrompt, userPrompt string) (llmadapter.RunOutput, error) {
	var lastErr error
	for attempt := 0; attempt < w.policy.Attempts; attempt++ {
		out, err := w.adapter.Run(ctx, llmadapter.CompletionRequest{
			SystemPrompt:  systemPrompt,
			UserPrompt:    userPrompt,
			Tools:         w.tools,
			MaxIterations: maxIterations,
			Executor:      w.exec,
		})
		if err == nil {
			return out, nil
		}

		var authErr *researrors.AuthError
		if errors.As(err, &authErr) {
			return llmadapter.RunOutput{}, err
		}

		var transientErr *researrors.ProviderTransientError
		if !errors.As(err, &transientErr) {
			return llmadapter.RunOutput{}, err
		}

		lastErr = err
		if attempt < w.policy.Attempts-1 {
			select {
			case <-ctx.Done():
				return llmadapter.RunOutput{}, ctx.Err()
			case <-time.After(w.policy.delay(attempt)):
			}
		}
	}
	return llmadapter.RunOutput{}, fmt.Errorf("worker: exhausted %d retries: %w", w.policy.Attempts, lastErr)
}

func (w *Worker) systemPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a research worker on an autonomous research team.\n", w.name)
	if w.role != "" {
		fmt.Fprintf(&b, "Role: %s\n", w.role)
	}
	b.WriteString("Mission: investigate the target direction below using the tools available to you. ")
	b.WriteString("Be evidence-based and skeptical of unverified claims; cite sources. ")
	b.WriteString("Stay within your search budget — do not call web_search more than necessary to settle the question.\n")
	if in.CycleOverride != "" {
		fmt.Fprintf(&b, "Cycle override instruction: %s\n", in.CycleOverride)
	}
	b.WriteString("\nWhen you are done, write your findings as plain text, then close your response with ")
	fmt.Fprintf(&b, "%s a short self-critique of your own findings %s.\n", selfCritiqueOpenTag, selfCritiqueCloseTag)
	return b.String()
}

// splitSelfCritique extracts a trailing <self_critique>...</self_critique>
// block from raw, returning the remaining text and the critique
// separately. If the tags are absent, raw is returned unchanged with an
// empty critique.
func splitSelfCritique(raw string) (body, critique string) {
	start := strings.Index(raw, selfCritiqueOpenTag)
	if start == -1 {
		return raw, ""
	}
	end := strings.Index(raw, selfCritiqueCloseTag)
	if end == -1 || end < start {
		return raw, ""
	}
	body = strings.TrimSpace(raw[:start])
	critique = strings.TrimSpace(raw[start+len(selfCritiqueOpenTag) : end])
	return body, critique
}
