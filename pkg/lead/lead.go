package lead

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
)

// Lead drives the three stateless protocol calls against one
// LLMAdapter (§4.6). Every call uses tools=[] and max_iterations=1,
// matching the teacher's one-shot "structured decision" LLM calls.
type Lead struct {
	adapter llmadapter.LLMAdapter
	log     *slog.Logger
}

// New builds a Lead backed by adapter, which must be one of the
// config's lead_eligible adapters.
func New(adapter llmadapter.LLMAdapter) *Lead {
	return &Lead{adapter: adapter, log: slog.With("component", "lead", "adapter", adapter.Name())}
}

func (l *Lead) run(ctx context.Context, stage, systemPrompt, userPrompt string) (llmadapter.RunOutput, error) {
	out, err := l.adapter.Run(ctx, llmadapter.CompletionRequest{
		SystemPrompt:  systemPrompt,
		UserPrompt:    userPrompt,
		Tools:         nil,
		MaxIterations: 1,
	})
	if err != nil {
		return out, fmt.Errorf("lead.%s: %w", stage, err)
	}
	return out, nil
}

// Select picks the next target direction (§4.6.1). It never returns an
// error: a parse/validation failure resolves to the documented
// fallback rather than propagating into cycle logic.
func (l *Lead) Select(ctx context.Context, in SelectInput) SelectResult {
	out, err := l.run(ctx, "select", selectSystemPrompt(in), selectUserPrompt(in))
	if err != nil {
		l.log.Warn("select call failed, using fallback", "error", err)
		return l.selectFallback(in, err)
	}

	var contract struct {
		SelectedNodeID string `json:"selected_node_id"`
		Reasoning      string `json:"reasoning"`
	}
	raw, err := extractJSONObject(out.RawText)
	if err != nil {
		l.log.Warn("select response had no valid JSON, using fallback", "error", err)
		return l.selectFallback(in, err)
	}
	if err := json.Unmarshal(raw, &contract); err != nil {
		l.log.Warn("select JSON didn't match contract, using fallback", "error", err)
		return l.selectFallback(in, err)
	}

	resolved, ok := resolveIDPrefix(contract.SelectedNodeID, in.Candidates, in.ExcludedIDs)
	if !ok {
		l.log.Warn("select returned invalid or excluded id, using fallback", "id", contract.SelectedNodeID)
		return l.selectFallback(in, fmt.Errorf("id %q is invalid or excluded", contract.SelectedNodeID))
	}

	return SelectResult{SelectedDirectionID: resolved, Reasoning: contract.Reasoning}
}

func (l *Lead) selectFallback(in SelectInput, cause error) SelectResult {
	excluded := make(map[string]bool, len(in.ExcludedIDs))
	for _, id := range in.ExcludedIDs {
		excluded[id] = true
	}
	for _, c := range in.Candidates {
		if !excluded[c.IDPrefix] {
			return SelectResult{
				SelectedDirectionID: c.IDPrefix,
				Reasoning:           fmt.Sprintf("Fallback selection: %v", cause),
				UsedFallback:        true,
			}
		}
	}
	return SelectResult{
		Reasoning:    fmt.Sprintf("Fallback selection: %v (no eligible candidates)", cause),
		UsedFallback: true,
	}
}

// resolveIDPrefix accepts a full id match or an unambiguous prefix
// match against candidates, excluding any id in excluded (§4.6.1).
func resolveIDPrefix(id string, candidates []Candidate, excluded []string) (string, bool) {
	if id == "" {
		return "", false
	}
	excludedSet := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		excludedSet[e] = true
	}

	for _, c := range candidates {
		if c.IDPrefix == id {
			if excludedSet[c.IDPrefix] {
				return "", false
			}
			return c.IDPrefix, true
		}
	}

	var match string
	matches := 0
	for _, c := range candidates {
		if strings.HasPrefix(c.IDPrefix, id) {
			matches++
			match = c.IDPrefix
		}
	}
	if matches != 1 {
		return "", false
	}
	if excludedSet[match] {
		return "", false
	}
	return match, true
}

// Synthesize reconciles worker output into candidate directions
// (§4.6.2). Never returns an error.
func (l *Lead) Synthesize(ctx context.Context, in SynthesizeInput) SynthesizeResult {
	out, err := l.run(ctx, "synthesize", synthesizeSystemPrompt(in), synthesizeUserPrompt(in))
	if err != nil {
		l.log.Warn("synthesize call failed, using fallback", "error", err)
		return synthesizeFallback(in, err)
	}

	var contract struct {
		Directions []struct {
			Claim            string   `json:"claim"`
			Description      string   `json:"description"`
			Stance           string   `json:"stance"`
			DirectionOutcome string   `json:"direction_outcome"`
			Confidence       float64  `json:"confidence"`
			Importance       float64  `json:"importance"`
			Reasoning        string   `json:"reasoning"`
			EvidenceSummary  string   `json:"evidence_summary"`
			Tags             []string `json:"tags"`
		} `json:"directions"`
		SynthesisReasoning  string   `json:"synthesis_reasoning"`
		ConsensusDirections []string `json:"consensus_directions"`
		Contradictions      []string `json:"contradictions"`
	}

	raw, err := extractJSONObject(out.RawText)
	if err != nil {
		l.log.Warn("synthesize response had no valid JSON, using fallback", "error", err)
		return synthesizeFallback(in, err)
	}
	if err := json.Unmarshal(raw, &contract); err != nil {
		l.log.Warn("synthesize JSON didn't match contract, using fallback", "error", err)
		return synthesizeFallback(in, err)
	}

	directions := make([]SynthesizedDirection, 0, len(contract.Directions))
	for _, d := range contract.Directions {
		if strings.TrimSpace(d.Description) == "" {
			continue // "Reject directions with empty description" (§4.6.2)
		}
		stance := Stance(d.Stance)
		outcome := Outcome(d.DirectionOutcome)
		if outcome == "" && stance == StanceDisconfirm {
			outcome = OutcomeComplete
		}
		directions = append(directions, SynthesizedDirection{
			Claim:            d.Claim,
			Description:      d.Description,
			Stance:           stance,
			DirectionOutcome: outcome,
			Confidence:       graph.Clamp01(d.Confidence),
			Importance:       graph.Clamp01(d.Importance),
			Reasoning:        d.Reasoning,
			EvidenceSummary:  d.EvidenceSummary,
			Tags:             d.Tags,
		})
	}

	if len(directions) == 0 {
		l.log.Warn("synthesize produced no usable directions, using fallback")
		return synthesizeFallback(in, fmt.Errorf("model returned zero non-empty directions"))
	}

	return SynthesizeResult{
		Directions:          directions,
		SynthesisReasoning:  contract.SynthesisReasoning,
		ConsensusDirections: contract.ConsensusDirections,
		Contradictions:      contract.Contradictions,
	}
}

func synthesizeFallback(in SynthesizeInput, cause error) SynthesizeResult {
	return SynthesizeResult{
		Directions: []SynthesizedDirection{{
			Claim:            fmt.Sprintf("Continue investigating: %s", in.TargetClaim),
			Description:      fmt.Sprintf("Synthesis parsing failed (%v); continuing investigation of the target direction with the existing evidence base.", cause),
			Stance:           StanceMixed,
			DirectionOutcome: OutcomePursue,
			Confidence:       0.5,
			Importance:       0.7,
			Reasoning:        "Fallback synthesis",
			EvidenceSummary:  "Synthesis response could not be parsed.",
		}},
		SynthesisReasoning: fmt.Sprintf("Fallback synthesis: %v", cause),
		UsedFallback:       true,
	}
}

// Reassess judges whether the target direction should keep being
// pursued (§4.6.3). Never returns an error.
func (l *Lead) Reassess(ctx context.Context, in ReassessInput) ReassessResult {
	out, err := l.run(ctx, "reassess", reassessSystemPrompt(in), reassessUserPrompt(in))
	if err != nil {
		l.log.Warn("reassess call failed, using fallback", "error", err)
		return reassessFallback(in)
	}

	var contract struct {
		Action     string  `json:"action"`
		Confidence float64 `json:"confidence"`
		Importance float64 `json:"importance"`
		Status     string  `json:"status"`
		Reasoning  string  `json:"reasoning"`
	}
	raw, err := extractJSONObject(out.RawText)
	if err != nil {
		l.log.Warn("reassess response had no valid JSON, using fallback", "error", err)
		return reassessFallback(in)
	}
	if err := json.Unmarshal(raw, &contract); err != nil {
		l.log.Warn("reassess JSON didn't match contract, using fallback", "error", err)
		return reassessFallback(in)
	}

	status := contract.Status
	switch status {
	case "active", "completed", "closed":
	default:
		status = in.PreviousStatus // "invalid status → retain previous" (§4.6.3)
	}

	action := Action(contract.Action)
	if action == ActionClose {
		status = "completed"
	}

	return ReassessResult{
		Action:     action,
		Confidence: graph.Clamp01(contract.Confidence),
		Importance: graph.Clamp01(contract.Importance),
		Status:     status,
		Reasoning:  contract.Reasoning,
	}
}

func reassessFallback(in ReassessInput) ReassessResult {
	return ReassessResult{
		Confidence:   graph.Clamp01(in.PreviousConfidence),
		Importance:   graph.Clamp01(in.PreviousImportance),
		Status:       in.PreviousStatus,
		Reasoning:    "Reassessment parse failed",
		UsedFallback: true,
	}
}
