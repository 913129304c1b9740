// Package merge integrates Lead.Synthesize's output into the direction
// graph: each synthesized direction either updates an existing sibling
// (similarity match) or creates a new child, followed by a sibling
// dedup pass (§4.8).
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/lead"
	"github.com/codeready-toolchain/research-engine/pkg/similarity"
)

// mergeThreshold is the default similarity threshold at which a
// synthesized direction is treated as an update to an existing sibling
// rather than a new direction (§4.2, §4.8).
const mergeThreshold = 0.75

// dedupThreshold is the sibling-consolidation threshold run after every
// merge pass (§4.2, §4.8).
const dedupThreshold = 0.85

// confidenceDiscount is applied to a synthesized direction's confidence
// on both the create and the update branch (§4.8; see DESIGN.md for the
// Open Question this resolves).
const confidenceDiscount = 0.7

// Store is the subset of pkg/store's Store that merge needs.
type Store interface {
	Get(ctx context.Context, workspaceID, id string) (*graph.Direction, error)
	GetChildren(ctx context.Context, workspaceID, parentID string) ([]*graph.Direction, error)
	Create(ctx context.Context, d *graph.Direction) error
	Update(ctx context.Context, d *graph.Direction) error
}

// Result is the merge pass's summary, returned to the cycle executor
// for its node.created/node.updated events and CycleRecord bookkeeping.
type Result struct {
	CreatedIDs []string
	UpdatedIDs []string
	SkippedIDs []string // reserved for future rejection policies (§4.8)
	DedupCount int
}

// Thresholds are the tunable similarity/discount constants merge needs,
// normally sourced from config.Thresholds (§4.2, §4.8). A zero value of
// any field falls back to the spec's stated default.
type Thresholds struct {
	MergeThreshold     float64
	DedupThreshold     float64
	ConfidenceDiscount float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.MergeThreshold == 0 {
		t.MergeThreshold = mergeThreshold
	}
	if t.DedupThreshold == 0 {
		t.DedupThreshold = dedupThreshold
	}
	if t.ConfidenceDiscount == 0 {
		t.ConfidenceDiscount = confidenceDiscount
	}
	return t
}

// Apply merges every synthesized direction under targetID using the
// spec's default thresholds, then runs a sibling dedup pass (§4.2, §4.8).
func Apply(ctx context.Context, st Store, workspaceID, targetID string, directions []lead.SynthesizedDirection, cycleID int) (Result, error) {
	return ApplyWithThresholds(ctx, st, workspaceID, targetID, directions, cycleID, Thresholds{})
}

// ApplyWithThresholds is Apply with explicit, config-sourced thresholds.
func ApplyWithThresholds(ctx context.Context, st Store, workspaceID, targetID string, directions []lead.SynthesizedDirection, cycleID int, thresholds Thresholds) (Result, error) {
	thresholds = thresholds.withDefaults()

	target, err := st.Get(ctx, workspaceID, targetID)
	if err != nil {
		return Result{}, fmt.Errorf("merge: get target %q: %w", targetID, err)
	}

	var result Result
	for _, d := range directions {
		siblings, err := st.GetChildren(ctx, workspaceID, targetID)
		if err != nil {
			return result, fmt.Errorf("merge: get children of %q: %w", targetID, err)
		}

		candidates := make([]similarity.Candidate, 0, len(siblings))
		for _, s := range siblings {
			candidates = append(candidates, similarity.Candidate{
				ID:       s.ID,
				ParentID: s.ParentID,
				Claim:    s.Claim,
				Active:   !s.Status.Terminal(),
			})
		}

		matches := similarity.FindSimilar(candidates, d.Claim, targetID, thresholds.MergeThreshold, 1)
		if len(matches) > 0 {
			existing, err := st.Get(ctx, workspaceID, matches[0].DirectionID)
			if err != nil {
				return result, fmt.Errorf("merge: get matched direction %q: %w", matches[0].DirectionID, err)
			}
			if err := update(ctx, st, workspaceID, existing, d, cycleID, thresholds.ConfidenceDiscount); err != nil {
				return result, fmt.Errorf("merge: update %q: %w", existing.ID, err)
			}
			result.UpdatedIDs = append(result.UpdatedIDs, existing.ID)
			continue
		}

		created, err := create(ctx, st, workspaceID, target, d, cycleID, thresholds.ConfidenceDiscount)
		if err != nil {
			return result, fmt.Errorf("merge: create under %q: %w", targetID, err)
		}
		result.CreatedIDs = append(result.CreatedIDs, created.ID)
	}

	dedupCount, err := similarity.DeduplicateChildren(ctx, st, workspaceID, targetID, cycleID, thresholds.DedupThreshold)
	if err != nil {
		return result, fmt.Errorf("merge: dedup children of %q: %w", targetID, err)
	}
	result.DedupCount = dedupCount

	return result, nil
}

// update implements the §4.8 update branch: appends a synthetic
// evidence entry sourced from the lead's synthesis, combines confidence
// by the independent-confirmation formula with the incoming confidence
// discounted, prefers the longer claim/description, blends importance
// 0.7*old+0.3*new, unions tags, and stamps updated_by_cycle.
func update(ctx context.Context, st Store, workspaceID string, existing *graph.Direction, d lead.SynthesizedDirection, cycleID int, confidenceDiscount float64) error {
	existing.Evidence = append(existing.Evidence, graph.Evidence{
		Text:       d.EvidenceSummary,
		Source:     fmt.Sprintf("lead_llm_synthesis_cycle_%d", cycleID),
		ObservedAt: time.Now().UTC(),
		VerifiedBy: []string{fmt.Sprintf("lead_llm_cycle_%d", cycleID)},
	})

	discounted := d.Confidence * confidenceDiscount
	combined := 1 - (1-existing.Confidence)*(1-discounted)
	existing.Confidence = graph.ClampConfidence(combined, 0.95)

	if len(d.Claim) > len(existing.Claim) {
		existing.Claim = d.Claim
	}
	if len(d.Description) > len(existing.Description) {
		existing.Description = d.Description
	}

	existing.Importance = graph.Clamp01(0.7*existing.Importance + 0.3*d.Importance)
	existing.Tags = unionTags(existing.Tags, d.Tags)
	if d.Stance == lead.StanceMixed {
		existing.Tags = addTag(existing.Tags, "disputed")
	}

	existing.UpdatedByCycle = cycleID
	existing.UpdatedAt = time.Now().UTC()

	if d.DirectionOutcome == lead.OutcomeComplete {
		existing.Status = graph.StatusCompleted
	}

	return st.Update(ctx, existing)
}

// create implements the §4.8 create branch: inserts a new direction
// under target with the incoming confidence discounted, importance
// taken as given, and depth = parent.depth + 1.
func create(ctx context.Context, st Store, workspaceID string, target *graph.Direction, d lead.SynthesizedDirection, cycleID int, confidenceDiscount float64) (*graph.Direction, error) {
	created := graph.NewDirection(workspaceID, d.Claim, cycleID)
	created.ParentID = target.ID
	created.Description = d.Description
	created.Confidence = graph.ClampConfidence(d.Confidence*confidenceDiscount, 0.95)
	created.Importance = graph.Clamp01(d.Importance)
	created.Depth = target.Depth + 1
	created.Tags = d.Tags
	if d.Stance == lead.StanceMixed {
		created.Tags = addTag(created.Tags, "disputed")
	}
	created.Evidence = []graph.Evidence{{
		Text:       d.EvidenceSummary,
		Source:     fmt.Sprintf("lead_llm_synthesis_cycle_%d", cycleID),
		ObservedAt: time.Now().UTC(),
		VerifiedBy: []string{fmt.Sprintf("lead_llm_cycle_%d", cycleID)},
	}}
	if d.DirectionOutcome == lead.OutcomeComplete {
		created.Status = graph.StatusCompleted
	}

	if err := st.Create(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

func unionTags(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range incoming {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func addTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
