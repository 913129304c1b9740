package similarity

import (
	"context"
	"fmt"
	"sort"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
)

// Store is the subset of pkg/store's Store that dedup needs. Defined here
// (rather than imported from pkg/store) so pkg/similarity stays a leaf
// package with no dependency on the persistence layer's concrete type.
type Store interface {
	GetChildren(ctx context.Context, workspaceID, parentID string) ([]*graph.Direction, error)
	Get(ctx context.Context, workspaceID, id string) (*graph.Direction, error)
	Create(ctx context.Context, d *graph.Direction) error
	Update(ctx context.Context, d *graph.Direction) error
}

// evidenceConfidence is the independent-confirmation formula shared with
// pkg/propagation: 1-(1-e)^k for k evidence items of per-item confidence
// e=0.7, capped at 0.95 (§4.3). Duplicated here rather than imported
// from pkg/propagation, so pkg/similarity imports nothing from this
// module but pkg/graph; the formula is one line and is the spec's own
// definition, not an implementation detail worth sharing a package for.
func evidenceConfidence(k int) float64 {
	if k <= 0 {
		return 0
	}
	const e = 0.7
	conf := 1 - pow(1-e, k)
	return graph.ClampConfidence(conf, 0.95)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// DeduplicateChildren iterates the children of parentID in store order,
// groups each node with later siblings scoring >= threshold, and merges
// every group of size >= 2 (§4.2). It is idempotent (P4): once a round
// produces no groups of size >= 2, a second call is a no-op because the
// merged node already absorbed its duplicates and the originals are
// status=merged (excluded from GetChildren's active listing).
func DeduplicateChildren(ctx context.Context, st Store, workspaceID, parentID string, cycleID int, threshold float64) (int, error) {
	children, err := st.GetChildren(ctx, workspaceID, parentID)
	if err != nil {
		return 0, fmt.Errorf("dedup: get children: %w", err)
	}

	consumed := make(map[string]bool, len(children))
	merges := 0

	for i, c := range children {
		if consumed[c.ID] {
			continue
		}
		group := []*graph.Direction{c}
		for j := i + 1; j < len(children); j++ {
			sib := children[j]
			if consumed[sib.ID] {
				continue
			}
			if Jaccard(c.Claim, sib.Claim) >= threshold {
				group = append(group, sib)
			}
		}
		if len(group) < 2 {
			continue
		}
		for _, m := range group {
			consumed[m.ID] = true
		}

		mergedClaim := longestClaim(group)
		if _, err := Merge(ctx, st, workspaceID, group, mergedClaim, cycleID); err != nil {
			return merges, fmt.Errorf("dedup: merge group led by %q: %w", c.ID, err)
		}
		merges++
	}

	return merges, nil
}

// longestClaim implements the spec's tie-break: the longest claim becomes
// the merged claim (§4.2).
func longestClaim(group []*graph.Direction) string {
	best := group[0].Claim
	for _, d := range group[1:] {
		if len(d.Claim) > len(best) {
			best = d.Claim
		}
	}
	return best
}

// Merge creates a new direction under the common parent of ids, unions
// their evidence and sources, recomputes confidence from the unioned
// evidence via the independent-confirmation formula, takes max(importance)
// and max(depth), reparents children of the merged nodes onto the new
// node, and marks the originals status=merged tagged merged_into:{newId}
// (§4.2, P3).
func Merge(ctx context.Context, st Store, workspaceID string, group []*graph.Direction, mergedClaim string, cycleID int) (*graph.Direction, error) {
	if len(group) < 2 {
		return nil, fmt.Errorf("merge: need at least 2 directions, got %d", len(group))
	}

	parentID := group[0].ParentID
	var evidence []graph.Evidence
	var sources []string
	importance := 0.0
	depth := 0
	var tags []string
	childIDs := make([]string, 0)

	seenSource := map[string]bool{}
	for _, d := range group {
		evidence = append(evidence, d.Evidence...)
		for _, s := range d.Sources {
			if !seenSource[s] {
				seenSource[s] = true
				sources = append(sources, s)
			}
		}
		if d.Importance > importance {
			importance = d.Importance
		}
		if d.Depth > depth {
			depth = d.Depth
		}
		tags = append(tags, d.Tags...)
		childIDs = append(childIDs, d.Children...)
	}

	merged := graph.NewDirection(workspaceID, mergedClaim, cycleID)
	merged.ParentID = parentID
	merged.Depth = depth
	merged.Importance = graph.Clamp01(importance)
	merged.Confidence = evidenceConfidence(len(evidence))
	merged.Evidence = evidence
	merged.Sources = sources
	merged.Tags = dedupStrings(tags)
	merged.Children = childIDs

	if err := st.Create(ctx, merged); err != nil {
		return nil, fmt.Errorf("merge: create merged direction: %w", err)
	}

	// Reparent children of merged nodes onto the new node.
	for _, childID := range childIDs {
		child, err := st.Get(ctx, workspaceID, childID)
		if err != nil {
			continue
		}
		child.ParentID = merged.ID
		if err := st.Update(ctx, child); err != nil {
			return nil, fmt.Errorf("merge: reparent child %q: %w", childID, err)
		}
	}

	// Mark originals merged (P3): every merged id gets status=merged,
	// tagged merged_into:{newId}.
	for _, d := range group {
		d.Status = graph.StatusMerged
		d.Tags = append(d.Tags, fmt.Sprintf("merged_into:%s", merged.ID))
		if err := st.Update(ctx, d); err != nil {
			return nil, fmt.Errorf("merge: mark %q merged: %w", d.ID, err)
		}
	}

	return merged, nil
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
