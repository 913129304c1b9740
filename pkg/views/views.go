// Package views renders token-budgeted textual views of a workspace's
// direction graph: a tree summary, a focused single-node view, and a
// weakest-N ranking (§4.4).
package views

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/textbudget"
)

// Store is the subset of pkg/store's Store that views need.
type Store interface {
	Get(ctx context.Context, workspaceID, id string) (*graph.Direction, error)
	GetChildren(ctx context.Context, workspaceID, parentID string) ([]*graph.Direction, error)
	GetRoots(ctx context.Context, workspaceID string) ([]*graph.Direction, error)
	GetActive(ctx context.Context, workspaceID string) ([]*graph.Direction, error)
}

const (
	summaryMaxDepth = 2
	summaryMaxNodes = 50
	summaryBudget   = 3200

	focusedMaxDepth       = 3
	focusedEvidencePreview = 3
)

// confidenceBand maps a confidence value to the spec's four bands
// (≥0.8, ≥0.6, ≥0.4, <0.4), labeled A-D since the spec names only the
// thresholds, not display labels.
func confidenceBand(conf float64) string {
	switch {
	case conf >= 0.8:
		return "A"
	case conf >= 0.6:
		return "B"
	case conf >= 0.4:
		return "C"
	default:
		return "D"
	}
}

func stalenessHours(d *graph.Direction, now time.Time) float64 {
	return d.Staleness(now).Hours()
}

// statusMarkers returns the subset of {LOW-CONF, STALE, SHALLOW,
// DISPUTED} that apply to d (§4.4). STALE fires past 72h; SHALLOW marks
// depth-0 (thesis-level) nodes, since the concreteness ladder (§4.6.1)
// treats depth 0 as the least concrete level; DISPUTED marks nodes
// tagged "disputed" by Lead synthesis (§4.6.2 mixed-stance directions).
func statusMarkers(d *graph.Direction, now time.Time) []string {
	var markers []string
	if d.Confidence < 0.4 {
		markers = append(markers, "LOW-CONF")
	}
	if stalenessHours(d, now) > 72 {
		markers = append(markers, "STALE")
	}
	if d.Depth == 0 {
		markers = append(markers, "SHALLOW")
	}
	for _, t := range d.Tags {
		if t == "disputed" {
			markers = append(markers, "DISPUTED")
			break
		}
	}
	return markers
}

func claimPrefix(claim string, n int) string {
	r := []rune(claim)
	if len(r) <= n {
		return claim
	}
	return string(r[:n]) + "…"
}

// Summary renders the top of the tree down to summaryMaxDepth, capped at
// summaryMaxNodes, one line per node, and truncates to summaryBudget
// characters (§4.4).
func Summary(ctx context.Context, st Store, workspaceID string) (string, error) {
	roots, err := st.GetRoots(ctx, workspaceID)
	if err != nil {
		return "", fmt.Errorf("summary view: get roots: %w", err)
	}

	var b strings.Builder
	now := time.Now()
	count := 0

	var walk func(d *graph.Direction, depth int) error
	walk = func(d *graph.Direction, depth int) error {
		if count >= summaryMaxNodes {
			return nil
		}
		count++

		markers := statusMarkers(d, now)
		markerStr := ""
		if len(markers) > 0 {
			markerStr = " [" + strings.Join(markers, ",") + "]"
		}

		fmt.Fprintf(&b, "%s- (%s) conf=%s depth=%d children=%d%s\n",
			strings.Repeat("  ", depth), claimPrefix(d.Claim, 80), confidenceBand(d.Confidence),
			d.Depth, len(d.Children), markerStr)

		if depth >= summaryMaxDepth {
			return nil
		}
		children, err := st.GetChildren(ctx, workspaceID, d.ID)
		if err != nil {
			return fmt.Errorf("summary view: get children of %q: %w", d.ID, err)
		}
		for _, c := range children {
			if count >= summaryMaxNodes {
				return nil
			}
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range roots {
		if count >= summaryMaxNodes {
			break
		}
		if err := walk(r, 0); err != nil {
			return "", err
		}
	}

	return textbudget.Truncate(b.String(), summaryBudget), nil
}

// Focused renders the path from root to targetID, targetID's full
// attributes (evidence preview capped at focusedEvidencePreview items),
// and its subtree down to focusedMaxDepth (§4.4).
func Focused(ctx context.Context, st Store, workspaceID, targetID string) (string, error) {
	target, err := st.Get(ctx, workspaceID, targetID)
	if err != nil {
		return "", fmt.Errorf("focused view: get target %q: %w", targetID, err)
	}

	var path []*graph.Direction
	cur := target
	for {
		path = append([]*graph.Direction{cur}, path...)
		if cur.ParentID == "" {
			break
		}
		parent, err := st.Get(ctx, workspaceID, cur.ParentID)
		if err != nil {
			break
		}
		cur = parent
	}

	var b strings.Builder
	b.WriteString("Path to target:\n")
	for i, n := range path {
		fmt.Fprintf(&b, "%s- %s (conf=%.2f)\n", strings.Repeat("  ", i), claimPrefix(n.Claim, 80), n.Confidence)
	}

	fmt.Fprintf(&b, "\nTarget: %s\n", target.Claim)
	fmt.Fprintf(&b, "Description: %s\n", target.Description)
	fmt.Fprintf(&b, "Confidence: %.2f  Importance: %.2f  Depth: %d  Status: %s\n",
		target.Confidence, target.Importance, target.Depth, target.Status)
	if len(target.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(target.Tags, ", "))
	}

	b.WriteString("Evidence:\n")
	for i, ev := range target.Evidence {
		if i >= focusedEvidencePreview {
			fmt.Fprintf(&b, "  ... (%d more)\n", len(target.Evidence)-focusedEvidencePreview)
			break
		}
		fmt.Fprintf(&b, "  - %s (source: %s)\n", ev.Text, ev.Source)
	}

	b.WriteString("\nSubtree:\n")
	var walk func(d *graph.Direction, depth int) error
	walk = func(d *graph.Direction, depth int) error {
		fmt.Fprintf(&b, "%s- %s (conf=%.2f)\n", strings.Repeat("  ", depth), claimPrefix(d.Claim, 80), d.Confidence)
		if depth >= focusedMaxDepth {
			return nil
		}
		children, err := st.GetChildren(ctx, workspaceID, d.ID)
		if err != nil {
			return fmt.Errorf("focused view: get children of %q: %w", d.ID, err)
		}
		for _, c := range children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(target, 0); err != nil {
		return "", err
	}

	return b.String(), nil
}

// WeakestScore is the score = 0.5·(1-conf) + 0.3·importance +
// 0.2·exploration_bonus formula of §4.4, with exploration_bonus =
// log(1 + staleness_hours/24) · 0.2.
func WeakestScore(d *graph.Direction, now time.Time) float64 {
	hours := stalenessHours(d, now)
	explorationBonus := math.Log(1+hours/24) * 0.2
	return 0.5*(1-d.Confidence) + 0.3*d.Importance + 0.2*explorationBonus
}

// Scored pairs a direction with its weakest-N score.
type Scored struct {
	Direction *graph.Direction
	Score     float64
}

// WeakestN returns the top-N active directions by WeakestScore,
// descending (§4.4).
func WeakestN(ctx context.Context, st Store, workspaceID string, n int) ([]Scored, error) {
	nodes, err := st.GetActive(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("weakest-n view: get active: %w", err)
	}

	now := time.Now()
	scored := make([]Scored, len(nodes))
	for i, d := range nodes {
		scored[i] = Scored{Direction: d, Score: WeakestScore(d, now)}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored, nil
}
