// Package propagation derives Direction confidence from evidence and
// children, and walks the graph to keep derived values current (§4.3).
package propagation

import (
	"context"
	"fmt"
	"math"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
)

// Store is the subset of pkg/store's Store that propagation needs.
type Store interface {
	Get(ctx context.Context, workspaceID, id string) (*graph.Direction, error)
	GetChildren(ctx context.Context, workspaceID, parentID string) ([]*graph.Direction, error)
	GetActive(ctx context.Context, workspaceID string) ([]*graph.Direction, error)
	Update(ctx context.Context, d *graph.Direction) error
}

// evidencePerItem is the per-evidence-item independent-confirmation
// confidence used by the evidence-confidence formula (§4.3).
const evidencePerItem = 0.7

// confidenceCap is the ceiling every derived confidence is clamped to.
const confidenceCap = 0.95

// EvidenceConfidence is 1-(1-e)^k for k evidence items of per-item
// confidence e=0.7, capped at 0.95 (§4.3, P6: monotone non-decreasing in
// k since each added term shrinks (1-e)^k further toward zero).
func EvidenceConfidence(k int) float64 {
	if k <= 0 {
		return 0
	}
	conf := 1 - math.Pow(1-evidencePerItem, float64(k))
	return graph.ClampConfidence(conf, confidenceCap)
}

// childWeight is w_child = min(0.7, |children|/10) (§4.3).
func childWeight(numChildren int) float64 {
	w := float64(numChildren) / 10
	if w > 0.7 {
		return 0.7
	}
	return w
}

// legacyHypothesisConfidence computes support_total/(support_total+
// oppose_total) clamped to [0.05, 0.95] from children tagged with the
// legacy supporting/opposing kinds, using each child's own confidence as
// its vote weight. Returns ok=false when no marked children exist, so the
// caller falls back to the default internal-node rule (§4.3).
func legacyHypothesisConfidence(children []*graph.Direction) (float64, bool) {
	var support, oppose float64
	marked := false
	for _, c := range children {
		switch c.Kind {
		case graph.KindSupporting:
			marked = true
			support += c.Confidence
		case graph.KindOpposing:
			marked = true
			oppose += c.Confidence
		}
	}
	if !marked || support+oppose == 0 {
		return 0, false
	}
	conf := support / (support + oppose)
	if conf < 0.05 {
		conf = 0.05
	}
	if conf > 0.95 {
		conf = 0.95
	}
	return conf, true
}

// Recompute derives node's confidence from its own evidence and its
// children's confidence, without writing or touching the parent. It
// implements the three rules of §4.3: leaf, default internal, and legacy
// hypothesis (tried first, falling back to default when no children carry
// supporting/opposing markers).
func Recompute(node *graph.Direction, children []*graph.Direction) float64 {
	ownConf := EvidenceConfidence(len(node.Evidence))

	if len(children) == 0 {
		return ownConf
	}

	if legacy, ok := legacyHypothesisConfidence(children); ok {
		return legacy
	}

	wChild := childWeight(len(children))
	wOwn := 1 - wChild

	sum := 0.0
	for _, c := range children {
		sum += c.Confidence
	}
	meanChild := sum / float64(len(children))

	return graph.ClampConfidence(wOwn*ownConf+wChild*meanChild, confidenceCap)
}

// PropagateUpward recomputes nodeId's confidence, persists it if changed,
// then walks to its parent and repeats, bounded by maxDepth (defaulting
// to 10) as a safety net against cycles the tree invariant should
// otherwise forbid.
func PropagateUpward(ctx context.Context, st Store, workspaceID, nodeID string, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	currentID := nodeID
	for hop := 0; hop < maxDepth && currentID != ""; hop++ {
		node, err := st.Get(ctx, workspaceID, currentID)
		if err != nil {
			return fmt.Errorf("propagate upward: get %q: %w", currentID, err)
		}
		children, err := st.GetChildren(ctx, workspaceID, currentID)
		if err != nil {
			return fmt.Errorf("propagate upward: get children of %q: %w", currentID, err)
		}

		newConf := Recompute(node, children)
		if math.Abs(newConf-node.Confidence) > 0.01 {
			node.Confidence = newConf
			if err := st.Update(ctx, node); err != nil {
				return fmt.Errorf("propagate upward: update %q: %w", currentID, err)
			}
		}

		currentID = node.ParentID
	}
	return nil
}

// PropagateDownward recomputes confidence starting at nodeId and
// recursing into every descendant, bounded by maxDepth levels below
// nodeId. Used after bulk edits where children changed and parents need
// to reflect it without a full RecalculateAll pass (§4.3).
func PropagateDownward(ctx context.Context, st Store, workspaceID, nodeID string, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return propagateDown(ctx, st, workspaceID, nodeID, maxDepth)
}

func propagateDown(ctx context.Context, st Store, workspaceID, nodeID string, depthRemaining int) error {
	if depthRemaining < 0 {
		return nil
	}

	node, err := st.Get(ctx, workspaceID, nodeID)
	if err != nil {
		return fmt.Errorf("propagate downward: get %q: %w", nodeID, err)
	}
	children, err := st.GetChildren(ctx, workspaceID, nodeID)
	if err != nil {
		return fmt.Errorf("propagate downward: get children of %q: %w", nodeID, err)
	}

	for _, c := range children {
		if err := propagateDown(ctx, st, workspaceID, c.ID, depthRemaining-1); err != nil {
			return err
		}
	}

	// Re-fetch children after their own recomputation so this node's
	// confidence reflects the freshly propagated values, not the stale
	// ones read above.
	children, err = st.GetChildren(ctx, workspaceID, nodeID)
	if err != nil {
		return fmt.Errorf("propagate downward: reget children of %q: %w", nodeID, err)
	}

	newConf := Recompute(node, children)
	if math.Abs(newConf-node.Confidence) > 0.01 {
		node.Confidence = newConf
		if err := st.Update(ctx, node); err != nil {
			return fmt.Errorf("propagate downward: update %q: %w", nodeID, err)
		}
	}
	return nil
}

// RecalculateAll recomputes every active direction in the workspace,
// processing by descending depth so leaves finalize before their parents
// depend on them, and writes only when |Δconfidence| > 0.01.
func RecalculateAll(ctx context.Context, st Store, workspaceID string) (int, error) {
	nodes, err := st.GetActive(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("recalculate all: get active: %w", err)
	}

	byDepthDesc := make([]*graph.Direction, len(nodes))
	copy(byDepthDesc, nodes)
	sortByDepthDescending(byDepthDesc)

	childrenByParent := make(map[string][]*graph.Direction, len(nodes))
	for _, n := range nodes {
		if n.ParentID != "" {
			childrenByParent[n.ParentID] = append(childrenByParent[n.ParentID], n)
		}
	}

	updated := 0
	for _, n := range byDepthDesc {
		newConf := Recompute(n, childrenByParent[n.ID])
		if math.Abs(newConf-n.Confidence) > 0.01 {
			n.Confidence = newConf
			if err := st.Update(ctx, n); err != nil {
				return updated, fmt.Errorf("recalculate all: update %q: %w", n.ID, err)
			}
			updated++
		}
	}
	return updated, nil
}

func sortByDepthDescending(nodes []*graph.Direction) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j].Depth > nodes[j-1].Depth; j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

// BoostConfidence adds boost (defaulting to 0.15) to id's confidence,
// clamps to 0.95, persists, and propagates upward. Used when multiple
// workers independently corroborate a direction.
func BoostConfidence(ctx context.Context, st Store, workspaceID, id string, boost float64, maxDepth int) error {
	if boost <= 0 {
		boost = 0.15
	}

	node, err := st.Get(ctx, workspaceID, id)
	if err != nil {
		return fmt.Errorf("boost confidence: get %q: %w", id, err)
	}

	node.Confidence = graph.ClampConfidence(node.Confidence+boost, confidenceCap)
	if err := st.Update(ctx, node); err != nil {
		return fmt.Errorf("boost confidence: update %q: %w", id, err)
	}

	return PropagateUpward(ctx, st, workspaceID, node.ParentID, maxDepth)
}
