package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/lead"
)

type memStore struct {
	byID map[string]*graph.Direction
}

func newMemStore(dirs ...*graph.Direction) *memStore {
	m := &memStore{byID: make(map[string]*graph.Direction)}
	for _, d := range dirs {
		m.byID[d.ID] = d
	}
	return m
}

func (m *memStore) Get(ctx context.Context, workspaceID, id string) (*graph.Direction, error) {
	d, ok := m.byID[id]
	if !ok {
		return nil, assertErr("not found: " + id)
	}
	return d, nil
}

func (m *memStore) GetChildren(ctx context.Context, workspaceID, parentID string) ([]*graph.Direction, error) {
	var out []*graph.Direction
	for _, d := range m.byID {
		if d.ParentID == parentID && !d.Status.Terminal() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) Create(ctx context.Context, d *graph.Direction) error {
	m.byID[d.ID] = d
	return nil
}

func (m *memStore) Update(ctx context.Context, d *graph.Direction) error {
	m.byID[d.ID] = d
	return nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestApply_CreateBranch(t *testing.T) {
	target := graph.NewDirection("ws", "root thesis", 1)
	target.Depth = 0
	st := newMemStore(target)

	result, err := Apply(context.Background(), st, "ws", target.ID, []lead.SynthesizedDirection{{
		Claim:           "a brand new narrower claim nobody has seen",
		Description:     "description",
		Stance:          lead.StanceSupport,
		Confidence:      0.8,
		Importance:      0.6,
		EvidenceSummary: "evidence",
	}}, 2)

	require.NoError(t, err)
	require.Len(t, result.CreatedIDs, 1)
	assert.Empty(t, result.UpdatedIDs)

	created, _ := st.Get(context.Background(), "ws", result.CreatedIDs[0])
	assert.Equal(t, 1, created.Depth)
	assert.InDelta(t, 0.8*confidenceDiscount, created.Confidence, 0.001)
	assert.Equal(t, 0.6, created.Importance)
}

func TestApply_UpdateBranch(t *testing.T) {
	target := graph.NewDirection("ws", "root thesis", 1)
	st := newMemStore(target)

	existing := graph.NewDirection("ws", "buyers dislike onboarding friction", 1)
	existing.ParentID = target.ID
	existing.Confidence = 0.5
	existing.Importance = 0.4
	st.byID[existing.ID] = existing

	result, err := Apply(context.Background(), st, "ws", target.ID, []lead.SynthesizedDirection{{
		Claim:           "buyers dislike onboarding friction severely",
		Description:     "a much longer and more thorough description of the finding",
		Stance:          lead.StanceSupport,
		Confidence:      0.9,
		Importance:      0.8,
		EvidenceSummary: "more evidence",
	}}, 2)

	require.NoError(t, err)
	require.Len(t, result.UpdatedIDs, 1)
	assert.Empty(t, result.CreatedIDs)

	updated, _ := st.Get(context.Background(), "ws", existing.ID)
	assert.Len(t, updated.Evidence, 1)
	assert.Greater(t, updated.Confidence, 0.5)
	assert.Equal(t, 2, updated.UpdatedByCycle)
	assert.Contains(t, updated.Claim, "severely")
}

func TestApply_MixedStanceTaggedDisputed(t *testing.T) {
	target := graph.NewDirection("ws", "root thesis", 1)
	st := newMemStore(target)

	result, err := Apply(context.Background(), st, "ws", target.ID, []lead.SynthesizedDirection{{
		Claim:           "conflicting evidence about pricing sensitivity",
		Description:     "description",
		Stance:          lead.StanceMixed,
		Confidence:      0.5,
		Importance:      0.5,
		EvidenceSummary: "evidence",
	}}, 2)

	require.NoError(t, err)
	require.Len(t, result.CreatedIDs, 1)
	created, _ := st.Get(context.Background(), "ws", result.CreatedIDs[0])
	assert.Contains(t, created.Tags, "disputed")
}

func TestApply_DedupRunsAfterMerging(t *testing.T) {
	target := graph.NewDirection("ws", "root thesis", 1)
	st := newMemStore(target)

	a := graph.NewDirection("ws", "enterprise buyers want SSO", 1)
	a.ParentID = target.ID
	b := graph.NewDirection("ws", "enterprise buyers want SSO", 1)
	b.ParentID = target.ID
	st.byID[a.ID] = a
	st.byID[b.ID] = b

	result, err := Apply(context.Background(), st, "ws", target.ID, nil, 2)

	require.NoError(t, err)
	assert.Equal(t, 1, result.DedupCount)
}
