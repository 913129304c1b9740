package cycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-engine/pkg/events"
	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/lead"
	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
	"github.com/codeready-toolchain/research-engine/pkg/models"
	"github.com/codeready-toolchain/research-engine/pkg/worker"
)

// memStore is an in-memory Store good enough to drive a full cycle.
type memStore struct {
	byID    map[string]*graph.Direction
	records map[int]*models.CycleRecord
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]*graph.Direction), records: make(map[int]*models.CycleRecord)}
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

func (m *memStore) GetRoots(ctx context.Context, workspaceID string) ([]*graph.Direction, error) {
	var out []*graph.Direction
	for _, d := range m.byID {
		if d.IsRoot() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) GetActive(ctx context.Context, workspaceID string) ([]*graph.Direction, error) {
	var out []*graph.Direction
	for _, d := range m.byID {
		if !d.Status.Terminal() {
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

func (m *memStore) EnsureWorkspace(ctx context.Context, workspaceID, name string) error { return nil }

func (m *memStore) SaveCycleRecord(ctx context.Context, rec *models.CycleRecord) error {
	m.records[rec.CycleID] = rec
	return nil
}

func (m *memStore) ListCycleRecords(ctx context.Context, workspaceID string, filters models.CycleRecordFilters) ([]*models.CycleRecord, error) {
	return nil, nil
}

func (m *memStore) GetAllSearchQueries(ctx context.Context, workspaceID string, limit int) ([]string, error) {
	return nil, nil
}

func (m *memStore) GetRecentCritiques(ctx context.Context, workspaceID string, limit int) ([]string, error) {
	return nil, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// sequencedAdapter returns texts[call] on the nth call, used to drive
// Lead's three sequential one-shot calls (select, synthesize, reassess)
// within a single cycle.
type sequencedAdapter struct {
	name  string
	texts []string
	calls int
}

func (s *sequencedAdapter) Name() string                    { return s.name }
func (s *sequencedAdapter) SupportsNativeSearch() bool       { return false }
func (s *sequencedAdapter) Verify(ctx context.Context) error { return nil }
func (s *sequencedAdapter) Run(ctx context.Context, req llmadapter.CompletionRequest) (llmadapter.RunOutput, error) {
	i := s.calls
	s.calls++
	if i >= len(s.texts) {
		return llmadapter.RunOutput{}, assertErr("sequencedAdapter: no more canned responses")
	}
	return llmadapter.RunOutput{RawText: s.texts[i]}, nil
}

type workerAdapter struct {
	name string
	text string
	err  error
}

func (w *workerAdapter) Name() string                    { return w.name }
func (w *workerAdapter) SupportsNativeSearch() bool       { return false }
func (w *workerAdapter) Verify(ctx context.Context) error { return nil }
func (w *workerAdapter) Run(ctx context.Context, req llmadapter.CompletionRequest) (llmadapter.RunOutput, error) {
	if w.err != nil {
		return llmadapter.RunOutput{}, w.err
	}
	return llmadapter.RunOutput{RawText: w.text}, nil
}

func fastWorker(name, text string, err error) *worker.Worker {
	return worker.New(worker.Options{
		Name:    name,
		Adapter: &workerAdapter{name: name, text: text, err: err},
		Policy:  worker.RetryPolicy{BaseDelay: 1, MaxDelay: 1, Attempts: 1},
	})
}

const synthesizeResponse = `{"directions":[{"claim":"narrower finding","description":"a longer finding description","stance":"support","confidence":0.7,"importance":0.6,"reasoning":"r","evidence_summary":"evidence"}],"synthesis_reasoning":"synth reasoning","consensus_directions":["narrower finding"],"contradictions":[]}`
const reassessResponse = `{"action":"deepen","confidence":0.6,"importance":0.7,"status":"active","reasoning":"keep going"}`

func TestExecutor_BootstrapsRootOnEmptyGraph(t *testing.T) {
	st := newMemStore()
	// Bootstrap never calls Lead.Select (the graph is empty), so the
	// adapter only needs to answer synthesize then reassess.
	adapter := &sequencedAdapter{name: "lead", texts: []string{synthesizeResponse, reassessResponse}}
	exec := New(Options{
		Store:       st,
		Lead:        lead.New(adapter),
		Workers:     []*worker.Worker{fastWorker("alpha", "finding one", nil)},
		Bus:         events.New(),
		Mission:     "Understand why enterprise buyers churn. Investigate broadly.",
		WorkspaceID: "ws1",
		RawDir:      t.TempDir(),
	})

	rec, err := exec.Run(context.Background(), 1, "", "")

	require.NoError(t, err)
	assert.True(t, rec.Success)
	assert.Empty(t, rec.FailedStage)

	roots, _ := st.GetRoots(context.Background(), "ws1")
	require.Len(t, roots, 1)
	assert.Equal(t, "Understand why enterprise buyers churn.", roots[0].Claim)
	assert.Equal(t, rec.TargetDirectionID, roots[0].ID)
}

func TestExecutor_FullCyclePersistsRecordAndMerges(t *testing.T) {
	st := newMemStore()
	root := graph.NewDirection("ws1", "root thesis", 0)
	st.byID[root.ID] = root

	adapter := &sequencedAdapter{name: "lead", texts: []string{
		`{"selected_node_id": "` + root.ID + `", "reasoning": "only option"}`,
		synthesizeResponse,
		reassessResponse,
	}}
	exec := New(Options{
		Store:       st,
		Lead:        lead.New(adapter),
		Workers:     []*worker.Worker{fastWorker("alpha", "finding one", nil), fastWorker("beta", "finding two", nil)},
		Bus:         events.New(),
		Mission:     "Mission.",
		WorkspaceID: "ws1",
		RawDir:      t.TempDir(),
	})

	rec, err := exec.Run(context.Background(), 2, "", "")

	require.NoError(t, err)
	require.True(t, rec.Success)
	assert.Equal(t, root.ID, rec.TargetDirectionID)
	assert.Len(t, rec.WorkerOutputs, 2)
	assert.Len(t, rec.CreatedDirectionIDs, 1)

	updatedRoot, _ := st.Get(context.Background(), "ws1", root.ID)
	assert.InDelta(t, 0.6, updatedRoot.Confidence, 0.001)
	assert.Equal(t, graph.StatusActive, updatedRoot.Status)

	saved, ok := st.records[2]
	require.True(t, ok)
	assert.True(t, saved.Success)
}

func TestExecutor_AllWorkersFailedTransitionsToFailed(t *testing.T) {
	st := newMemStore()
	root := graph.NewDirection("ws1", "root thesis", 0)
	st.byID[root.ID] = root

	adapter := &sequencedAdapter{name: "lead", texts: []string{
		`{"selected_node_id": "` + root.ID + `", "reasoning": "only option"}`,
	}}
	exec := New(Options{
		Store:   st,
		Lead:    lead.New(adapter),
		Workers: []*worker.Worker{fastWorker("alpha", "", assertErr("boom"))},
		Bus:         events.New(),
		Mission:     "Mission.",
		WorkspaceID: "ws1",
	})

	rec, err := exec.Run(context.Background(), 3, "", "")

	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Equal(t, string(StateDispatching), rec.FailedStage)
}

func TestExecutor_EventOrdering(t *testing.T) {
	st := newMemStore()
	root := graph.NewDirection("ws1", "root thesis", 0)
	st.byID[root.ID] = root

	adapter := &sequencedAdapter{name: "lead", texts: []string{
		`{"selected_node_id": "` + root.ID + `", "reasoning": "only option"}`,
		synthesizeResponse,
		reassessResponse,
	}}
	bus := events.New()
	sub := bus.Subscribe("ws1")
	defer sub.Unsubscribe()

	exec := New(Options{
		Store:       st,
		Lead:        lead.New(adapter),
		Workers:     []*worker.Worker{fastWorker("alpha", "finding one", nil)},
		Bus:         bus,
		Mission:     "Mission.",
		WorkspaceID: "ws1",
		RawDir:      t.TempDir(),
	})

	_, err := exec.Run(context.Background(), 4, "", "")
	require.NoError(t, err)

	var seen []string
drain:
	for {
		select {
		case evt := <-sub.Events():
			seen = append(seen, evt.Type)
		default:
			break drain
		}
	}

	require.NotEmpty(t, seen)
	assert.Equal(t, events.TypeCycleStarted, seen[0])
	assert.Equal(t, events.TypeCycleCompleted, seen[len(seen)-1])
}
