package report

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
	"github.com/codeready-toolchain/research-engine/pkg/models"
	"github.com/codeready-toolchain/research-engine/pkg/researrors"
)

type memStore struct {
	byID     map[string]*graph.Direction
	children map[string][]string
	cycles   []*models.CycleRecord
	critiques []string
	meta     *models.ReportMetadata
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]*graph.Direction), children: make(map[string][]string)}
}

func (m *memStore) add(d *graph.Direction) {
	m.byID[d.ID] = d
	if d.ParentID != "" {
		m.children[d.ParentID] = append(m.children[d.ParentID], d.ID)
	}
}

func (m *memStore) Get(ctx context.Context, workspaceID, id string) (*graph.Direction, error) {
	return m.byID[id], nil
}

func (m *memStore) GetChildren(ctx context.Context, workspaceID, parentID string) ([]*graph.Direction, error) {
	var out []*graph.Direction
	for _, id := range m.children[parentID] {
		out = append(out, m.byID[id])
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

func (m *memStore) ListCycleRecords(ctx context.Context, workspaceID string, filters models.CycleRecordFilters) ([]*models.CycleRecord, error) {
	return m.cycles, nil
}

func (m *memStore) GetRecentCritiques(ctx context.Context, workspaceID string, limit int) ([]string, error) {
	return m.critiques, nil
}

func (m *memStore) GetReportMetadata(ctx context.Context, workspaceID string) (*models.ReportMetadata, error) {
	if m.meta == nil {
		return &models.ReportMetadata{WorkspaceID: workspaceID}, nil
	}
	return m.meta, nil
}

func (m *memStore) SaveReportMetadata(ctx context.Context, meta *models.ReportMetadata) error {
	m.meta = meta
	return nil
}

type canned struct {
	text string
	err  error

	mu      sync.Mutex
	release chan struct{}
}

func (c *canned) Name() string                    { return "canned" }
func (c *canned) SupportsNativeSearch() bool       { return false }
func (c *canned) Verify(ctx context.Context) error { return nil }
func (c *canned) Run(ctx context.Context, req llmadapter.CompletionRequest) (llmadapter.RunOutput, error) {
	if c.release != nil {
		<-c.release
	}
	if c.err != nil {
		return llmadapter.RunOutput{}, c.err
	}
	return llmadapter.RunOutput{RawText: c.text}, nil
}

const canned1 = "## Executive Summary\nThings are going well.\n\n## Key Findings (grouped by theme)\n- finding\n"

func TestSynthesizer_Generate_FailsEarlyOnZeroActiveNodes(t *testing.T) {
	st := newMemStore()
	s := New(Options{Store: st, Adapter: &canned{text: canned1}, WorkspaceID: "ws1"})

	_, err := s.Generate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero active directions")
}

func TestSynthesizer_Generate_WrapsFrontMatterAndFooter(t *testing.T) {
	st := newMemStore()
	root := graph.NewDirection("ws1", "root claim", 1)
	root.Importance = 0.9
	root.Confidence = 0.6
	st.add(root)
	st.cycles = []*models.CycleRecord{{CycleID: 1, WorkspaceID: "ws1", TargetClaim: "root claim", Success: true, CreatedAt: time.Now()}}

	s := New(Options{Store: st, Adapter: &canned{text: canned1}, WorkspaceID: "ws1"})

	md, err := s.Generate(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, "nodes: 1")
	assert.Contains(t, md, "cycles: 1")
	assert.Contains(t, md, "Executive Summary")
	assert.Contains(t, md, "Regenerate this report")

	require.NotNil(t, st.meta)
	assert.Equal(t, md, st.meta.Markdown)
	require.NotNil(t, st.meta.LastGeneratedAt)
}

func TestSynthesizer_Generate_RejectsConcurrentGeneration(t *testing.T) {
	st := newMemStore()
	root := graph.NewDirection("ws1", "root claim", 1)
	st.add(root)

	release := make(chan struct{})
	adapter := &canned{text: canned1, release: release}
	s := New(Options{Store: st, Adapter: adapter, WorkspaceID: "ws1"})

	done := make(chan struct{})
	var firstErr error
	go func() {
		_, firstErr = s.Generate(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, time.Millisecond)

	_, err := s.Generate(context.Background())
	require.Error(t, err)
	var busy *researrors.ReportBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, "ws1", busy.WorkspaceID)

	close(release)
	<-done
	require.NoError(t, firstErr)
}

func TestSynthesizer_NodeListing_BriefForLowImportancePastThreshold(t *testing.T) {
	st := newMemStore()
	root := graph.NewDirection("ws1", "root claim", 1)
	root.Importance = 0.9
	st.add(root)
	for i := 0; i < briefListingThreshold; i++ {
		child := graph.NewDirection("ws1", "minor finding", 1)
		child.ParentID = root.ID
		child.Importance = 0.1
		child.Evidence = []graph.Evidence{{Text: "some evidence text"}}
		st.add(child)
	}

	s := New(Options{Store: st, Adapter: &canned{text: canned1}, WorkspaceID: "ws1"})
	listing := s.buildNodeListing(context.Background())

	assert.NotContains(t, listing, "some evidence text")
	assert.Contains(t, listing, "minor finding")
}
