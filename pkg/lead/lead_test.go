package lead

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
)

type stubAdapter struct {
	name string
	text string
	err  error
}

func (s *stubAdapter) Name() string                    { return s.name }
func (s *stubAdapter) SupportsNativeSearch() bool       { return false }
func (s *stubAdapter) Verify(ctx context.Context) error { return nil }
func (s *stubAdapter) Run(ctx context.Context, req llmadapter.CompletionRequest) (llmadapter.RunOutput, error) {
	if s.err != nil {
		return llmadapter.RunOutput{}, s.err
	}
	return llmadapter.RunOutput{RawText: s.text}, nil
}

func candidates() []Candidate {
	return []Candidate{
		{IDPrefix: "dir-aaa111", Claim: "thesis a", Confidence: 0.4, Importance: 0.8, Depth: 0},
		{IDPrefix: "dir-bbb222", Claim: "thesis b", Confidence: 0.6, Importance: 0.5, Depth: 1},
	}
}

func TestSelect_HappyPath(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{"selected_node_id": "dir-bbb222", "reasoning": "most promising"}`}
	l := New(adapter)

	result := l.Select(context.Background(), SelectInput{Candidates: candidates()})

	assert.Equal(t, "dir-bbb222", result.SelectedDirectionID)
	assert.Equal(t, "most promising", result.Reasoning)
	assert.False(t, result.UsedFallback)
}

func TestSelect_PrefixResolution(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{"selected_node_id": "dir-bbb", "reasoning": "prefix works"}`}
	l := New(adapter)

	result := l.Select(context.Background(), SelectInput{Candidates: candidates()})

	assert.Equal(t, "dir-bbb222", result.SelectedDirectionID)
	assert.False(t, result.UsedFallback)
}

func TestSelect_AdapterErrorFallsBackToFirstNonExcluded(t *testing.T) {
	adapter := &stubAdapter{name: "test", err: errors.New("boom")}
	l := New(adapter)

	result := l.Select(context.Background(), SelectInput{Candidates: candidates()})

	require.True(t, result.UsedFallback)
	assert.Equal(t, "dir-aaa111", result.SelectedDirectionID)
}

func TestSelect_InvalidJSONFallsBack(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: "not json at all"}
	l := New(adapter)

	result := l.Select(context.Background(), SelectInput{Candidates: candidates()})

	require.True(t, result.UsedFallback)
	assert.Equal(t, "dir-aaa111", result.SelectedDirectionID)
}

func TestSelect_ExcludedIDRejected(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{"selected_node_id": "dir-aaa111", "reasoning": "x"}`}
	l := New(adapter)

	result := l.Select(context.Background(), SelectInput{
		Candidates:  candidates(),
		ExcludedIDs: []string{"dir-aaa111"},
	})

	require.True(t, result.UsedFallback)
	assert.Equal(t, "dir-bbb222", result.SelectedDirectionID)
}

func TestSelect_AllExcludedFallback(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{"selected_node_id": "dir-aaa111", "reasoning": "x"}`}
	l := New(adapter)

	result := l.Select(context.Background(), SelectInput{
		Candidates:  candidates(),
		ExcludedIDs: []string{"dir-aaa111", "dir-bbb222"},
	})

	require.True(t, result.UsedFallback)
	assert.Empty(t, result.SelectedDirectionID)
}

func TestResolveIDPrefix_AmbiguousPrefixFails(t *testing.T) {
	cands := []Candidate{{IDPrefix: "dir-aaa111"}, {IDPrefix: "dir-aaa222"}}
	_, ok := resolveIDPrefix("dir-aaa", cands, nil)
	assert.False(t, ok)
}

func TestResolveIDPrefix_ExactMatch(t *testing.T) {
	cands := []Candidate{{IDPrefix: "dir-aaa111"}, {IDPrefix: "dir-aaa222"}}
	id, ok := resolveIDPrefix("dir-aaa111", cands, nil)
	require.True(t, ok)
	assert.Equal(t, "dir-aaa111", id)
}

func TestSynthesize_HappyPath(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{
		"directions": [{
			"claim": "narrower claim",
			"description": "a sufficiently detailed description of the finding and next steps",
			"stance": "support",
			"direction_outcome": "pursue",
			"confidence": 0.7,
			"importance": 0.6,
			"reasoning": "evidence aligns",
			"evidence_summary": "three sources agree",
			"tags": ["tag1"]
		}],
		"synthesis_reasoning": "clear consensus",
		"consensus_directions": ["narrower claim"],
		"contradictions": []
	}`}
	l := New(adapter)

	result := l.Synthesize(context.Background(), SynthesizeInput{TargetClaim: "original claim"})

	require.False(t, result.UsedFallback)
	require.Len(t, result.Directions, 1)
	assert.Equal(t, StanceSupport, result.Directions[0].Stance)
	assert.Equal(t, OutcomePursue, result.Directions[0].DirectionOutcome)
}

func TestSynthesize_EmptyDescriptionRejected(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{
		"directions": [{"claim": "x", "description": "", "stance": "support"}],
		"synthesis_reasoning": "r"
	}`}
	l := New(adapter)

	result := l.Synthesize(context.Background(), SynthesizeInput{TargetClaim: "original claim"})

	require.True(t, result.UsedFallback)
	require.Len(t, result.Directions, 1)
	assert.Contains(t, result.Directions[0].Claim, "original claim")
}

func TestSynthesize_DisconfirmDefaultsOutcomeToComplete(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{
		"directions": [{
			"claim": "refuted claim",
			"description": "the evidence clearly disconfirms this direction after investigation",
			"stance": "disconfirm",
			"confidence": 0.2,
			"importance": 0.4
		}],
		"synthesis_reasoning": "refuted"
	}`}
	l := New(adapter)

	result := l.Synthesize(context.Background(), SynthesizeInput{TargetClaim: "original claim"})

	require.False(t, result.UsedFallback)
	require.Len(t, result.Directions, 1)
	assert.Equal(t, OutcomeComplete, result.Directions[0].DirectionOutcome)
}

func TestSynthesize_AdapterErrorFallsBack(t *testing.T) {
	adapter := &stubAdapter{name: "test", err: errors.New("boom")}
	l := New(adapter)

	result := l.Synthesize(context.Background(), SynthesizeInput{TargetClaim: "original claim"})

	require.True(t, result.UsedFallback)
	require.Len(t, result.Directions, 1)
	assert.Equal(t, StanceMixed, result.Directions[0].Stance)
}

func TestReassess_HappyPath(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{
		"action": "deepen",
		"confidence": 0.8,
		"importance": 0.9,
		"status": "active",
		"reasoning": "strong signal"
	}`}
	l := New(adapter)

	result := l.Reassess(context.Background(), ReassessInput{TargetClaim: "x", PreviousStatus: "active"})

	require.False(t, result.UsedFallback)
	assert.Equal(t, ActionDeepen, result.Action)
	assert.Equal(t, 0.8, result.Confidence)
	assert.Equal(t, "active", result.Status)
}

func TestReassess_InvalidStatusRetainsPrevious(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{
		"action": "deepen", "confidence": 0.5, "importance": 0.5, "status": "bogus", "reasoning": "r"
	}`}
	l := New(adapter)

	result := l.Reassess(context.Background(), ReassessInput{PreviousStatus: "active"})

	assert.Equal(t, "active", result.Status)
}

func TestReassess_CloseForcesStatusCompleted(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{
		"action": "close", "confidence": 0.9, "importance": 0.9, "status": "active", "reasoning": "done"
	}`}
	l := New(adapter)

	result := l.Reassess(context.Background(), ReassessInput{PreviousStatus: "active"})

	assert.Equal(t, ActionClose, result.Action)
	assert.Equal(t, "completed", result.Status)
}

func TestReassess_ConfidenceClamped(t *testing.T) {
	adapter := &stubAdapter{name: "test", text: `{
		"action": "deepen", "confidence": 1.5, "importance": -0.3, "status": "active", "reasoning": "r"
	}`}
	l := New(adapter)

	result := l.Reassess(context.Background(), ReassessInput{PreviousStatus: "active"})

	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, 0.0, result.Importance)
}

func TestReassess_AdapterErrorRetainsPrevious(t *testing.T) {
	adapter := &stubAdapter{name: "test", err: errors.New("boom")}
	l := New(adapter)

	result := l.Reassess(context.Background(), ReassessInput{
		PreviousStatus:     "active",
		PreviousConfidence: 0.42,
		PreviousImportance: 0.77,
	})

	require.True(t, result.UsedFallback)
	assert.Equal(t, "active", result.Status)
	assert.Equal(t, 0.42, result.Confidence)
	assert.Equal(t, 0.77, result.Importance)
}
