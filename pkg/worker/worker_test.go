package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
	"github.com/codeready-toolchain/research-engine/pkg/researrors"
)

type stubAdapter struct {
	name    string
	outputs []llmadapter.RunOutput
	errs    []error
	calls   int
}

func (s *stubAdapter) Name() string                    { return s.name }
func (s *stubAdapter) SupportsNativeSearch() bool       { return false }
func (s *stubAdapter) Verify(ctx context.Context) error { return nil }
func (s *stubAdapter) Run(ctx context.Context, req llmadapter.CompletionRequest) (llmadapter.RunOutput, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return llmadapter.RunOutput{}, s.errs[i]
	}
	if i < len(s.outputs) {
		return s.outputs[i], nil
	}
	return s.outputs[len(s.outputs)-1], nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Attempts: 3}
}

func TestWorker_HappyPathSplitsSelfCritique(t *testing.T) {
	adapter := &stubAdapter{name: "claude", outputs: []llmadapter.RunOutput{{
		RawText: "The finding is X.\n<self_critique>Confidence is moderate.</self_critique>",
	}}}
	w := New(Options{Name: "alpha", Adapter: adapter, Policy: fastPolicy()})

	out := w.Run(context.Background(), Input{FocusedView: "target: X"})

	assert.False(t, out.Failed)
	assert.Equal(t, "The finding is X.", out.RawText)
	assert.Equal(t, "Confidence is moderate.", out.Critique)
	assert.Equal(t, "alpha", out.AgentName)
}

func TestWorker_NoSelfCritiqueTagLeavesRawTextWhole(t *testing.T) {
	adapter := &stubAdapter{name: "claude", outputs: []llmadapter.RunOutput{{RawText: "just findings, no tag"}}}
	w := New(Options{Name: "alpha", Adapter: adapter, Policy: fastPolicy()})

	out := w.Run(context.Background(), Input{FocusedView: "target"})

	assert.False(t, out.Failed)
	assert.Equal(t, "just findings, no tag", out.RawText)
	assert.Empty(t, out.Critique)
}

func TestWorker_TransientErrorRetriesThenSucceeds(t *testing.T) {
	adapter := &stubAdapter{
		name: "claude",
		errs: []error{&researrors.ProviderTransientError{Provider: "claude", Err: assertErr("timeout")}, nil},
		outputs: []llmadapter.RunOutput{{}, {RawText: "recovered"}},
	}
	w := New(Options{Name: "alpha", Adapter: adapter, Policy: fastPolicy()})

	out := w.Run(context.Background(), Input{FocusedView: "target"})

	assert.False(t, out.Failed)
	assert.Equal(t, "recovered", out.RawText)
	assert.Equal(t, 2, adapter.calls)
}

func TestWorker_AuthErrorNotRetried(t *testing.T) {
	adapter := &stubAdapter{
		name: "claude",
		errs: []error{&researrors.AuthError{Adapter: "claude", Err: assertErr("bad key")}},
	}
	w := New(Options{Name: "alpha", Adapter: adapter, Policy: fastPolicy()})

	out := w.Run(context.Background(), Input{FocusedView: "target"})

	require.True(t, out.Failed)
	assert.Equal(t, 1, adapter.calls)
	assert.Contains(t, out.Critique, "bad key")
}

func TestWorker_ExhaustedRetriesFails(t *testing.T) {
	transient := &researrors.ProviderTransientError{Provider: "claude", Err: assertErr("down")}
	adapter := &stubAdapter{name: "claude", errs: []error{transient, transient, transient}}
	w := New(Options{Name: "alpha", Adapter: adapter, Policy: fastPolicy()})

	out := w.Run(context.Background(), Input{FocusedView: "target"})

	require.True(t, out.Failed)
	assert.Equal(t, 3, adapter.calls)
}

func TestWorker_OtherErrorFailsImmediately(t *testing.T) {
	adapter := &stubAdapter{name: "claude", errs: []error{assertErr("weird error")}}
	w := New(Options{Name: "alpha", Adapter: adapter, Policy: fastPolicy()})

	out := w.Run(context.Background(), Input{FocusedView: "target"})

	require.True(t, out.Failed)
	assert.Equal(t, 1, adapter.calls)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
