package llmadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeToolCalls_StandardShape(t *testing.T) {
	raw := []byte(`[{"id":"call_1","function":{"name":"web_search","arguments":"{\"query\":\"x\"}"}}]`)
	got := NormalizeToolCalls(raw, "")
	require.Len(t, got, 1)
	assert.Equal(t, "call_1", got[0].ID)
	assert.Equal(t, "web_search", got[0].Name)
	assert.Equal(t, "x", got[0].Arguments["query"])
}

func TestNormalizeToolCalls_MissingNameSkipped(t *testing.T) {
	raw := []byte(`[{"id":"call_1","function":{"name":"","arguments":"{}"}},{"id":"call_2","function":{"name":"web_fetch","arguments":"{}"}}]`)
	got := NormalizeToolCalls(raw, "")
	require.Len(t, got, 1)
	assert.Equal(t, "web_fetch", got[0].Name)
}

func TestNormalizeToolCalls_ArgumentsAsObject(t *testing.T) {
	raw := []byte(`[{"id":"c1","function":{"name":"web_fetch","arguments":{"url":"https://x"}}}]`)
	got := NormalizeToolCalls(raw, "")
	require.Len(t, got, 1)
	assert.Equal(t, "https://x", got[0].Arguments["url"])
}

func TestNormalizeToolCalls_EmptyOrNullArguments(t *testing.T) {
	raw := []byte(`[{"id":"c1","function":{"name":"web_fetch","arguments":null}},{"id":"c2","function":{"name":"web_fetch","arguments":""}}]`)
	got := NormalizeToolCalls(raw, "")
	require.Len(t, got, 2)
	assert.Equal(t, map[string]any{}, got[0].Arguments)
	assert.Equal(t, map[string]any{}, got[1].Arguments)
}

func TestNormalizeToolCalls_MissingIDSynthesized(t *testing.T) {
	raw := []byte(`[{"function":{"name":"web_fetch","arguments":"{}"}}]`)
	got := NormalizeToolCalls(raw, "")
	require.Len(t, got, 1)
	assert.Equal(t, "call_0", got[0].ID)
}

func TestNormalizeToolCalls_NullToolCallsIsNoTools(t *testing.T) {
	got := NormalizeToolCalls([]byte("null"), "plain text, no calls")
	assert.Empty(t, got)
}

func TestNormalizeToolCalls_XMLEmbeddedFallback(t *testing.T) {
	content := `Let me search. <tool_call>{"name":"web_search","arguments":{"query":"AI startups"}}</tool_call>`
	got := NormalizeToolCalls(nil, content)
	require.Len(t, got, 1)
	assert.Equal(t, "web_search", got[0].Name)
	assert.Equal(t, "AI startups", got[0].Arguments["query"])
}

func TestNormalizeToolCalls_MistralEmbeddedFallback(t *testing.T) {
	content := `[TOOL_CALLS] [{"name":"web_fetch","arguments":{"url":"https://x"}}]`
	got := NormalizeToolCalls(nil, content)
	require.Len(t, got, 1)
	assert.Equal(t, "web_fetch", got[0].Name)
}

func TestNormalizeToolCalls_StructuredTakesPrecedenceOverContent(t *testing.T) {
	raw := []byte(`[{"id":"c1","function":{"name":"web_search","arguments":{"query":"real"}}}]`)
	content := `<tool_call>{"name":"web_fetch","arguments":{"url":"https://ignored"}}</tool_call>`
	got := NormalizeToolCalls(raw, content)
	require.Len(t, got, 1)
	assert.Equal(t, "web_search", got[0].Name)
}

func TestNormalizeToolCalls_TotalAcrossMalformedInputs(t *testing.T) {
	// P9: normalization must never panic/raise regardless of shape.
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("null"),
		[]byte("not json at all"),
		[]byte(`{"not":"an array"}`),
		[]byte(`[{"function":{}}]`),
		[]byte(`[{"id":1,"function":{"name":"x","arguments":42}}]`),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_ = NormalizeToolCalls(in, "")
		})
	}
}
