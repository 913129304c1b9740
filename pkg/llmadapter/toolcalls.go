package llmadapter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// NormalizedCall is a provider-agnostic tool call: id, name, and
// already-decoded arguments.
type NormalizedCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// rawToolCall mirrors the common "OpenAI-shape" wire struct most
// providers emit for structured tool_calls.
type rawToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments"`
	} `json:"function"`
}

var (
	xmlToolCallRe = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
	mistralCallRe = regexp.MustCompile(`(?s)\[TOOL_CALLS\]\s*(\[.*\])`)
)

// NormalizeToolCalls is total (P9): for every message shape observed in
// the provider corpus it returns a (possibly empty) slice, never
// raising. It handles the variants spec.md §4.7 lists:
//
//	(a) standard function.name/function.arguments string
//	(b) missing function.name — skip silently
//	(c) arguments as object, not string — accept
//	(d) empty/null arguments — empty map
//	(e) missing id — synthesize call_{n}
//	(f) tool_calls == nil — no tools
//	(g) content-embedded <tool_call>{...}</tool_call> or
//	    [TOOL_CALLS] [...] blocks — used only when no structured
//	    tool_calls were present
func NormalizeToolCalls(rawToolCallsJSON []byte, content string) []NormalizedCall {
	var raws []rawToolCall
	if len(rawToolCallsJSON) > 0 && string(rawToolCallsJSON) != "null" {
		if err := json.Unmarshal(rawToolCallsJSON, &raws); err != nil {
			raws = nil
		}
	}

	if len(raws) > 0 {
		return normalizeRaws(raws)
	}

	// (g) fall back to content-embedded calls only when no structured
	// tool_calls were present.
	if calls := extractXMLToolCalls(content); len(calls) > 0 {
		return calls
	}
	if calls := extractMistralToolCalls(content); len(calls) > 0 {
		return calls
	}
	return nil
}

func normalizeRaws(raws []rawToolCall) []NormalizedCall {
	out := make([]NormalizedCall, 0, len(raws))
	for i, r := range raws {
		if r.Function.Name == "" {
			continue // (b) missing name — skip silently
		}
		out = append(out, NormalizedCall{
			ID:        callID(r.ID, i),
			Name:      r.Function.Name,
			Arguments: coerceArguments(r.Function.Arguments),
		})
	}
	return out
}

func callID(id string, index int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("call_%d", index) // (e)
}

// coerceArguments handles (c) object-shaped arguments and (d)
// empty/null/string-shaped arguments.
func coerceArguments(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		return unmarshalArgumentBytes([]byte(v))
	case json.RawMessage:
		return unmarshalArgumentBytes(v)
	case []byte:
		return unmarshalArgumentBytes(v)
	default:
		return map[string]any{}
	}
}

func unmarshalArgumentBytes(b []byte) map[string]any {
	if len(b) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func extractXMLToolCalls(content string) []NormalizedCall {
	matches := xmlToolCallRe.FindAllStringSubmatch(content, -1)
	out := make([]NormalizedCall, 0, len(matches))
	for i, m := range matches {
		var call struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &call); err != nil || call.Name == "" {
			continue
		}
		out = append(out, NormalizedCall{ID: callID("", i), Name: call.Name, Arguments: coerceArguments(any(call.Arguments))})
	}
	return out
}

func extractMistralToolCalls(content string) []NormalizedCall {
	m := mistralCallRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	var raws []struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(m[1]), &raws); err != nil {
		return nil
	}
	out := make([]NormalizedCall, 0, len(raws))
	for i, r := range raws {
		if r.Name == "" {
			continue
		}
		out = append(out, NormalizedCall{ID: callID("", i), Name: r.Name, Arguments: coerceArguments(any(r.Arguments))})
	}
	return out
}
