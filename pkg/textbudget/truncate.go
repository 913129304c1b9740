// Package textbudget implements the character-budget truncation rule
// shared by pkg/views and pkg/context: output size is monitored against
// per-section character budgets, a rough proxy for LLM tokens at ~4
// chars/token (§4.4, §4.5).
package textbudget

import "strings"

// marker is appended when a section is cut short.
const marker = "\n[...truncated for token budget]"

// Truncate returns s unchanged if it already fits within limit
// characters. Otherwise it cuts at the last newline at or beyond 50% of
// limit (so a section is never chopped mid-sentence near the start),
// falling back to a hard cut at limit when no such newline exists, and
// appends the truncation marker (§4.5).
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	half := limit / 2
	cut := strings.LastIndexByte(s[:limit], '\n')
	if cut < half {
		cut = limit
	}
	return s[:cut] + marker
}

// CharsPerToken is the spec's stated proxy ratio for budgeting (§4.4).
const CharsPerToken = 4

// EstimateTokens converts a character count to an approximate token
// count using CharsPerToken.
func EstimateTokens(chars int) int {
	return chars / CharsPerToken
}
