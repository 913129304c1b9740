package lead

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSONObject finds the first balanced top-level JSON object in
// text, tolerating markdown code fences and leading/trailing prose
// (§9 "Dynamic JSON contracts with LLMs"). It returns an error if no
// balanced object is found or it fails to parse.
func extractJSONObject(text string) (json.RawMessage, error) {
	text = stripCodeFences(text)

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, braces don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				var probe json.RawMessage
				if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
					return nil, fmt.Errorf("malformed JSON object: %w", err)
				}
				return probe, nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in response")
}

func stripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return text
}
