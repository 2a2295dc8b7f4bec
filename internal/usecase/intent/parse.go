package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls the first complete JSON object out of an LLM reply.
// Models wrap JSON in prose or ```json fences despite instructions, so this
// scans for the first '{' and walks braces to its balanced close, ignoring
// braces inside string literals.
func extractJSON(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

// parseInto extracts the JSON object from raw and unmarshals it into v.
func parseInto(raw string, v any) error {
	obj, err := extractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
