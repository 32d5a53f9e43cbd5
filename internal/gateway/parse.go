package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSONBlock unmarshals a JSON object that may be wrapped in markdown
// code fences or surrounded by prose, as chat models tend to do.
func decodeJSONBlock(raw string, v any) error {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Fall back to the outermost braces if the model added commentary.
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return fmt.Errorf("no JSON object in response")
		}
		s = s[start : end+1]
	}

	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("invalid JSON in response: %w", err)
	}
	return nil
}
