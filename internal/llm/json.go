package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals a chat reply into v, tolerating the markdown code
// fences models often wrap JSON in.
func DecodeJSON(reply string, v any) error {
	trimmed := strings.TrimSpace(reply)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	if err := json.Unmarshal([]byte(trimmed), v); err != nil {
		return fmt.Errorf("failed to decode model reply as JSON: %w", err)
	}
	return nil
}
