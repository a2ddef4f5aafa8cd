package remote

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SanitizePayload strips prototype-polluting and dunder-style keys from a
// structured payload before serialization. Arrays are sanitized element
// wise; scalar values pass through unchanged. The payload is round-tripped
// through JSON, so struct inputs come back as generic maps.
func SanitizePayload(payload any) (any, error) {
	if payload == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	var generic any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return nil, fmt.Errorf("failed to normalize payload: %w", err)
	}

	return sanitizeValue(generic), nil
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		cleaned := make(map[string]any, len(v))
		for key, item := range v {
			if unsafeKey(key) {
				continue
			}
			cleaned[key] = sanitizeValue(item)
		}
		return cleaned
	case []any:
		cleaned := make([]any, len(v))
		for idx, item := range v {
			cleaned[idx] = sanitizeValue(item)
		}
		return cleaned
	default:
		return value
	}
}

func unsafeKey(key string) bool {
	switch key {
	case "__proto__", "constructor", "prototype":
		return true
	}
	return strings.HasPrefix(key, "__") && strings.HasSuffix(key, "__")
}
