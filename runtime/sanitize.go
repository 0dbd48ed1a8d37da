package runtime

import "github.com/coreason/maco/types"

// sensitiveKeys are stripped recursively from any snapshot embedded in an
// ERROR event. Secrets, raw caller identity and internal feedback handles
// must never leave the engine through telemetry.
var sensitiveKeys = map[string]struct{}{
	"secrets_map":      {},
	"user_context":     {},
	"downstream_token": {},
	"feedback_channel": {},
}

func sanitizeSnapshot(outputs types.Data) types.Data {
	sanitized := make(types.Data, len(outputs))
	for k, v := range outputs {
		if _, sensitive := sensitiveKeys[k]; sensitive {
			continue
		}
		sanitized[k] = sanitizeValue(v)
	}
	return sanitized
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case types.Data:
		return sanitizeSnapshot(val)
	case map[string]any:
		return map[string]any(sanitizeSnapshot(types.Data(val)))
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = sanitizeValue(item)
		}
		return items
	}
	return v
}
