package sanitization

import (
	"encoding/json"
	"fmt"
)

// SanitizeJSON returns a compact copy of a JSON document with secret-looking
// members redacted, for debug logging of documents.
func SanitizeJSON(jsonBytes []byte) string {
	if len(jsonBytes) == 0 {
		return "(empty)"
	}

	var data any
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return fmt.Sprintf("(malformed JSON: %s)", err.Error())
	}

	out, err := json.Marshal(sanitizeJSONValue(data))
	if err != nil {
		return "(error marshaling sanitized JSON)"
	}
	return string(out)
}

func sanitizeJSONValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, member := range v {
			sanitized := SanitizeFieldValue(key, member)
			switch sv := sanitized.(type) {
			case map[string]any, []any:
				result[key] = sanitizeJSONValue(sv)
			default:
				result[key] = sanitized
			}
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i := range v {
			result[i] = sanitizeJSONValue(v[i])
		}
		return result
	default:
		return sanitizeValue(v)
	}
}
