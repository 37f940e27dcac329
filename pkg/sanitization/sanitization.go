package sanitization

import (
	"fmt"
	"strings"
)

const redactedValue = "[REDACTED]"

// SensitiveFields are lowercased field names that are always fully redacted.
var SensitiveFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"authorization": true,
	"api_key":       true,
	"apikey":        true,
	"credentials":   true,
	"private_key":   true,
	"es_password":   true,
}

var blockedSubstrings = []string{
	"secret",
	"token",
	"password",
	"private_key",
	"api_key",
	"authorization",
}

// SanitizeLogString removes control characters that could enable log forging.
func SanitizeLogString(value string) string {
	if value == "" {
		return value
	}
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

// SanitizeFieldValue sanitizes a field value based on its key name.
//
// Secret-looking keys are redacted; strings lose CR/LF; numbers and booleans pass
// through unchanged so log queries can compare them.
func SanitizeFieldValue(key string, value any) any {
	keyLower := strings.ToLower(strings.TrimSpace(key))
	if SensitiveFields[keyLower] {
		return redactedValue
	}
	for _, substr := range blockedSubstrings {
		if keyLower != "" && strings.Contains(keyLower, substr) {
			return redactedValue
		}
	}
	return sanitizeValue(value)
}

// MaskAuthorization keeps the scheme of an Authorization header value.
//
//	"Bearer abc.def" -> "Bearer [REDACTED]"
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	scheme, _, ok := strings.Cut(value, " ")
	if !ok {
		return redactedValue
	}
	return scheme + " " + redactedValue
}

func sanitizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		return SanitizeLogString(typed)
	case []byte:
		return SanitizeLogString(string(typed))
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return typed
	case []string:
		out := make([]string, len(typed))
		for i := range typed {
			out[i] = SanitizeLogString(typed[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = SanitizeFieldValue(k, v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = sanitizeValue(typed[i])
		}
		return out
	case error:
		return SanitizeLogString(typed.Error())
	case fmt.Stringer:
		return SanitizeLogString(typed.String())
	default:
		return SanitizeLogString(fmt.Sprintf("%v", typed))
	}
}
