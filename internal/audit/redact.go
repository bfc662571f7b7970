// redact.go strips sensitive values from headers and request bodies before they
// are persisted in audit snapshots, and reduces response payloads to compact
// summaries so full response bodies are never stored.
package audit

import (
	"net/http"
	"strings"
)

// RedactionMarker replaces sensitive values in persisted snapshots.
const RedactionMarker = "[REDACTED]"

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"x-api-key":     true,
}

var sensitiveBodyKeys = map[string]bool{
	"password":     true,
	"token":        true,
	"refreshtoken": true,
	"apikey":       true,
}

// paginationKeys are the scalar fields copied into a paginated-response summary.
var paginationKeys = []string{"page", "limit", "total", "total_pages"}

// RedactHeaders returns a copy of the headers with the values of authorization,
// cookie, and x-api-key replaced by the redaction marker. All other headers pass
// through unchanged.
func RedactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if sensitiveHeaders[strings.ToLower(name)] {
			out[name] = RedactionMarker
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// RedactBody returns a copy of the body with sensitive keys (password, token,
// refreshToken, apiKey — case-insensitive) replaced by the redaction marker.
// Nested objects are redacted recursively; arrays and scalars pass through.
// The operation is idempotent: redacting an already-redacted body is a no-op.
func RedactBody(body map[string]interface{}) map[string]interface{} {
	if body == nil {
		return nil
	}
	out := make(map[string]interface{}, len(body))
	for key, value := range body {
		if sensitiveBodyKeys[strings.ToLower(key)] {
			out[key] = RedactionMarker
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			out[key] = RedactBody(nested)
			continue
		}
		out[key] = value
	}
	return out
}

// SanitizeResponse reduces an already-decoded response payload to a summary
// suitable for persistence. Full response bodies are never stored:
//
//   - paginated shapes (an object with a list field plus pagination metadata)
//     keep only the item count and the pagination fields
//   - bare arrays keep only their element count
//   - plain objects keep a shallow projection where nested objects and arrays
//     become type markers and password/token keys are dropped entirely
func SanitizeResponse(data interface{}) map[string]interface{} {
	switch v := data.(type) {
	case nil:
		return nil
	case []interface{}:
		return map[string]interface{}{"count": len(v)}
	case map[string]interface{}:
		if summary, ok := summarizePaginated(v); ok {
			return summary
		}
		return projectShallow(v)
	default:
		return map[string]interface{}{"value": v}
	}
}

// summarizePaginated detects paginated shapes: any key holding a list alongside
// at least one pagination field.
func summarizePaginated(obj map[string]interface{}) (map[string]interface{}, bool) {
	var listKey string
	var listLen int
	for key, value := range obj {
		if items, ok := value.([]interface{}); ok {
			listKey = key
			listLen = len(items)
			break
		}
	}
	if listKey == "" {
		return nil, false
	}

	summary := map[string]interface{}{listKey + "_count": listLen}
	found := false
	for _, key := range paginationKeys {
		if value, ok := obj[key]; ok {
			summary[key] = value
			found = true
		}
	}
	if !found {
		return nil, false
	}
	return summary, true
}

// projectShallow keeps scalar fields, replaces nested structures with type
// markers, and drops password/token keys outright.
func projectShallow(obj map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	for key, value := range obj {
		lower := strings.ToLower(key)
		if lower == "password" || lower == "token" {
			continue
		}
		switch value.(type) {
		case map[string]interface{}:
			out[key] = "[object]"
		case []interface{}:
			out[key] = "[array]"
		default:
			out[key] = value
		}
	}
	return out
}
