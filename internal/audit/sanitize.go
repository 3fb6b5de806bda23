package audit

import (
	"strings"
)

// Redaction markers written into sanitized payloads.
const (
	RedactedMarker = "[REDACTED]"
	MaxDepthMarker = "[MAX_DEPTH_EXCEEDED]"
)

// DefaultSanitizeDepth bounds recursion into nested payloads. Cyclic
// structures terminate at this depth with a MaxDepthMarker instead of
// recursing forever.
const DefaultSanitizeDepth = 10

// sensitiveKeys holds normalized key names whose values are always
// redacted. Keys are normalized by lowercasing and stripping "_"/"-",
// so "apiKey", "api_key", and "API-Key" all match.
var sensitiveKeys = map[string]bool{
	"password":             true,
	"passwd":               true,
	"currentpassword":      true,
	"newpassword":          true,
	"passwordhash":         true,
	"token":                true,
	"accesstoken":          true,
	"refreshtoken":         true,
	"secret":               true,
	"apikey":               true,
	"apisecret":            true,
	"authorization":        true,
	"cookie":               true,
	"privatekey":           true,
	"creditcard":           true,
	"cardnumber":           true,
	"cvv":                  true,
	"ssn":                  true,
	"pin":                  true,
	"twofactorsecret":      true,
	"twofactorbackupcodes": true,
}

// IsSensitiveKey reports whether a payload key must be redacted.
func IsSensitiveKey(key string) bool {
	normalized := strings.ToLower(key)
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	return sensitiveKeys[normalized]
}

// Sanitize returns a deep copy of a JSON-like payload (maps, slices,
// scalars) with every sensitive leaf replaced by RedactedMarker. The
// input is never mutated. Nodes deeper than DefaultSanitizeDepth become
// MaxDepthMarker, which also makes adversarially deep or cyclic input
// safe. Sanitize never fails: malformed input degrades to a marker, and
// sanitizing already-sanitized output is idempotent.
func Sanitize(v any) any {
	return SanitizeDepth(v, DefaultSanitizeDepth)
}

// SanitizeDepth is Sanitize with an explicit recursion limit.
func SanitizeDepth(v any, maxDepth int) any {
	return sanitizeValue(v, 0, maxDepth)
}

func sanitizeValue(v any, depth, maxDepth int) any {
	if depth >= maxDepth {
		return MaxDepthMarker
	}

	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				out[k] = RedactedMarker
				continue
			}
			out[k] = sanitizeValue(inner, depth+1, maxDepth)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				out[k] = RedactedMarker
				continue
			}
			out[k] = inner
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner, depth+1, maxDepth)
		}
		return out
	default:
		// Scalars pass through unchanged.
		return v
	}
}
