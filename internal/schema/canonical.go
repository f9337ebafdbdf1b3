package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// canonicalize returns a canonical JSON representation.
// Keys are sorted alphabetically for consistent fingerprinting.
func canonicalize(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers are float64
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case string:
		// Escape and quote string
		b, _ := json.Marshal(val)
		return string(b)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, canonicalize(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			keyStr, _ := json.Marshal(k)
			parts = append(parts, string(keyStr)+":"+canonicalize(val[k]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		// Fallback to JSON encoding
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// fingerprint returns the hex-encoded SHA-256 of a canonical schema string.
func fingerprint(canonical string) string {
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}
