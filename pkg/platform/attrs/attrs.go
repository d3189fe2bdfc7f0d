// Package attrs reads values back out of slog-style key/value slices.
package attrs

// ExtractString returns the string stored under key in a
// [key1, value1, key2, value2, ...] slice, or "" when the key is absent or
// its value is not a string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(string); ok {
			return v
		}
	}
	return ""
}
