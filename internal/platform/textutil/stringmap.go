package textutil

import "strings"

// NormalizeAttributes canonicalises provider attribute names ("Merch Category" becomes
// "merch_category") and trims values. Entries with an empty key or value are dropped.
func NormalizeAttributes(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = attributeKey(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func attributeKey(key string) string {
	fields := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	})
	return strings.Join(fields, "_")
}
