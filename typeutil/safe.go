// Package typeutil provides safe type assertion helpers for the open meta
// bags that JSON mailbox documents decode into. All helpers use the comma-ok
// idiom so a malformed bag degrades to a default instead of panicking a
// worker mid-tick.
package typeutil

// SafeMapStringAny safely asserts value to map[string]any.
func SafeMapStringAny(value any) (map[string]any, bool) {
	if value == nil {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}

// SafeString safely asserts value to string.
func SafeString(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// SafeStringDefault returns the string if assertion succeeds, otherwise defaultVal.
func SafeStringDefault(value any, defaultVal string) string {
	if s, ok := SafeString(value); ok {
		return s
	}
	return defaultVal
}

// SafeInt safely asserts value to int. Also handles float64, the type every
// JSON number decodes to.
func SafeInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

// SafeIntDefault returns the int if assertion succeeds, otherwise defaultVal.
func SafeIntDefault(value any, defaultVal int) int {
	if i, ok := SafeInt(value); ok {
		return i
	}
	return defaultVal
}

// SafeBool safely asserts value to bool.
func SafeBool(value any) (bool, bool) {
	if value == nil {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}

// SafeBoolDefault returns the bool if assertion succeeds, otherwise defaultVal.
func SafeBoolDefault(value any, defaultVal bool) bool {
	if b, ok := SafeBool(value); ok {
		return b
	}
	return defaultVal
}

// SafeSlice safely asserts value to []any.
func SafeSlice(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	s, ok := value.([]any)
	return s, ok
}

// SafeStringSlice asserts value to []string, also accepting the []any shape
// JSON decoding produces.
func SafeStringSlice(value any) ([]string, bool) {
	if value == nil {
		return nil, false
	}
	if s, ok := value.([]string); ok {
		return s, true
	}
	anySlice, ok := value.([]any)
	if !ok {
		return nil, false
	}
	result := make([]string, 0, len(anySlice))
	for _, item := range anySlice {
		str, ok := item.(string)
		if !ok {
			return nil, false
		}
		result = append(result, str)
	}
	return result, true
}

// SafeStringSliceDefault returns the slice if assertion succeeds, otherwise defaultVal.
func SafeStringSliceDefault(value any, defaultVal []string) []string {
	if s, ok := SafeStringSlice(value); ok {
		return s
	}
	return defaultVal
}
