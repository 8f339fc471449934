package adapter

import "fmt"

// Navigation helpers for the deeply nested JSON the source APIs return.
// All of them tolerate missing keys and wrong types by returning zero values;
// required-field enforcement happens in the payload decoders, not here.

// mapAt descends a chain of object keys and returns the nested object, or nil.
func mapAt(m map[string]any, keys ...string) map[string]any {
	current := m

	for _, key := range keys {
		value, ok := current[key]
		if !ok {
			return nil
		}

		next, ok := value.(map[string]any)
		if !ok {
			return nil
		}

		current = next
	}

	return current
}

// stringAt descends a chain of object keys and returns the string leaf, or "".
func stringAt(m map[string]any, keys ...string) string {
	if len(keys) == 0 {
		return ""
	}

	parent := m
	if len(keys) > 1 {
		parent = mapAt(m, keys[:len(keys)-1]...)
	}

	if parent == nil {
		return ""
	}

	switch v := parent[keys[len(keys)-1]].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// intAt descends a chain of object keys and returns the numeric leaf as int, or 0.
func intAt(m map[string]any, keys ...string) int {
	if len(keys) == 0 {
		return 0
	}

	parent := m
	if len(keys) > 1 {
		parent = mapAt(m, keys[:len(keys)-1]...)
	}

	if parent == nil {
		return 0
	}

	switch v := parent[keys[len(keys)-1]].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// floatAt descends a chain of object keys and returns the numeric leaf, or 0.
func floatAt(m map[string]any, keys ...string) float64 {
	if len(keys) == 0 {
		return 0
	}

	parent := m
	if len(keys) > 1 {
		parent = mapAt(m, keys[:len(keys)-1]...)
	}

	if parent == nil {
		return 0
	}

	switch v := parent[keys[len(keys)-1]].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// stringsAt descends a chain of object keys and returns the string array leaf.
func stringsAt(m map[string]any, keys ...string) []string {
	if len(keys) == 0 {
		return nil
	}

	parent := m
	if len(keys) > 1 {
		parent = mapAt(m, keys[:len(keys)-1]...)
	}

	if parent == nil {
		return nil
	}

	items, ok := parent[keys[len(keys)-1]].([]any)
	if !ok {
		return nil
	}

	values := make([]string, 0, len(items))

	for _, item := range items {
		if s, ok := item.(string); ok {
			values = append(values, s)
		}
	}

	return values
}

// objectsAt descends a chain of object keys and returns the object array leaf.
func objectsAt(m map[string]any, keys ...string) []map[string]any {
	if len(keys) == 0 {
		return nil
	}

	parent := m
	if len(keys) > 1 {
		parent = mapAt(m, keys[:len(keys)-1]...)
	}

	if parent == nil {
		return nil
	}

	items, ok := parent[keys[len(keys)-1]].([]any)
	if !ok {
		return nil
	}

	objects := make([]map[string]any, 0, len(items))

	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			objects = append(objects, obj)
		}
	}

	return objects
}
