package stationconfig

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldType names the JSON kind a schema key must hold. A trailing "?" marks
// the key optional; "!" after array or string requires it to be non-empty.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
	TypeAny     FieldType = "any"
)

// Schema maps required top-level keys of a station's extracted JSON to types.
type Schema map[string]FieldType

func (f FieldType) parts() (base FieldType, optional, nonEmpty bool) {
	raw := strings.TrimSpace(string(f))
	if strings.HasSuffix(raw, "?") {
		optional = true
		raw = strings.TrimSuffix(raw, "?")
	}
	if strings.HasSuffix(raw, "!") {
		nonEmpty = true
		raw = strings.TrimSuffix(raw, "!")
	}
	return FieldType(strings.ToLower(raw)), optional, nonEmpty
}

func (f FieldType) valid() bool {
	base, _, _ := f.parts()
	switch base {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject, TypeAny:
		return true
	}
	return false
}

// Keys returns the schema keys in sorted order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Validate reports every problem with value, sorted by key. An empty result
// means the value conforms.
func (s Schema) Validate(value map[string]any) []string {
	var problems []string
	for _, key := range s.Keys() {
		base, optional, nonEmpty := s[key].parts()
		field, ok := value[key]
		if !ok || field == nil {
			if !optional {
				problems = append(problems, fmt.Sprintf("missing required key %q", key))
			}
			continue
		}
		if msg := checkType(base, nonEmpty, field); msg != "" {
			problems = append(problems, fmt.Sprintf("key %q: %s", key, msg))
		}
	}
	return problems
}

func checkType(base FieldType, nonEmpty bool, value any) string {
	switch base {
	case TypeAny:
		return ""
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %s", kindOf(value))
		}
		if nonEmpty && strings.TrimSpace(str) == "" {
			return "must not be empty"
		}
	case TypeNumber:
		if !isNumber(value) {
			return fmt.Sprintf("expected number, got %s", kindOf(value))
		}
	case TypeInteger:
		if !isInteger(value) {
			return fmt.Sprintf("expected integer, got %s", kindOf(value))
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %s", kindOf(value))
		}
	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			return fmt.Sprintf("expected array, got %s", kindOf(value))
		}
		if nonEmpty && len(arr) == 0 {
			return "must not be empty"
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("expected object, got %s", kindOf(value))
		}
	}
	return ""
}

func isNumber(value any) bool {
	switch value.(type) {
	case json.Number, float64, float32, int, int64, int32:
		return true
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case json.Number:
		_, err := v.Int64()
		return err == nil
	case float64:
		return v == float64(int64(v))
	case int, int64, int32:
		return true
	}
	return false
}

func kindOf(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if isNumber(value) {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}
