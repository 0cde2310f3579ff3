package stationconfig

import (
	"encoding/json"
	"fmt"
	"strings"

	"audiobook/internal/services"
)

// ErrMissingPlaceholder is returned when a template names a value that the
// caller did not supply.
var ErrMissingPlaceholder = fmt.Errorf("missing template placeholder: %w", services.ErrConfiguration)

// Template is a prompt with {name} placeholders. Dotted names ({station_01.titles})
// walk nested objects. {{ and }} render literal braces.
type Template string

type segment struct {
	literal     string
	placeholder string
}

func (t Template) parse() ([]segment, error) {
	src := string(t)
	var segments []segment
	var lit strings.Builder
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			if i+1 < len(src) && src[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("template: unclosed placeholder at offset %d", i)
			}
			name := src[i+1 : i+1+end]
			if !validPlaceholder(name) {
				return nil, fmt.Errorf("template: invalid placeholder %q at offset %d (escape literal braces as {{ }})", name, i)
			}
			if lit.Len() > 0 {
				segments = append(segments, segment{literal: lit.String()})
				lit.Reset()
			}
			segments = append(segments, segment{placeholder: name})
			i += end + 1
		case '}':
			if i+1 < len(src) && src[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("template: unmatched } at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		segments = append(segments, segment{literal: lit.String()})
	}
	return segments, nil
}

func validPlaceholder(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}

// Placeholders lists the distinct placeholder names in order of first use.
func (t Template) Placeholders() ([]string, error) {
	segments, err := t.parse()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var names []string
	for _, seg := range segments {
		if seg.placeholder == "" {
			continue
		}
		if _, ok := seen[seg.placeholder]; ok {
			continue
		}
		seen[seg.placeholder] = struct{}{}
		names = append(names, seg.placeholder)
	}
	return names, nil
}

// Format substitutes values into the template. Strings are inserted as-is;
// anything else is rendered as indented JSON.
func (t Template) Format(values map[string]any) (string, error) {
	segments, err := t.parse()
	if err != nil {
		return "", err
	}
	var out strings.Builder
	out.Grow(len(t) * 2)
	for _, seg := range segments {
		if seg.placeholder == "" {
			out.WriteString(seg.literal)
			continue
		}
		value, ok := lookup(values, seg.placeholder)
		if !ok {
			return "", fmt.Errorf("%w: {%s}", ErrMissingPlaceholder, seg.placeholder)
		}
		rendered, err := render(value)
		if err != nil {
			return "", fmt.Errorf("template: render {%s}: %w", seg.placeholder, err)
		}
		out.WriteString(rendered)
	}
	return out.String(), nil
}

func lookup(values map[string]any, name string) (any, bool) {
	if value, ok := values[name]; ok {
		return value, true
	}
	parts := strings.Split(name, ".")
	var current any = values
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func render(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
