package jsonextract

import "strings"

var smartQuotes = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`, "‟", `"`)

// Repair applies the tolerated fixes to a candidate span: smart double quotes
// become ASCII and trailing commas before a closer are dropped. Inside string
// values, raw newlines and quotes not followed by a structural character are
// escaped.
func Repair(raw string) string {
	out := smartQuotes.Replace(raw)
	out = escapeInnerQuotes(out)
	return dropTrailingCommas(out)
}

func dropTrailingCommas(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(raw) && isSpace(raw[j]) {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeInnerQuotes treats a quote inside a string as closing only when the
// next non-space character is structural (, : } ] or end of input).
func escapeInnerQuotes(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 8)
	inString := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			if closesString(raw, i+1) {
				inString = false
			} else {
				b.WriteString(`\"`)
				continue
			}
		case c == '\n':
			b.WriteString(`\n`)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func closesString(raw string, from int) bool {
	for j := from; j < len(raw); j++ {
		if isSpace(raw[j]) {
			continue
		}
		switch raw[j] {
		case ',', ':', '}', ']':
			return true
		}
		return false
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
