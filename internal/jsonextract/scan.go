package jsonextract

import "fmt"

type spanStatus int

const (
	spanFound spanStatus = iota
	spanNone
	spanUnbalanced
	spanMismatched
)

// span is the result of scanning from the first opener in a text. For
// spanMismatched, end is the offset of the offending closer and want is the
// closer the innermost opener required.
type span struct {
	start  int
	end    int
	status spanStatus
	want   byte
}

// firstSpan scans the {...} or [...] opened by the first bracket in text.
// Brackets inside string literals do not count. The scan never restarts
// inside a failed span.
func firstSpan(text string) span {
	start := indexOpener(text, 0)
	if start < 0 {
		return span{start: -1, end: -1, status: spanNone}
	}
	return matchSpan(text, start)
}

func indexOpener(text string, from int) int {
	for i := from; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			return i
		}
	}
	return -1
}

func matchSpan(text string, start int) span {
	stack := make([]byte, 0, 8)
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
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
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if want := stack[len(stack)-1]; want != c {
				return span{start: start, end: i, status: spanMismatched, want: want}
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return span{start: start, end: i + 1, status: spanFound}
			}
		}
	}
	return span{start: start, end: -1, status: spanUnbalanced}
}

func (s span) mismatchReason(text string) string {
	return fmt.Sprintf("mismatched bracket: expected %q but found %q at offset %d",
		s.want, text[s.end], s.end-s.start)
}
