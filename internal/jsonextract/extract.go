// Package jsonextract pulls a JSON value out of free-form LLM replies.
//
// Replies arrive wrapped in prose, markdown fences or both, and are sometimes
// slightly malformed. Extract locates the first balanced object or array,
// parses it strictly, and falls back to a small set of textual repairs before
// giving up with an *ExtractionError. It never returns a partial value.
package jsonextract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"audiobook/internal/services"
)

const snippetLimit = 160

var fencePattern = regexp.MustCompile("(?s)```[ \t]*([A-Za-z0-9_+-]*)[^\n]*\n(.*?)```")

// ExtractionError reports why no JSON value could be recovered from a reply.
type ExtractionError struct {
	Reason  string
	Snippet string
}

func (e *ExtractionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("extract json: %s (payload snippet: %s)", e.Reason, e.Snippet)
}

// Is reports whether target is services.ErrExtraction.
func (e *ExtractionError) Is(target error) bool {
	return target == services.ErrExtraction
}

func newError(reason, text string) *ExtractionError {
	return &ExtractionError{Reason: reason, Snippet: Snippet(text)}
}

// Extract returns the first JSON object or array found in text. Numbers are
// decoded as json.Number so integer values survive a round trip unchanged.
func Extract(text string) (any, error) {
	raw, err := locate(text)
	if err != nil {
		return nil, err
	}
	var value any
	if err := decodeStrict(raw, &value, true); err != nil {
		return nil, newError(err.Error(), raw)
	}
	return value, nil
}

// Object is Extract restricted to JSON objects.
func Object(text string) (map[string]any, error) {
	value, err := Extract(text)
	if err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, newError(fmt.Sprintf("expected a JSON object, found %T", value), text)
	}
	return obj, nil
}

// Decode extracts the first JSON value in text into target.
func Decode(text string, target any) error {
	raw, err := locate(text)
	if err != nil {
		return err
	}
	if err := decodeStrict(raw, target, false); err != nil {
		return newError("decode: "+err.Error(), raw)
	}
	return nil
}

// Snippet collapses whitespace and truncates text for error messages and logs.
func Snippet(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	runes := []rune(clean)
	if len(runes) > snippetLimit {
		clean = string(runes[:snippetLimit]) + "..."
	}
	return clean
}

// locate returns JSON text that parses strictly, repairing the candidate span
// if needed.
func locate(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", newError("empty response", text)
	}

	if body, ok := fencedBody(text); ok {
		raw, found, err := parseFirstSpan(body)
		if found {
			return raw, err
		}
	}
	raw, _, err := parseFirstSpan(text)
	return raw, err
}

// fencedBody prefers a block tagged json and otherwise takes the first fence.
func fencedBody(text string) (string, bool) {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	for _, m := range matches {
		if strings.EqualFold(m[1], "json") {
			return m[2], true
		}
	}
	return matches[0][2], true
}

// parseFirstSpan parses the value opened by the first bracket in source,
// repairing it if needed. The first candidate decides the outcome: a broken
// one is an error even when a later span would parse. found is false only
// when source holds no opener at all.
func parseFirstSpan(source string) (string, bool, error) {
	sp := firstSpan(source)
	switch sp.status {
	case spanNone:
		return "", false, newError("no JSON object or array found", source)
	case spanUnbalanced:
		return "", true, newError("unbalanced JSON (reply truncated?)", source[sp.start:])
	case spanMismatched:
		return "", true, newError(sp.mismatchReason(source), source[sp.start:])
	}

	candidate := source[sp.start:sp.end]
	if json.Valid([]byte(candidate)) {
		return candidate, true, nil
	}
	repaired := Repair(candidate)
	if json.Valid([]byte(repaired)) {
		return repaired, true, nil
	}
	return "", true, newError("invalid JSON after repair: "+syntaxReason(repaired), candidate)
}

func decodeStrict(raw string, target any, useNumber bool) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	if useNumber {
		dec.UseNumber()
	}
	return dec.Decode(target)
}

func syntaxReason(raw string) string {
	var sink any
	err := json.Unmarshal([]byte(raw), &sink)
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
