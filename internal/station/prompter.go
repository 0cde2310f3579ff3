package station

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"audiobook/internal/services"
	"audiobook/internal/stationid"
)

// Option is one selectable entry of a Choice.
type Option struct {
	Key    string
	Label  string
	Detail string
	Value  any
}

// Choice is a question put to the operator. A Choice without options asks
// for free text.
type Choice struct {
	Station     stationid.ID
	Key         string
	Question    string
	Options     []Option
	AllowCustom bool
	Default     string
}

// FreeText reports whether the choice expects typed text rather than a pick.
func (c Choice) FreeText() bool { return len(c.Options) == 0 }

// Resolve maps an answer onto an option key, a 1-based index or, when
// allowed, custom text. ok is false for answers that match nothing.
func (c Choice) Resolve(answer string) (opt Option, custom bool, ok bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Option{}, false, false
	}
	for _, candidate := range c.Options {
		if strings.EqualFold(candidate.Key, answer) {
			return candidate, false, true
		}
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(c.Options) {
		return c.Options[n-1], false, true
	}
	if c.AllowCustom {
		return Option{Label: answer, Value: answer}, true, true
	}
	return Option{}, false, false
}

// ChoicePrompter obtains operator decisions. Implementations may block for
// as long as the operator needs but must honour ctx cancellation.
type ChoicePrompter interface {
	Ask(ctx context.Context, choice Choice) (string, error)
}

// ScriptedPrompter answers from queued responses keyed by Choice.Key and
// falls back to Fallback when a key has nothing queued.
type ScriptedPrompter struct {
	mu       sync.Mutex
	answers  map[string][]string
	asked    []Choice
	Fallback ChoicePrompter
}

// NewScriptedPrompter queues one answer per key.
func NewScriptedPrompter(answers map[string]string) *ScriptedPrompter {
	p := &ScriptedPrompter{answers: make(map[string][]string, len(answers))}
	for key, answer := range answers {
		p.answers[key] = []string{answer}
	}
	return p
}

// Queue appends answers for key.
func (p *ScriptedPrompter) Queue(key string, answers ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.answers == nil {
		p.answers = make(map[string][]string)
	}
	p.answers[key] = append(p.answers[key], answers...)
}

// Asked returns the choices seen so far.
func (p *ScriptedPrompter) Asked() []Choice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Choice(nil), p.asked...)
}

func (p *ScriptedPrompter) Ask(ctx context.Context, choice Choice) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.asked = append(p.asked, choice)
	queue := p.answers[choice.Key]
	if len(queue) > 0 {
		answer := queue[0]
		p.answers[choice.Key] = queue[1:]
		p.mu.Unlock()
		return answer, nil
	}
	fallback := p.Fallback
	p.mu.Unlock()

	if fallback != nil {
		return fallback.Ask(ctx, choice)
	}
	return "", noAnswer(choice)
}

// AutoFirst picks the first option, or the default for free text. It is the
// non-interactive prompter.
type AutoFirst struct{}

func (AutoFirst) Ask(ctx context.Context, choice Choice) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(choice.Options) > 0 {
		return choice.Options[0].Key, nil
	}
	if choice.Default != "" {
		return choice.Default, nil
	}
	return "", noAnswer(choice)
}

func noAnswer(choice Choice) error {
	err := services.Wrap(services.ErrValidation, choice.Station.String(), "ask",
		fmt.Sprintf("no answer available for %q", choice.Key), nil)
	return services.WithHint(err, fmt.Sprintf("pass --input %s=... or run interactively", choice.Key))
}

// optionsFrom turns an array from the LLM reply into lettered options.
func optionsFrom(items []any, labelField string) []Option {
	options := make([]Option, 0, len(items))
	for i, item := range items {
		opt := Option{Key: optionKey(i), Value: item}
		switch v := item.(type) {
		case string:
			opt.Label = v
		case map[string]any:
			opt.Label = stringField(v, labelField)
			opt.Detail = detailOf(v, labelField)
		default:
			opt.Label = fmt.Sprint(v)
		}
		if opt.Label == "" {
			opt.Label = fmt.Sprintf("option %d", i+1)
		}
		options = append(options, opt)
	}
	return options
}

func optionKey(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return strconv.Itoa(i + 1)
}

func stringField(obj map[string]any, field string) string {
	if field == "" {
		return ""
	}
	if s, ok := obj[field].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func detailOf(obj map[string]any, labelField string) string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		if key != labelField {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, "; ")
}
