package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"audiobook/internal/services"
	"audiobook/internal/station"
)

// consolePrompter asks the operator on the terminal. Unrecognized answers
// re-ask; EOF ends the session with a validation error.
type consolePrompter struct {
	in       *bufio.Reader
	out      io.Writer
	colorize bool

	mu sync.Mutex
	// pending is a read abandoned by a cancelled Ask; the next Ask takes
	// its line instead of starting a second reader.
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

func newConsolePrompter(in io.Reader, out io.Writer) *consolePrompter {
	return &consolePrompter{in: bufio.NewReader(in), out: out, colorize: shouldColorize(out)}
}

func (p *consolePrompter) Ask(ctx context.Context, choice station.Choice) (string, error) {
	p.render(choice)
	for {
		answer, err := p.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", services.WithHint(
					services.Wrap(services.ErrValidation, choice.Station.String(), "ask",
						fmt.Sprintf("input closed before %q was answered", choice.Key), nil),
					fmt.Sprintf("pass --input %s=... to answer without a terminal", choice.Key),
				)
			}
			return "", err
		}
		if answer == "" && choice.Default != "" {
			return choice.Default, nil
		}
		if choice.FreeText() {
			if answer != "" {
				return answer, nil
			}
			fmt.Fprint(p.out, "An answer is required: ")
			continue
		}
		if _, _, ok := choice.Resolve(answer); ok {
			return answer, nil
		}
		fmt.Fprintf(p.out, "Unrecognized choice %q, pick %s: ", answer, optionRange(choice))
	}
}

func (p *consolePrompter) render(choice station.Choice) {
	header := fmt.Sprintf("Station %s", choice.Station)
	if p.colorize {
		header = ansiBlue + header + ansiReset
	}
	fmt.Fprintf(p.out, "\n%s: %s\n", header, choice.Question)
	for _, opt := range choice.Options {
		fmt.Fprintf(p.out, "  %s) %s\n", opt.Key, opt.Label)
		if opt.Detail != "" {
			fmt.Fprintf(p.out, "     %s\n", opt.Detail)
		}
	}
	switch {
	case choice.FreeText() && choice.Default != "":
		fmt.Fprintf(p.out, "> [%s] ", choice.Default)
	case choice.FreeText():
		fmt.Fprint(p.out, "> ")
	case choice.AllowCustom:
		fmt.Fprintf(p.out, "Pick %s or type your own: ", optionRange(choice))
	default:
		fmt.Fprintf(p.out, "Pick %s: ", optionRange(choice))
	}
}

// readLine returns the next trimmed line. A final line without a newline is
// returned before EOF is reported.
func (p *consolePrompter) readLine(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	done := p.pending
	p.pending = nil
	if done == nil {
		done = make(chan readResult, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			if err != nil && line != "" && errors.Is(err, io.EOF) {
				err = nil
			}
			done <- readResult{line: strings.TrimSpace(line), err: err}
		}()
	}
	select {
	case <-ctx.Done():
		p.pending = done
		return "", ctx.Err()
	case res := <-done:
		return res.line, res.err
	}
}

func optionRange(choice station.Choice) string {
	if len(choice.Options) == 0 {
		return ""
	}
	first := choice.Options[0].Key
	last := choice.Options[len(choice.Options)-1].Key
	if first == last {
		return first
	}
	return first + "-" + last
}

// buildPrompter layers --input answers over the console, or over AutoFirst
// when the session is not interactive.
func buildPrompter(inputs map[string]string, interactive bool, in io.Reader, out io.Writer) station.ChoicePrompter {
	scripted := station.NewScriptedPrompter(inputs)
	if interactive && readerIsInteractive(in) {
		scripted.Fallback = newConsolePrompter(in, out)
	} else {
		scripted.Fallback = station.AutoFirst{}
	}
	return scripted
}

func readerIsInteractive(in io.Reader) bool {
	file, ok := in.(*os.File)
	if !ok {
		return in != nil
	}
	return isTerminal(file)
}

func parseInputs(values []string) (map[string]string, error) {
	inputs := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --input %q (expected key=value)", raw)
		}
		inputs[key] = strings.TrimSpace(value)
	}
	return inputs, nil
}
