package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"audiobook/internal/services"
	"audiobook/internal/station"
	"audiobook/internal/stationid"
)

func titleChoice() station.Choice {
	return station.Choice{
		Station:  stationid.New(1, 0),
		Key:      "chosen_title",
		Question: "Pick a title",
		Options: []station.Option{
			{Key: "A", Label: "The Vault", Detail: "heist"},
			{Key: "B", Label: "Night Shift"},
		},
	}
}

func TestConsolePrompterChoice(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"letter", "b\n", "b"},
		{"index", "1\n", "1"},
		{"reask", "\nC\nB\n", "B"},
		{"no trailing newline", "A", "A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := newConsolePrompter(strings.NewReader(tc.input), &out)
			got, err := p.Ask(context.Background(), titleChoice())
			if err != nil {
				t.Fatalf("Ask returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
			requireContains(t, out.String(), "A) The Vault")
			requireContains(t, out.String(), "heist")
			requireContains(t, out.String(), "Pick A-B")
		})
	}
}

func TestConsolePrompterCustomAndFreeText(t *testing.T) {
	choice := titleChoice()
	choice.AllowCustom = true
	var out bytes.Buffer
	p := newConsolePrompter(strings.NewReader("My Own Title\n"), &out)
	got, err := p.Ask(context.Background(), choice)
	if err != nil || got != "My Own Title" {
		t.Fatalf("custom answer: %q, %v", got, err)
	}
	requireContains(t, out.String(), "or type your own")

	free := station.Choice{Station: stationid.New(1, 0), Key: "premise", Question: "Premise?", Default: "a heist"}
	p = newConsolePrompter(strings.NewReader("\n"), io.Discard)
	got, err = p.Ask(context.Background(), free)
	if err != nil || got != "a heist" {
		t.Fatalf("default answer: %q, %v", got, err)
	}
}

func TestConsolePrompterEOF(t *testing.T) {
	p := newConsolePrompter(strings.NewReader(""), io.Discard)
	_, err := p.Ask(context.Background(), titleChoice())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if hint := services.Details(err).Hint; !strings.Contains(hint, "--input chosen_title=") {
		t.Fatalf("unexpected hint %q", hint)
	}
}

func TestConsolePrompterCancel(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()
	p := newConsolePrompter(reader, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Ask(ctx, titleChoice())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestConsolePrompterResumesAfterCancel(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()
	p := newConsolePrompter(reader, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Ask(ctx, titleChoice()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	go func() { _, _ = io.WriteString(writer, "B\nA\n") }()
	got, err := p.Ask(context.Background(), titleChoice())
	if err != nil || got != "B" {
		t.Fatalf("second Ask = %q, %v, want B", got, err)
	}
	got, err = p.Ask(context.Background(), titleChoice())
	if err != nil || got != "A" {
		t.Fatalf("third Ask = %q, %v, want A", got, err)
	}
}

func TestBuildPrompterLayersInputs(t *testing.T) {
	prompter := buildPrompter(map[string]string{"premise": "given"}, false, strings.NewReader(""), io.Discard)
	got, err := prompter.Ask(context.Background(), station.Choice{Key: "premise"})
	if err != nil || got != "given" {
		t.Fatalf("scripted answer: %q, %v", got, err)
	}
	got, err = prompter.Ask(context.Background(), titleChoice())
	if err != nil || got != "A" {
		t.Fatalf("fallback answer: %q, %v", got, err)
	}
}

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs([]string{"premise= a = b ", "tone=dark"})
	if err != nil {
		t.Fatalf("parseInputs: %v", err)
	}
	if inputs["premise"] != "a = b" || inputs["tone"] != "dark" {
		t.Fatalf("unexpected inputs %v", inputs)
	}
	if _, err := parseInputs([]string{"=x"}); err == nil {
		t.Fatal("expected error for empty key")
	}
}
