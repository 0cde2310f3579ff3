package pipeline_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"audiobook/internal/config"
	"audiobook/internal/pipeline"
	"audiobook/internal/station"
	"audiobook/internal/stationconfig"
	"audiobook/internal/stationid"
	"audiobook/internal/stations"
	"audiobook/internal/testsupport"
)

type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (s *scriptedLLM) pop(prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "I have nothing more to say.", nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *scriptedLLM) Generate(_ context.Context, prompt, _ string, _ int, _ float64) (string, error) {
	return s.pop(prompt)
}

func (s *scriptedLLM) ProcessMessage(_ context.Context, text, _ string, _ int) (string, error) {
	return s.pop(text)
}

func TestDefaultCatalogEndToEnd(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		"```json\n{\"titles\": [{\"title\": \"The Vault\", \"pitch\": \"heist\"}, {\"title\": \"Night Shift\", \"pitch\": \"guards\"}]}\n```",
		`{"logline": "Two guards rob their own bank", "genre": "thriller", "tone": "tense", "themes": ["loyalty"], "setting": {"place": "Leeds", "era": "1989", "soundscape": "rain"}}`,
		`Sure! {"characters": [{"name": "Maggie", "role": "guard", "voice": "gravel", "secret": "debt"}]}`,
		`{"references": [{"topic": "time locks", "detail": "vaults open on schedule", "use": "act two"}],}`,
		"Vaults in 1989 used mechanical time locks.",
		`{"strategies": [{"label": "A", "name": "Slow burn", "summary": "drip"}, {"label": "B", "name": "Cold open", "summary": "flash"}]}`,
		`{"episodes": [{"number": 1, "title": "Shift Change", "beats": ["alarm"], "reveal": "debt"}]}`,
		`{"status": "PASS", "issues": [{"severity": "major", "description": "pacing in episode 1"}]}`,
	}}
	loader := stationconfig.NewLoader("")
	built, err := stations.Load(loader)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	prompter := station.NewScriptedPrompter(map[string]string{"premise": "Two guards plan to rob the bank they protect."})
	prompter.Fallback = station.AutoFirst{}
	cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend(config.BackendSQLite))
	store := testsupport.MustOpenStore(t, cfg)

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		LLM:      llm,
		Store:    store,
		Configs:  loader,
		Prompter: prompter,
		LockDir:  cfg.Paths.LockDir,
	}, built...)
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	report := runner.Run(context.Background(), "sess_e2e", pipeline.RunOptions{})
	if report.Failure != nil {
		t.Fatalf("run failed at %s: %s (%s)", report.Failure.Station, report.Failure.Message, report.Failure.Kind)
	}
	if !report.Completed || len(report.Stations) != 7 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(llm.prompts) != 8 {
		t.Fatalf("expected 8 llm calls, got %d", len(llm.prompts))
	}

	ctx := context.Background()
	title, _ := store.Read(ctx, "sess_e2e", stationid.New(1, 0))
	if title["chosen_title"] != "The Vault" || title["premise"] == nil {
		t.Fatalf("unexpected station 1 output: %v", title)
	}
	research, _ := store.Read(ctx, "sess_e2e", stationid.New(4, 0))
	if research["reference_digest"] != "Vaults in 1989 used mechanical time locks." {
		t.Fatalf("unexpected digest: %v", research["reference_digest"])
	}
	reveal, _ := store.Read(ctx, "sess_e2e", stationid.New(4, 5))
	if reveal["chosen_strategy"] != "Slow burn" {
		t.Fatalf("unexpected strategy: %v", reveal["chosen_strategy"])
	}
	outline := llm.prompts[6]
	if !strings.Contains(outline, "The Vault") || !strings.Contains(outline, "Slow burn") {
		t.Fatalf("outline prompt missing upstream values:\n%s", outline)
	}
	if !strings.Contains(llm.prompts[5], "mechanical time locks") {
		t.Fatalf("reveal prompt missing digest:\n%s", llm.prompts[5])
	}
	if got := store.Key("sess_e2e", stationid.New(4, 5)); got != "audiobook:sess_e2e:station_04_5" {
		t.Fatalf("unexpected key %q", got)
	}

	again := runner.Run(ctx, "sess_e2e", pipeline.RunOptions{})
	if !again.Completed || len(again.Stations) != 0 {
		t.Fatalf("second run should be a no-op: %+v", again)
	}
}
