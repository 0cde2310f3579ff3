package station_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"audiobook/internal/services"
	"audiobook/internal/sessionstore"
	"audiobook/internal/station"
	"audiobook/internal/stationconfig"
	"audiobook/internal/stationid"
)

const testCatalog = `
defaults:
  max_tokens: 1000
stations:
  - id: "1"
    name: Title Selection
    inputs:
      - key: premise
        question: Premise?
    prompt_templates:
      main: "Premise: {premise}. Reply {{\"titles\": [...]}}"
    schema:
      titles: array!
    choice:
      options_key: titles
      label_field: title
      chosen_key: chosen_title
      allow_custom: true
  - id: "2"
    name: Project Bible
    dependencies: ["1"]
    prompt_templates:
      main: "Bible for {chosen_title} ({session_id})"
    schema:
      logline: string!
  - id: "3"
    name: Research
    dependencies: ["2"]
    prompt_templates:
      main: "Research {logline}"
      digest: "Digest {references}"
    schema:
      references: array!
    followup:
      template: digest
      output_key: digest
  - id: "4"
    name: Audit
    dependencies: ["2"]
    temperature: 0.1
    prompt_templates:
      main: "Audit {station_02}"
    schema:
      status: string!
      issues: array
    verdict:
      status_key: status
      issues_key: issues
      fatal_severities: [critical]
      warn_severities: [major]
`

type call struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Followup    bool
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   []call
}

func (f *fakeLLM) next(c call) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	idx := len(f.calls) - 1
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.replies) {
		return f.replies[idx], nil
	}
	return "", errors.New("fake llm: no reply queued")
}

func (f *fakeLLM) Generate(_ context.Context, prompt, _ string, maxTokens int, temperature float64) (string, error) {
	return f.next(call{Prompt: prompt, MaxTokens: maxTokens, Temperature: temperature})
}

func (f *fakeLLM) ProcessMessage(_ context.Context, text, _ string, maxTokens int) (string, error) {
	return f.next(call{Prompt: text, MaxTokens: maxTokens, Followup: true})
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	llm      *fakeLLM
	store    *sessionstore.Store
	prompter *station.ScriptedPrompter
	deps     station.Deps
}

func newHarness(t *testing.T, replies ...string) *harness {
	t.Helper()
	h := &harness{
		llm:      &fakeLLM{replies: replies},
		store:    sessionstore.New(sessionstore.NewMemoryKV()),
		prompter: station.NewScriptedPrompter(nil),
	}
	h.deps = station.Deps{
		LLM:      h.llm,
		Store:    h.store,
		Configs:  stationconfig.NewLoaderFromBytes("test", []byte(testCatalog)),
		Prompter: h.prompter,
	}
	return h
}

func (h *harness) station(t *testing.T, id string, deps ...string) *station.Base {
	t.Helper()
	ids := make([]stationid.ID, 0, len(deps))
	for _, dep := range deps {
		ids = append(ids, stationid.MustParse(dep))
	}
	st := station.NewBase(stationid.MustParse(id), "", ids)
	if err := st.Initialize(context.Background(), h.deps); err != nil {
		t.Fatalf("Initialize(%s) returned error: %v", id, err)
	}
	return st
}

func (h *harness) seed(t *testing.T, sessionID, id string, out station.Output) {
	t.Helper()
	if err := h.store.Write(context.Background(), sessionID, stationid.MustParse(id), out); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func (h *harness) exists(t *testing.T, sessionID, id string) bool {
	t.Helper()
	ok, err := h.store.Exists(context.Background(), sessionID, stationid.MustParse(id))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	return ok
}

func TestProcessReadsDependencyAndFailsOnceItIsDeleted(t *testing.T) {
	h := newHarness(t, `{"logline": "A heist goes wrong"}`)
	ctx := context.Background()
	h.seed(t, "sess_001", "1", station.Output{"chosen_title": "The Vault", "session_id": "sess_001"})

	bible := h.station(t, "2", "1")
	out, err := bible.Process(ctx, "sess_001")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if out["logline"] != "A heist goes wrong" || out["session_id"] != "sess_001" {
		t.Fatalf("unexpected output: %v", out)
	}
	if got := h.llm.calls[0].Prompt; got != "Bible for The Vault (sess_001)" {
		t.Fatalf("unexpected prompt %q", got)
	}

	if err := h.store.DeleteStation(ctx, "sess_001", stationid.MustParse("1")); err != nil {
		t.Fatalf("DeleteStation: %v", err)
	}
	_, err = bible.Process(ctx, "sess_001")
	var missing *station.MissingDependencyError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingDependencyError, got %v", err)
	}
	if missing.Dependency != stationid.New(1, 0) || !errors.Is(err, services.ErrMissingDependency) {
		t.Fatalf("unexpected dependency error: %+v", missing)
	}
	if h.llm.callCount() != 1 {
		t.Fatalf("expected no llm call for missing dependency, got %d calls", h.llm.callCount())
	}
}

func TestProcessMissingDependencyMakesNoCallsAndNoWrites(t *testing.T) {
	h := newHarness(t, `{"logline": "unused"}`)
	_, err := h.station(t, "2", "1").Process(context.Background(), "sess_empty")
	if !errors.Is(err, services.ErrMissingDependency) {
		t.Fatalf("expected missing dependency, got %v", err)
	}
	if h.llm.callCount() != 0 {
		t.Fatalf("expected zero llm calls, got %d", h.llm.callCount())
	}
	if h.exists(t, "sess_empty", "2") {
		t.Fatal("station output written despite failure")
	}
}

func TestProcessRejectsStaleDependency(t *testing.T) {
	h := newHarness(t, `{"logline": "unused"}`)
	ctx := context.Background()
	h.seed(t, "sess_stale", "1", station.Output{"chosen_title": "Old"})
	if err := h.store.MarkStale(ctx, "sess_stale", stationid.New(1, 0)); err != nil {
		t.Fatalf("MarkStale: %v", err)
	}
	_, err := h.station(t, "2", "1").Process(ctx, "sess_stale")
	var missing *station.MissingDependencyError
	if !errors.As(err, &missing) || !missing.Stale {
		t.Fatalf("expected stale dependency error, got %v", err)
	}
	if h.llm.callCount() != 0 {
		t.Fatalf("expected zero llm calls, got %d", h.llm.callCount())
	}
}

func TestProcessRetriesUnusableRepliesThenGivesUp(t *testing.T) {
	h := newHarness(t, "no json here", `{"logline": ""}`, "```json\n{\"logline\": [1,2,\n```")
	h.seed(t, "sess_retry", "1", station.Output{"chosen_title": "The Vault"})

	_, err := h.station(t, "2", "1").Process(context.Background(), "sess_retry")
	var invalid *station.StationValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected StationValidationError, got %v", err)
	}
	if invalid.Attempts != station.DefaultMaxAttempts || len(invalid.Problems) != 3 || invalid.Verdict {
		t.Fatalf("unexpected validation error: %+v", invalid)
	}
	if h.llm.callCount() != 3 {
		t.Fatalf("expected exactly 3 llm calls, got %d", h.llm.callCount())
	}
	if h.exists(t, "sess_retry", "2") {
		t.Fatal("output written after exhausted attempts")
	}
	if hint := services.Details(err).Hint; !strings.Contains(hint, "--start-at 2") {
		t.Fatalf("expected resume hint, got %q", hint)
	}
}

func TestProcessRecoversOnLaterAttempt(t *testing.T) {
	h := newHarness(t, "sorry, thinking", "Here you go:\n```json\n{\"logline\": \"Two thieves, one vault\",}\n```")
	h.seed(t, "sess_ok", "1", station.Output{"chosen_title": "The Vault"})

	out, err := h.station(t, "2", "1").Process(context.Background(), "sess_ok")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if out["logline"] != "Two thieves, one vault" {
		t.Fatalf("unexpected output: %v", out)
	}
	stored, err := h.store.Read(context.Background(), "sess_ok", stationid.New(2, 0))
	if err != nil || stored["logline"] != "Two thieves, one vault" {
		t.Fatalf("stored output mismatch: %v, %v", stored, err)
	}
}

func TestProcessTransportErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	h.llm.errs = []error{services.Wrap(services.ErrTransport, "", "generate", "http 503", nil)}
	h.seed(t, "sess_down", "1", station.Output{"chosen_title": "The Vault"})

	_, err := h.station(t, "2", "1").Process(context.Background(), "sess_down")
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if h.llm.callCount() != 1 {
		t.Fatalf("expected a single call, got %d", h.llm.callCount())
	}
}

func TestProcessAsksInputsAndResolvesChoice(t *testing.T) {
	h := newHarness(t, `{"titles": [{"title": "The Vault", "pitch": "heist"}, {"title": "Night Shift", "pitch": "guards"}]}`)
	h.prompter.Queue("premise", "Two guards rob their own bank")
	h.prompter.Queue("chosen_title", "2")

	out, err := h.station(t, "1").Process(context.Background(), "sess_choice")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if out["premise"] != "Two guards rob their own bank" || out["chosen_title"] != "Night Shift" {
		t.Fatalf("unexpected output: %v", out)
	}
	option, ok := out["chosen_title_option"].(map[string]any)
	if !ok || option["pitch"] != "guards" {
		t.Fatalf("expected chosen option object, got %v", out["chosen_title_option"])
	}
	if !strings.Contains(h.llm.calls[0].Prompt, "Two guards rob their own bank") {
		t.Fatalf("input not in prompt: %q", h.llm.calls[0].Prompt)
	}
	asked := h.prompter.Asked()
	if len(asked) != 2 || !asked[0].FreeText() || len(asked[1].Options) != 2 || asked[1].Options[1].Key != "B" {
		t.Fatalf("unexpected questions: %+v", asked)
	}
}

func TestProcessCustomChoiceAnswer(t *testing.T) {
	h := newHarness(t, `{"titles": ["The Vault"]}`)
	h.prompter.Queue("premise", "A heist")
	h.prompter.Queue("chosen_title", "Something Else Entirely")

	out, err := h.station(t, "1").Process(context.Background(), "sess_custom")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if out["chosen_title"] != "Something Else Entirely" {
		t.Fatalf("unexpected choice: %v", out["chosen_title"])
	}
	if _, ok := out["chosen_title_option"]; ok {
		t.Fatal("custom answers carry no option object")
	}
}

func TestProcessNoAnswerFailsBeforeLLM(t *testing.T) {
	h := newHarness(t, `{"titles": ["x"]}`)
	_, err := h.station(t, "1").Process(context.Background(), "sess_noanswer")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(services.Details(err).Hint, "--input premise=") {
		t.Fatalf("expected input hint, got %q", services.Details(err).Hint)
	}
	if h.llm.callCount() != 0 {
		t.Fatalf("expected zero llm calls, got %d", h.llm.callCount())
	}
}

func TestProcessRunsFollowup(t *testing.T) {
	h := newHarness(t, `{"references": ["bank vault specs", "shift rotas"]}`, "   ", "Vaults use time locks.")
	h.seed(t, "sess_follow", "2", station.Output{"logline": "Heist"})

	out, err := h.station(t, "3", "2").Process(context.Background(), "sess_follow")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if out["digest"] != "Vaults use time locks." {
		t.Fatalf("unexpected digest: %v", out["digest"])
	}
	if h.llm.callCount() != 3 || !h.llm.calls[1].Followup || !h.llm.calls[2].Followup {
		t.Fatalf("unexpected call sequence: %+v", h.llm.calls)
	}
	if !strings.Contains(h.llm.calls[1].Prompt, "bank vault specs") {
		t.Fatalf("followup prompt missing references: %q", h.llm.calls[1].Prompt)
	}
	if h.llm.calls[1].MaxTokens != 1000 {
		t.Fatalf("followup max tokens = %d", h.llm.calls[1].MaxTokens)
	}
}

func TestProcessVerdictPolicy(t *testing.T) {
	cases := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{"pass", `{"status": "PASS", "issues": []}`, false},
		{"fail with major only", `{"status": "FAIL", "issues": [{"severity": "major", "description": "pacing"}]}`, false},
		{"fail with critical", `{"status": "FAIL", "issues": [{"severity": "critical", "description": "dead character speaks"}]}`, true},
		{"pass with critical", `{"status": "pass", "issues": [{"severity": "critical", "description": "odd"}]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.reply)
			h.seed(t, "sess_audit", "2", station.Output{"logline": "Heist"})
			audit := h.station(t, "4", "2")
			_, err := audit.Process(context.Background(), "sess_audit")
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("Process returned error: %v", err)
				}
				if h.llm.calls[0].Temperature != 0.1 {
					t.Fatalf("temperature = %v", h.llm.calls[0].Temperature)
				}
				return
			}
			var invalid *station.StationValidationError
			if !errors.As(err, &invalid) || !invalid.Verdict {
				t.Fatalf("expected verdict failure, got %v", err)
			}
			if h.llm.callCount() != 1 {
				t.Fatalf("verdict failures are not retried; got %d calls", h.llm.callCount())
			}
			if h.exists(t, "sess_audit", "4") {
				t.Fatal("failed verdict was stored")
			}
		})
	}
}

func TestInitializeUnknownStation(t *testing.T) {
	h := newHarness(t)
	st := station.NewBase(stationid.New(9, 0), "Ghost", nil)
	err := st.Initialize(context.Background(), h.deps)
	if !errors.Is(err, services.ErrConfigNotFound) {
		t.Fatalf("expected config not found, got %v", err)
	}
	if _, err := st.Process(context.Background(), "sess_x"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected not-initialized error, got %v", err)
	}
	if health := st.HealthCheck(context.Background()); health.Ready {
		t.Fatal("uninitialized station reported healthy")
	}
}

func TestProcessCancelledContext(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "sess_cancel", "1", station.Output{"chosen_title": "The Vault"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.llm.errs = []error{context.Canceled}

	_, err := h.station(t, "2", "1").Process(ctx, "sess_cancel")
	if services.KindOf(err) != services.KindCancelled {
		t.Fatalf("expected cancelled, got %v (%s)", err, services.KindOf(err))
	}
	if h.exists(t, "sess_cancel", "2") {
		t.Fatal("output written after cancellation")
	}
}

func TestTemplateValuesLaterDependencyWins(t *testing.T) {
	values := station.TemplateValues("sess_1", map[stationid.ID]station.Output{
		stationid.New(2, 0): {"tone": "grim", "session_id": "other"},
		stationid.New(4, 5): {"tone": "playful"},
	})
	if values["tone"] != "playful" || values["session_id"] != "sess_1" {
		t.Fatalf("unexpected values: %v", values)
	}
	if _, ok := values["station_04_5"].(station.Output); !ok {
		t.Fatalf("expected station_04_5 entry, got %v", values["station_04_5"])
	}
}
