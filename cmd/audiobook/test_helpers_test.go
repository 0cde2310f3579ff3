package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"audiobook/internal/config"
	"audiobook/internal/testsupport"
)

const cliCatalog = `
defaults:
  max_tokens: 200
stations:
  - id: "1"
    name: title selection
    inputs:
      - key: premise
        question: Premise?
    prompt_templates:
      main: "TITLES for {premise}"
    schema:
      titles: array!
    choice:
      options_key: titles
      label_field: title
      chosen_key: chosen_title
      question: Pick a title
  - id: "2"
    name: project bible
    dependencies: ["1"]
    prompt_templates:
      main: "BIBLE for {chosen_title}"
    schema:
      logline: string!
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	server     *httptest.Server
	calls      atomic.Int32
	failBible  atomic.Bool
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("AUDIOBOOK_STORE_BACKEND", "")

	env := &cliTestEnv{}
	env.server = httptest.NewServer(http.HandlerFunc(env.serveLLM))
	t.Cleanup(env.server.Close)

	env.cfg = testsupport.NewConfig(t,
		testsupport.WithStoreBackend(config.BackendSQLite),
		testsupport.WithLLMBaseURL(env.server.URL),
		testsupport.WithCatalog(cliCatalog),
	)
	env.configPath = filepath.Join(homeDir, ".config", "audiobook", "config.toml")
	writeTestConfig(t, env.configPath, env.cfg)
	return env
}

func (e *cliTestEnv) serveLLM(w http.ResponseWriter, r *http.Request) {
	e.calls.Add(1)
	var req struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	prompt := req.Messages[len(req.Messages)-1].Content
	var content string
	switch {
	case strings.HasPrefix(prompt, "TITLES"):
		content = `{"titles": [{"title": "The Vault"}, {"title": "Night Shift"}]}`
	case strings.HasPrefix(prompt, "BIBLE"):
		content = `{"logline": "Two guards rob their own bank"}`
		if e.failBible.Load() {
			content = "I would rather not."
		}
	default:
		content = `{"ok": true}`
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
}

func (e *cliTestEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
lock_dir = %q
stations_file = %q

[llm]
api_key = %q
base_url = %q
model = "demo-model"

[store]
backend = %q
sqlite_path = %q

[pipeline]
interactive = true

[logging]
level = "error"
`,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.LockDir,
		cfg.Paths.StationsFile,
		cfg.LLM.APIKey,
		cfg.LLM.BaseURL,
		cfg.Store.Backend,
		cfg.Store.SQLitePath,
	)
	testsupport.WriteFile(t, path, content)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
