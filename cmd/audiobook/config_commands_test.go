package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "", "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Store backend: sqlite")
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err = env.run(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := env.run(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	if _, err := env.run(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestEnvFileSuppliesAPIKey(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "")
	if err := os.Unsetenv("OPENROUTER_API_KEY"); err != nil {
		t.Fatal(err)
	}
	env.cfg.LLM.APIKey = ""
	writeTestConfig(t, env.configPath, env.cfg)

	out, err := env.run(t, "", "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Warning: llm.api_key is required")

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("OPENROUTER_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err = env.run(t, "", "--env-file", envFile, "config", "validate")
	if err != nil {
		t.Fatalf("config validate with env file: %v", err)
	}
	if got := os.Getenv("OPENROUTER_API_KEY"); got != "from-dotenv" {
		t.Fatalf("expected key from env file, got %q", got)
	}
	requireContains(t, out, "Configuration valid")
	if strings.Contains(out, "Warning") {
		t.Fatalf("unexpected warning with key from env file:\n%s", out)
	}
}
