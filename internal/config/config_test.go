package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audiobook/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENROUTER_API_KEY", "REDIS_URL", "AUDIOBOOK_STORE_BACKEND"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Store.Backend != config.BackendRedis {
		t.Fatalf("backend = %q", cfg.Store.Backend)
	}
	if cfg.Store.KeyPrefix != "audiobook" || cfg.Store.TTLSeconds != 86400 {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d", cfg.Pipeline.MaxAttempts)
	}
	if !filepath.IsAbs(cfg.Paths.StateDir) || !filepath.IsAbs(cfg.Store.SQLitePath) {
		t.Fatalf("expected absolute paths, got %q %q", cfg.Paths.StateDir, cfg.Store.SQLitePath)
	}
}

func TestLoadParsesFileAndNormalizes(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, `
[paths]
state_dir = "`+dir+`"

[llm]
api_key = "  sk-test  "

[store]
backend = "SQLite"
key_prefix = "drama:"

[pipeline]
max_attempts = 5

[logging]
format = "JSON"

[logging.station_overrides]
"4.5" = "DEBUG"
`)

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Store.Backend != config.BackendSQLite {
		t.Fatalf("backend = %q", cfg.Store.Backend)
	}
	if cfg.Store.KeyPrefix != "drama" {
		t.Fatalf("key prefix = %q", cfg.Store.KeyPrefix)
	}
	if cfg.Store.SQLitePath != filepath.Join(dir, "sessions.db") {
		t.Fatalf("sqlite path = %q", cfg.Store.SQLitePath)
	}
	if cfg.Paths.LockDir == "" {
		t.Fatal("expected lock dir")
	}
	if cfg.Pipeline.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.StationOverrides["4.5"] != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadEnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("REDIS_URL", "redis://cache:6380/2")
	t.Setenv("AUDIOBOOK_STORE_BACKEND", "memory")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Store.RedisURL != "redis://cache:6380/2" {
		t.Fatalf("redis url = %q", cfg.Store.RedisURL)
	}
	if cfg.Store.Backend != config.BackendMemory {
		t.Fatalf("backend = %q", cfg.Store.Backend)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"backend":      "[store]\nbackend = \"etcd\"\n",
		"redis scheme": "[store]\nredis_url = \"http://localhost\"\n",
		"attempts":     "[pipeline]\nmax_attempts = 50\n",
		"format":       "[logging]\nformat = \"xml\"\n",
		"override":     "[logging.station_overrides]\n\"2\" = \"loud\"\n",
		"unknown key":  "[store]\nbackends = \"redis\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, _, err := config.Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestValidateLLMRequiresKey(t *testing.T) {
	cfg := config.Default()
	err := cfg.ValidateLLM()
	if err == nil || !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Fatalf("expected api key error, got %v", err)
	}
	cfg.LLM.APIKey = "k"
	if err := cfg.ValidateLLM(); err != nil {
		t.Fatalf("ValidateLLM returned error: %v", err)
	}
}

func TestCreateSampleLoads(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load cleanly: exists=%v err=%v", exists, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.LockDir = filepath.Join(base, "locks")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.LockDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
