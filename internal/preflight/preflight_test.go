package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audiobook/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLM{APIKey: "good-key", BaseURL: srv.URL, Model: " demo\n"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail != "API reachable (demo)" {
		t.Fatalf("detail should name the client's model: %q", result.Detail)
	}
}

func TestCheckLLM_BadKey(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLM{APIKey: "bad", BaseURL: srv.URL, Model: "demo"})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "LLM", config.LLM{Model: "demo"})
	if result.Passed {
		t.Fatal("expected failure without key")
	}
	if !strings.Contains(result.Detail, "OPENROUTER_API_KEY") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckStore_Memory(t *testing.T) {
	result := CheckStore(context.Background(), "Session store", config.Store{Backend: config.BackendMemory, KeyPrefix: "audiobook"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	result := CheckStore(context.Background(), "Session store", config.Store{Backend: config.BackendSQLite, SQLitePath: path, KeyPrefix: "audiobook"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, path) {
		t.Fatalf("detail should include path: %s", result.Detail)
	}
}

func TestCheckStore_UnknownBackend(t *testing.T) {
	result := CheckStore(context.Background(), "Session store", config.Store{Backend: "etcd"})
	if result.Passed {
		t.Fatal("expected failure for unknown backend")
	}
}

func TestCheckCatalog(t *testing.T) {
	if result := CheckCatalog("Station catalog", ""); !result.Passed {
		t.Fatalf("built-in catalog should pass: %s", result.Detail)
	}

	path := filepath.Join(t.TempDir(), "stations.yaml")
	catalog := `stations:
  - id: "1"
    name: Seed
    model: demo
    max_tokens: 100
    prompt_templates:
      main: "Write about {tone}"
    schema:
      seed: string!
`
	if err := os.WriteFile(path, []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckCatalog("Station catalog", path)
	if result.Passed {
		t.Fatal("expected lint failure for unknown placeholder")
	}
	if !strings.Contains(result.Detail, "tone") {
		t.Fatalf("detail should mention placeholder: %s", result.Detail)
	}

	if result := CheckCatalog("Station catalog", filepath.Join(t.TempDir(), "missing.yaml")); result.Passed {
		t.Fatal("expected failure for missing catalog")
	}
}

func TestRunAllAndErr(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = base
	cfg.Paths.LogDir = base
	cfg.Paths.LockDir = filepath.Join(base, "locks")
	cfg.Store.Backend = config.BackendMemory

	results := RunAll(context.Background(), &cfg, Options{SkipLLM: true})
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Lock directory" {
		t.Fatalf("expected only the lock directory to fail, got %+v", failed)
	}
	err := Err(results)
	if err == nil || !strings.Contains(err.Error(), "Lock directory") {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.MkdirAll(cfg.Paths.LockDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := Err(RunAll(context.Background(), &cfg, Options{SkipLLM: true})); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}
}
