package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"audiobook/internal/config"
	"audiobook/internal/services/llm"
	"audiobook/internal/sessionstore"
	"audiobook/internal/stationconfig"
	"audiobook/internal/stations"
)

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLM) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing (set OPENROUTER_API_KEY)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("API reachable (%s)", client.Model())}
}

// CheckStore opens the configured backend and pings it.
func CheckStore(ctx context.Context, name string, cfg config.Store) Result {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := sessionstore.Open(checkCtx, cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Backend, err)}
	}
	defer store.Close()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Backend, err)}
	}
	detail := cfg.Backend
	switch cfg.Backend {
	case config.BackendSQLite:
		detail += " " + cfg.SQLitePath
	case config.BackendMemory:
		detail += " (not persisted)"
	}
	return Result{Name: name, Passed: true, Detail: detail + " reachable"}
}

// CheckCatalog loads the station catalog and lints its templates.
func CheckCatalog(name, path string) Result {
	loader := stationconfig.NewLoader(path)
	cat, err := loader.Catalog()
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if problems := stations.Lint(cat); len(problems) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%d problem(s): %s)", loader.Source(), len(problems), problems[0])}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d stations)", loader.Source(), len(cat.Stations()))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
