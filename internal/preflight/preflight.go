package preflight

import (
	"context"

	"audiobook/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options control which checks RunAll performs.
type Options struct {
	SkipLLM   bool
	SkipStore bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Lock directory", cfg.Paths.LockDir),
		CheckCatalog("Station catalog", cfg.Paths.StationsFile),
	}
	if !opts.SkipStore {
		results = append(results, CheckStore(ctx, "Session store", cfg.Store))
	}
	if !opts.SkipLLM {
		results = append(results, CheckLLM(ctx, "LLM", cfg.LLM))
	}
	return results
}
