package station

import (
	"context"
	"log/slog"

	"audiobook/internal/sessionstore"
	"audiobook/internal/stationconfig"
	"audiobook/internal/stationid"
)

// DefaultMaxAttempts bounds prompt attempts when replies fail extraction or
// schema validation.
const DefaultMaxAttempts = 3

// Output is the JSON object a station persists.
type Output = sessionstore.Output

// Generator is the LLM surface stations call. Transport retries belong to
// the implementation; stations only retry on unusable replies.
type Generator interface {
	Generate(ctx context.Context, prompt, model string, maxTokens int, temperature float64) (string, error)
	ProcessMessage(ctx context.Context, text, modelName string, maxTokens int) (string, error)
}

// Station describes the contract the runner needs from each pipeline stage.
type Station interface {
	ID() stationid.ID
	Name() string
	Dependencies() []stationid.ID
	// Initialize wires collaborators and resolves configuration. Calling it
	// again is a no-op.
	Initialize(ctx context.Context, deps Deps) error
	// Process loads dependencies, talks to the LLM and persists the result.
	// Nothing is written unless the whole station succeeds.
	Process(ctx context.Context, sessionID string) (Output, error)
}

// HealthChecker is implemented by stations that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Deps are the shared collaborators injected by the runner.
type Deps struct {
	LLM         Generator
	Store       *sessionstore.Store
	Configs     *stationconfig.Loader
	Prompter    ChoicePrompter
	Logger      *slog.Logger
	MaxAttempts int
	// LogLevels maps station labels ("4.5") to minimum log levels.
	LogLevels map[string]string
}

func (d Deps) maxAttempts() int {
	if d.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return d.MaxAttempts
}
