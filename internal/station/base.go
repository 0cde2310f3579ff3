package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"audiobook/internal/jsonextract"
	"audiobook/internal/logging"
	"audiobook/internal/services"
	"audiobook/internal/sessionstore"
	"audiobook/internal/stationconfig"
	"audiobook/internal/stationid"
)

// Base implements the shared station algorithm over a catalog record:
// dependency loading, prompt formatting, the bounded attempt loop, schema and
// verdict checks, operator interaction and the final write.
type Base struct {
	id   stationid.ID
	name string
	deps []stationid.ID

	mu          sync.Mutex
	initialized bool
	wired       Deps
	cfg         *stationconfig.StationConfig
	logger      *slog.Logger
}

// NewBase builds a station with the given identity and dependencies.
func NewBase(id stationid.ID, name string, dependencies []stationid.ID) *Base {
	deps := append([]stationid.ID(nil), dependencies...)
	stationid.Sort(deps)
	return &Base{id: id, name: name, deps: deps}
}

func (b *Base) ID() stationid.ID { return b.id }

func (b *Base) Name() string { return b.name }

func (b *Base) Dependencies() []stationid.ID {
	return append([]stationid.ID(nil), b.deps...)
}

// Config returns the resolved catalog record after Initialize.
func (b *Base) Config() *stationconfig.StationConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Initialize resolves the catalog record and keeps the collaborators.
// A missing record fails here, before any LLM call.
func (b *Base) Initialize(ctx context.Context, deps Deps) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	label := b.id.String()
	if deps.LLM == nil || deps.Store == nil || deps.Configs == nil {
		return services.Wrap(services.ErrConfiguration, label, "initialize", "llm, store and config loader are required", nil)
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, label, "initialize", "cancelled", err)
	}
	cfg, err := deps.Configs.Get(b.id)
	if err != nil {
		return err
	}
	if deps.Prompter == nil {
		deps.Prompter = AutoFirst{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.ForStation(logger, deps.LogLevels, label)

	b.wired = deps
	b.cfg = cfg
	b.logger = logging.NewComponentLogger(logger, "station")
	if b.name == "" {
		b.name = cfg.Name
	}
	b.initialized = true
	return nil
}

// HealthCheck reports whether the station is wired and configured.
func (b *Base) HealthCheck(_ context.Context) Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := fmt.Sprintf("%s %s", b.id, b.name)
	if !b.initialized {
		return Unhealthy(name, "not initialized")
	}
	if _, ok := b.cfg.Template(stationconfig.MainTemplate); !ok {
		return Unhealthy(name, "main template missing")
	}
	return Healthy(name)
}

func (b *Base) snapshot() (Deps, *stationconfig.StationConfig, *slog.Logger, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wired, b.cfg, b.logger, b.initialized
}

// LoadDependencies reads every declared dependency. An absent or stale
// output fails with MissingDependencyError naming the first offender.
func (b *Base) LoadDependencies(ctx context.Context, sessionID string) (map[stationid.ID]Output, error) {
	deps, _, _, ready := b.snapshot()
	if !ready {
		return nil, b.notInitialized()
	}
	var stale []stationid.ID
	if len(b.deps) > 0 {
		var err error
		if stale, err = deps.Store.StaleStations(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	loaded := make(map[stationid.ID]Output, len(b.deps))
	for _, dep := range b.deps {
		for _, s := range stale {
			if s == dep {
				return nil, &MissingDependencyError{Station: b.id, Dependency: dep, SessionID: sessionID, Stale: true}
			}
		}
		out, err := deps.Store.Read(ctx, sessionID, dep)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, &MissingDependencyError{Station: b.id, Dependency: dep, SessionID: sessionID}
		}
		loaded[dep] = out
	}
	return loaded, nil
}

// TemplateValues builds the placeholder context: session_id, every
// dependency under station_NN and the top-level keys of each dependency,
// later stations overriding earlier ones.
func TemplateValues(sessionID string, outputs map[stationid.ID]Output) map[string]any {
	ids := make([]stationid.ID, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	stationid.Sort(ids)

	values := make(map[string]any, 1+len(ids)*4)
	for _, id := range ids {
		out := outputs[id]
		values["station_"+id.KeySuffix()] = out
		for key, value := range out {
			values[key] = value
		}
	}
	values["session_id"] = sessionID
	return values
}

// Process runs the station for sessionID.
func (b *Base) Process(ctx context.Context, sessionID string) (Output, error) {
	deps, cfg, baseLogger, ready := b.snapshot()
	if !ready {
		return nil, b.notInitialized()
	}
	if err := sessionstore.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, baseLogger)
	started := time.Now()
	label := b.id.String()

	loaded, err := b.LoadDependencies(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	logger.Debug("dependencies loaded", logging.Int("dependency_count", len(loaded)))

	values := TemplateValues(sessionID, loaded)
	output := make(Output)

	for _, in := range cfg.Inputs {
		answer, err := deps.Prompter.Ask(ctx, Choice{
			Station:  b.id,
			Key:      in.Key,
			Question: in.Question,
			Default:  in.Default,
		})
		if err != nil {
			return nil, b.wrapInteraction(ctx, "input", err)
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return nil, services.Wrap(services.ErrValidation, label, "input", fmt.Sprintf("%q must not be empty", in.Key), nil)
		}
		values[in.Key] = answer
		output[in.Key] = answer
	}

	mainTpl, _ := cfg.Template(stationconfig.MainTemplate)
	prompt, err := mainTpl.Format(values)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, label, "format prompt", "main template", err)
	}

	result, attempts, err := b.attemptLoop(ctx, deps, logger, func(ctx context.Context) Outcome {
		return b.generateOnce(ctx, deps, cfg, prompt)
	})
	if err != nil {
		return nil, err
	}
	for key, value := range result.Value {
		output[key] = value
	}

	if cfg.Verdict != nil {
		verdict := EvaluateVerdict(cfg.Verdict, result.Value)
		if len(verdict.Warnings) > 0 {
			logging.WarnWithContext(logger, "verdict reported issues", "verdict_warning",
				logging.String("verdict_status", verdict.Status),
				logging.Int("warning_count", len(verdict.Warnings)),
				logging.String(logging.FieldErrorHint, "review the issues before exporting"),
				logging.String(logging.FieldImpact, "pipeline continues"),
			)
		}
		if verdict.Failed() {
			return nil, services.WithHint(
				&StationValidationError{Station: b.id, Attempts: attempts, Problems: verdict.Blocking, Verdict: true},
				"fix the upstream stations, then rerun from the earliest affected station",
			)
		}
	}

	if cfg.Choice != nil {
		if err := b.applyChoice(ctx, deps, cfg.Choice, output); err != nil {
			return nil, err
		}
	}

	if cfg.Followup != nil {
		for key, value := range output {
			values[key] = value
		}
		followup, err := b.runFollowup(ctx, deps, cfg, logger, values)
		if err != nil {
			return nil, err
		}
		output[cfg.Followup.OutputKey] = followup
	}

	output["session_id"] = sessionID

	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrCancelled, label, "write", "cancelled before write", err)
	}
	if err := deps.Store.Write(ctx, sessionID, b.id, output); err != nil {
		return nil, err
	}
	if err := deps.Store.ClearStale(ctx, sessionID, b.id); err != nil {
		logging.WarnWithContext(logger, "stale marker not cleared", "stale_clear_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rerun this station once the store is reachable"),
			logging.String(logging.FieldImpact, "dependents will treat the fresh output as stale"),
		)
	}

	logger.Info("station output stored",
		logging.String(logging.FieldEventType, "station_output_stored"),
		logging.Int(logging.FieldAttempt, attempts),
		logging.Int("key_count", len(output)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return output, nil
}

// attemptLoop calls once until it succeeds, fails fatally or exhausts the
// attempt budget.
func (b *Base) attemptLoop(ctx context.Context, deps Deps, logger *slog.Logger, once func(context.Context) Outcome) (Outcome, int, error) {
	limit := deps.maxAttempts()
	var problems []string
	for attempt := 1; attempt <= limit; attempt++ {
		outcome := once(ctx)
		switch outcome.Kind {
		case OutcomeOK:
			return outcome, attempt, nil
		case OutcomeFatal:
			return Outcome{}, attempt, outcome.Err
		}
		problems = append(problems, fmt.Sprintf("attempt %d: %s", attempt, outcome.Reason))
		logging.WarnWithContext(logger, "unusable llm reply", "station_retry",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int("max_attempts", limit),
			logging.String("reason", outcome.Reason),
			logging.String(logging.FieldErrorHint, "the same prompt will be sent again"),
			logging.String(logging.FieldImpact, "extra llm call"),
		)
	}
	err := &StationValidationError{Station: b.id, Attempts: limit, Problems: problems}
	return Outcome{}, limit, services.WithHint(err, fmt.Sprintf("rerun with --start-at %s, or raise pipeline.max_attempts", b.id))
}

func (b *Base) generateOnce(ctx context.Context, deps Deps, cfg *stationconfig.StationConfig, prompt string) Outcome {
	reply, err := deps.LLM.Generate(ctx, prompt, cfg.Model, cfg.MaxTokens, cfg.Temperature)
	if err != nil {
		return fatal(b.wrapLLM(ctx, "generate", err))
	}
	obj, err := jsonextract.Object(reply)
	if err != nil {
		return retryable(err.Error(), err)
	}
	if problems := cfg.Schema.Validate(obj); len(problems) > 0 {
		return retryable("schema: "+strings.Join(problems, "; "), nil)
	}
	return ok(obj)
}

func (b *Base) applyChoice(ctx context.Context, deps Deps, cfg *stationconfig.Choice, output Output) error {
	label := b.id.String()
	items, _ := output[cfg.OptionsKey].([]any)
	if len(items) == 0 {
		return &StationValidationError{Station: b.id, Attempts: 1, Problems: []string{fmt.Sprintf("no options under %q", cfg.OptionsKey)}}
	}
	choice := Choice{
		Station:     b.id,
		Key:         cfg.ChosenKey,
		Question:    cfg.Question,
		Options:     optionsFrom(items, cfg.LabelField),
		AllowCustom: cfg.AllowCustom,
	}
	if choice.Question == "" {
		choice.Question = "Choose an option"
	}
	answer, err := deps.Prompter.Ask(ctx, choice)
	if err != nil {
		return b.wrapInteraction(ctx, "choice", err)
	}
	picked, custom, matched := choice.Resolve(answer)
	if !matched {
		return services.WithHint(
			services.Wrap(services.ErrValidation, label, "choice", fmt.Sprintf("answer %q matches no option", answer), nil),
			"answer with an option letter or number",
		)
	}
	output[cfg.ChosenKey] = picked.Label
	if !custom {
		if obj, isObj := picked.Value.(map[string]any); isObj {
			output[cfg.ChosenKey+"_option"] = obj
		}
	}
	return nil
}

func (b *Base) runFollowup(ctx context.Context, deps Deps, cfg *stationconfig.StationConfig, logger *slog.Logger, values map[string]any) (any, error) {
	label := b.id.String()
	tpl, _ := cfg.Template(cfg.Followup.Template)
	text, err := tpl.Format(values)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, label, "format followup", cfg.Followup.Template, err)
	}
	maxTokens := cfg.Followup.MaxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.MaxTokens
	}
	result, _, err := b.attemptLoop(ctx, deps, logger, func(ctx context.Context) Outcome {
		reply, err := deps.LLM.ProcessMessage(ctx, text, cfg.Model, maxTokens)
		if err != nil {
			return fatal(b.wrapLLM(ctx, "followup", err))
		}
		if !cfg.Followup.ExpectJSON {
			trimmed := strings.TrimSpace(reply)
			if trimmed == "" {
				return retryable("empty followup reply", nil)
			}
			return okText(trimmed)
		}
		obj, err := jsonextract.Object(reply)
		if err != nil {
			return retryable(err.Error(), err)
		}
		if problems := cfg.Followup.Schema.Validate(obj); len(problems) > 0 {
			return retryable("followup schema: "+strings.Join(problems, "; "), nil)
		}
		return ok(obj)
	})
	if err != nil {
		return nil, err
	}
	if cfg.Followup.ExpectJSON {
		return result.Value, nil
	}
	return result.Text, nil
}

func (b *Base) wrapLLM(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrCancelled, b.id.String(), op, "llm call cancelled", err)
	}
	var svc *services.ServiceError
	if errors.As(err, &svc) {
		return err
	}
	return services.Wrap(services.ErrTransport, b.id.String(), op, "llm call failed", err)
}

func (b *Base) wrapInteraction(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrCancelled, b.id.String(), op, "operator input cancelled", err)
	}
	return err
}

func (b *Base) notInitialized() error {
	return services.Wrap(services.ErrConfiguration, b.id.String(), "process", "station used before Initialize", nil)
}
