package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"audiobook/internal/logging"
	"audiobook/internal/services"
	"audiobook/internal/sessionstore"
	"audiobook/internal/station"
	"audiobook/internal/stationconfig"
	"audiobook/internal/stationid"
)

// RunnerOptions are the collaborators the Runner injects into every station.
type RunnerOptions struct {
	LLM         station.Generator
	Store       *sessionstore.Store
	Configs     *stationconfig.Loader
	Prompter    station.ChoicePrompter
	Logger      *slog.Logger
	MaxAttempts int
	LogLevels   map[string]string
	// LockDir holds per-session lock files. Empty limits the guard to this
	// process.
	LockDir string
	Now     func() time.Time
}

// RunOptions select where a run starts.
type RunOptions struct {
	// StartAt forces execution to begin at this station. Nil resumes after
	// the highest stored station.
	StartAt *stationid.ID
	// Only stops after the first executed station.
	Only bool
}

// Runner executes stations in ascending order for one session at a time.
type Runner struct {
	stations []station.Station
	byID     map[stationid.ID]station.Station
	opts     RunnerOptions
	logger   *slog.Logger
	locks    *sessionLocks
}

// NewRunner sorts stations by id and validates their dependency order.
func NewRunner(opts RunnerOptions, stations ...station.Station) (*Runner, error) {
	if opts.Store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "new runner", "store is required", nil)
	}
	if opts.LLM == nil || opts.Configs == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "new runner", "llm client and config loader are required", nil)
	}
	ordered := append([]station.Station(nil), stations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID().Less(ordered[j].ID()) })
	if err := ValidateOrder(ordered); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	byID := make(map[stationid.ID]station.Station, len(ordered))
	for _, st := range ordered {
		byID[st.ID()] = st
	}
	return &Runner{
		stations: ordered,
		byID:     byID,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		locks:    newSessionLocks(opts.LockDir),
	}, nil
}

// ValidateOrder rejects empty sets, duplicate ids and dependencies that are
// unknown or not strictly lower than their station.
func ValidateOrder(stations []station.Station) error {
	if len(stations) == 0 {
		return services.Wrap(services.ErrConfiguration, "", "validate order", "no stations registered", nil)
	}
	seen := make(map[stationid.ID]struct{}, len(stations))
	var problems []string
	for _, st := range stations {
		id := st.ID()
		if _, dup := seen[id]; dup {
			problems = append(problems, fmt.Sprintf("station %s registered twice", id))
		}
		seen[id] = struct{}{}
	}
	for _, st := range stations {
		for _, dep := range st.Dependencies() {
			if !dep.Less(st.ID()) {
				problems = append(problems, fmt.Sprintf("station %s depends on %s, which does not precede it", st.ID(), dep))
				continue
			}
			if _, ok := seen[dep]; !ok {
				problems = append(problems, fmt.Sprintf("station %s depends on unknown station %s", st.ID(), dep))
			}
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrConfiguration, "", "validate order", strings.Join(problems, "; "), nil)
	}
	return nil
}

// Stations returns the registered stations in execution order.
func (r *Runner) Stations() []station.Station {
	return append([]station.Station(nil), r.stations...)
}

// Lookup returns the registered station with id.
func (r *Runner) Lookup(id stationid.ID) (station.Station, bool) {
	st, ok := r.byID[id]
	return st, ok
}

// Run executes stations for sessionID and always returns a report.
func (r *Runner) Run(ctx context.Context, sessionID string, opts RunOptions) RunReport {
	runID := uuid.NewString()
	report := RunReport{SessionID: sessionID, RunID: runID, StartedAt: r.opts.Now().UTC()}
	ctx = services.WithRunID(services.WithSessionID(ctx, sessionID), runID)
	logger := logging.WithContext(ctx, r.logger)

	defer func() { report.FinishedAt = r.opts.Now().UTC() }()

	if err := sessionstore.ValidateSessionID(sessionID); err != nil {
		report.Failure = failureFrom(stationid.ID{}, err)
		return report
	}
	release, err := r.locks.acquire(sessionID)
	if err != nil {
		report.Failure = failureFrom(stationid.ID{}, err)
		if report.Failure.Hint == "" {
			report.Failure.Hint = "wait for the other run to finish"
		}
		return report
	}
	defer release()

	start, err := r.startIndex(ctx, sessionID, opts.StartAt)
	if err != nil {
		var id stationid.ID
		if opts.StartAt != nil {
			id = *opts.StartAt
		}
		report.Failure = failureFrom(id, err)
		return report
	}
	if start >= len(r.stations) {
		stale, err := r.opts.Store.StaleStations(ctx, sessionID)
		if err != nil {
			report.Failure = failureFrom(stationid.ID{}, err)
			return report
		}
		report.Stale = stale
		report.Completed = len(stale) == 0
		logger.Info("session already complete", logging.String(logging.FieldEventType, "run_noop"))
		return report
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("start_at", r.stations[start].ID().String()),
		logging.Bool("only", opts.Only),
	)

	deps := station.Deps{
		LLM:         r.opts.LLM,
		Store:       r.opts.Store,
		Configs:     r.opts.Configs,
		Prompter:    r.opts.Prompter,
		Logger:      r.opts.Logger,
		MaxAttempts: r.opts.MaxAttempts,
		LogLevels:   r.opts.LogLevels,
	}

	for idx := start; idx < len(r.stations); idx++ {
		st := r.stations[idx]
		id := st.ID()
		if err := r.invalidateFrom(ctx, sessionID, id); err != nil {
			report.Failure = failureFrom(id, err)
			report.NextStartAt = &id
			break
		}
		result, err := r.runStation(ctx, st, deps, sessionID)
		report.Stations = append(report.Stations, result)
		if err != nil {
			report.Failure = failureFrom(id, err)
			report.NextStartAt = &id
			break
		}
		if opts.Only {
			if idx+1 < len(r.stations) {
				next := r.stations[idx+1].ID()
				report.NextStartAt = &next
			}
			break
		}
	}

	stale, err := r.opts.Store.StaleStations(ctx, sessionID)
	switch {
	case err == nil:
		report.Stale = stale
	case report.Failure == nil:
		report.Failure = failureFrom(stationid.ID{}, err)
	}
	if report.Failure == nil && report.NextStartAt == nil && len(report.Stale) == 0 {
		report.Completed = true
	}
	if report.Failure != nil {
		logging.ErrorWithContext(logger, "run halted", "run_failed",
			logging.String(logging.FieldStation, report.Failure.Station.String()),
			logging.String("kind", string(report.Failure.Kind)),
			logging.String("message", report.Failure.Message),
			logging.String(logging.FieldErrorHint, report.ResumeHint()),
		)
	} else {
		logger.Info("run finished",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.Int("stations_run", len(report.Stations)),
			logging.Bool("completed", report.Completed),
		)
	}
	return report
}

// Rerun forces one station to execute again. Later stations with stored
// output are marked stale and refuse to serve as dependencies until re-run.
func (r *Runner) Rerun(ctx context.Context, sessionID string, id stationid.ID) RunReport {
	return r.Run(ctx, sessionID, RunOptions{StartAt: &id, Only: true})
}

func (r *Runner) runStation(ctx context.Context, st station.Station, deps station.Deps, sessionID string) (StationResult, error) {
	id := st.ID()
	correlationID := uuid.NewString()
	stationCtx := services.WithRequestID(services.WithStation(ctx, id.String()), correlationID)
	stationLogger := logging.WithContext(stationCtx, r.logger)
	result := StationResult{ID: id, Name: st.Name(), CorrelationID: correlationID}
	started := time.Now()

	stationLogger.Info("station started", logging.String(logging.FieldEventType, "station_start"))

	err := st.Initialize(stationCtx, deps)
	var out station.Output
	if err == nil {
		result.Name = st.Name()
		out, err = st.Process(stationCtx, sessionID)
	}
	result.Duration = time.Since(started)
	if err != nil {
		result.Status = StationFailed
		result.Error = err.Error()
		return result, err
	}

	result.Status = StationCompleted
	result.Keys = make([]string, 0, len(out))
	for key := range out {
		result.Keys = append(result.Keys, key)
	}
	sort.Strings(result.Keys)
	stationLogger.Info("station completed",
		logging.String(logging.FieldEventType, "station_complete"),
		logging.Duration("station_duration", result.Duration),
	)
	return result, nil
}

// startIndex resolves the first station to execute.
func (r *Runner) startIndex(ctx context.Context, sessionID string, startAt *stationid.ID) (int, error) {
	if startAt != nil {
		for idx, st := range r.stations {
			if st.ID() == *startAt {
				return idx, nil
			}
		}
		return 0, services.WithHint(
			services.Wrap(services.ErrValidation, startAt.String(), "start at", "unknown station", nil),
			"list stations with 'audiobook stations'",
		)
	}
	next, done, err := r.ResumePoint(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if done {
		return len(r.stations), nil
	}
	for idx, st := range r.stations {
		if st.ID() == next {
			return idx, nil
		}
	}
	return len(r.stations), nil
}

// ResumePoint returns where a plain run continues: the lowest stale
// station, else the station after the highest stored one. done is true when
// the last registered station has output and nothing is stale.
func (r *Runner) ResumePoint(ctx context.Context, sessionID string) (next stationid.ID, done bool, err error) {
	completed, err := r.opts.Store.Completed(ctx, sessionID)
	if err != nil {
		return stationid.ID{}, false, err
	}
	stale, err := r.opts.Store.StaleStations(ctx, sessionID)
	if err != nil {
		return stationid.ID{}, false, err
	}
	next, ok := r.resumeFrom(completed, stale)
	return next, !ok, nil
}

func (r *Runner) resumeFrom(completed, stale []stationid.ID) (stationid.ID, bool) {
	for _, id := range stale {
		if _, registered := r.byID[id]; registered {
			return id, true
		}
	}
	if len(completed) == 0 {
		return r.stations[0].ID(), true
	}
	highest := completed[len(completed)-1]
	for _, st := range r.stations {
		if highest.Less(st.ID()) {
			return st.ID(), true
		}
	}
	return stationid.ID{}, false
}

// invalidateFrom marks id and every later station with stored output stale
// before id executes. A station clears its own marker when it writes, so
// anything built on the previous output of id stays stale until re-run, even
// if id fails or the process dies mid-station.
func (r *Runner) invalidateFrom(ctx context.Context, sessionID string, id stationid.ID) error {
	completed, err := r.opts.Store.Completed(ctx, sessionID)
	if err == nil {
		var affected []stationid.ID
		for _, stored := range completed {
			if !stored.Less(id) {
				affected = append(affected, stored)
			}
		}
		err = r.opts.Store.MarkStale(ctx, sessionID, affected...)
	}
	if err != nil {
		return services.WithHint(
			services.Wrap(services.ErrStoreUnavailable, id.String(), "invalidate later stations", "could not record stale outputs", err),
			fmt.Sprintf("check the session store, then rerun with --start-at %s", id),
		)
	}
	return nil
}
