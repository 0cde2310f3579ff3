package pipeline

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"audiobook/internal/services"
	"audiobook/internal/stationid"
)

// StationStatus is the outcome of one station within a run.
type StationStatus string

const (
	StationCompleted StationStatus = "completed"
	StationFailed    StationStatus = "failed"
)

// StationResult records one executed station.
type StationResult struct {
	ID            stationid.ID  `json:"id"`
	Name          string        `json:"name"`
	Status        StationStatus `json:"status"`
	CorrelationID string        `json:"correlation_id"`
	Keys          []string      `json:"keys,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
	Error         string        `json:"error,omitempty"`
}

// Failure describes why a run stopped early.
type Failure struct {
	Station stationid.ID       `json:"station"`
	Kind    services.ErrorKind `json:"kind"`
	Message string             `json:"message"`
	Hint    string             `json:"hint,omitempty"`
}

// RunReport summarizes a Run or Rerun. It is always returned, even when the
// run failed before the first station.
type RunReport struct {
	SessionID   string          `json:"session_id"`
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Stations    []StationResult `json:"stations"`
	Stale       []stationid.ID  `json:"stale,omitempty"`
	Failure     *Failure        `json:"failure,omitempty"`
	NextStartAt *stationid.ID   `json:"next_start_at,omitempty"`
	Completed   bool            `json:"completed"`
}

// Succeeded reports whether the run finished without a failure.
func (r RunReport) Succeeded() bool { return r.Failure == nil }

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ResumeHint returns the CLI invocation that continues the session, or ""
// when nothing remains.
func (r RunReport) ResumeHint() string {
	if r.NextStartAt == nil {
		return ""
	}
	return "audiobook run " + r.SessionID + " --start-at " + r.NextStartAt.String()
}

func failureFrom(id stationid.ID, err error) *Failure {
	details := services.Details(err)
	message := strings.TrimSpace(details.Message)
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Failure{Station: id, Kind: details.Kind, Message: message, Hint: details.Hint}
}

// DisplayName renders "Station 4.5: Reveal Strategy" for reports and tables.
func DisplayName(id stationid.ID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Station " + id.String()
	}
	return "Station " + id.String() + ": " + cases.Title(language.Und).String(name)
}
