package pipeline

import (
	"context"

	"audiobook/internal/stationid"
)

// StationState describes one registered station within a session.
type StationState struct {
	ID           stationid.ID   `json:"id"`
	Name         string         `json:"name"`
	Dependencies []stationid.ID `json:"dependencies,omitempty"`
	Stored       bool           `json:"stored"`
	Stale        bool           `json:"stale"`
}

// SessionStatus is the per-station view of one session.
type SessionStatus struct {
	SessionID string         `json:"session_id"`
	Stations  []StationState `json:"stations"`
	// NextStartAt is where a plain run would begin; nil when complete.
	NextStartAt *stationid.ID `json:"next_start_at,omitempty"`
}

// Status reports which registered stations have stored or stale output.
func (r *Runner) Status(ctx context.Context, sessionID string) (SessionStatus, error) {
	completed, err := r.opts.Store.Completed(ctx, sessionID)
	if err != nil {
		return SessionStatus{}, err
	}
	stale, err := r.opts.Store.StaleStations(ctx, sessionID)
	if err != nil {
		return SessionStatus{}, err
	}
	status := SessionStatus{SessionID: sessionID}
	for _, st := range r.stations {
		status.Stations = append(status.Stations, StationState{
			ID:           st.ID(),
			Name:         st.Name(),
			Dependencies: st.Dependencies(),
			Stored:       containsID(completed, st.ID()),
			Stale:        containsID(stale, st.ID()),
		})
	}
	next, done, err := r.ResumePoint(ctx, sessionID)
	if err != nil {
		return SessionStatus{}, err
	}
	if !done {
		status.NextStartAt = &next
	}
	return status, nil
}

// IncompleteSession is a session with stations left to run or re-run.
type IncompleteSession struct {
	SessionID   string         `json:"session_id"`
	Highest     stationid.ID   `json:"highest_completed"`
	NextStartAt *stationid.ID  `json:"next_start_at,omitempty"`
	Stale       []stationid.ID `json:"stale,omitempty"`
}

// ListIncomplete returns every stored session that still has work left,
// ordered by session id. With all set, finished sessions are included too.
func (r *Runner) ListIncomplete(ctx context.Context, all bool) ([]IncompleteSession, error) {
	sessions, err := r.opts.Store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	var out []IncompleteSession
	for _, summary := range sessions {
		highest, ok := summary.Highest()
		if !ok {
			continue
		}
		entry := IncompleteSession{SessionID: summary.ID, Highest: highest, Stale: summary.Stale}
		if next, remaining := r.resumeFrom(summary.Completed, summary.Stale); remaining {
			entry.NextStartAt = &next
		} else if !all {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func containsID(ids []stationid.ID, id stationid.ID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
