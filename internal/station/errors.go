package station

import (
	"fmt"
	"strings"

	"audiobook/internal/services"
	"audiobook/internal/stationid"
)

// MissingDependencyError means a declared dependency has no usable output.
type MissingDependencyError struct {
	Station    stationid.ID
	Dependency stationid.ID
	SessionID  string
	Stale      bool
}

func (e *MissingDependencyError) Error() string {
	if e.Stale {
		return fmt.Sprintf("station %s: dependency station %s is stale in session %s; re-run station %s first",
			e.Station, e.Dependency, e.SessionID, e.Dependency)
	}
	return fmt.Sprintf("station %s: dependency station %s has no stored output in session %s",
		e.Station, e.Dependency, e.SessionID)
}

func (e *MissingDependencyError) Is(target error) bool {
	return target == services.ErrMissingDependency
}

// StationValidationError means the LLM never produced an acceptable reply,
// or a validation verdict failed with blocking issues.
type StationValidationError struct {
	Station  stationid.ID
	Attempts int
	Problems []string
	Verdict  bool
}

func (e *StationValidationError) Error() string {
	if e.Verdict {
		return fmt.Sprintf("station %s: verdict failed: %s", e.Station, strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("station %s: no valid reply after %d attempt(s): %s",
		e.Station, e.Attempts, strings.Join(e.Problems, "; "))
}

func (e *StationValidationError) Is(target error) bool {
	return target == services.ErrStationValidation
}
