package preflight

import (
	"fmt"
	"strings"

	"audiobook/internal/services"
)

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err folds failed results into one configuration error, or nil when every
// check passed.
func Err(results []Result) error {
	failed := Failed(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return services.WithHint(
		services.Wrap(services.ErrConfiguration, "", "preflight", strings.Join(parts, "; "), nil),
		"run 'audiobook check' for details",
	)
}
