package station

import (
	"fmt"
	"strings"

	"audiobook/internal/stationconfig"
)

// VerdictResult is the policy decision for a validation station's reply.
type VerdictResult struct {
	Status   string
	Blocking []string
	Warnings []string
}

// Failed reports whether the verdict must stop the pipeline.
func (v VerdictResult) Failed() bool { return len(v.Blocking) > 0 }

// EvaluateVerdict applies the configured policy. Only a failing status with
// at least one fatal-severity issue blocks; warn severities are surfaced and
// the station still succeeds.
func EvaluateVerdict(cfg *stationconfig.Verdict, value Output) VerdictResult {
	if cfg == nil {
		return VerdictResult{}
	}
	result := VerdictResult{Status: strings.ToUpper(strings.TrimSpace(fmt.Sprint(value[cfg.StatusKey])))}
	failed := result.Status == strings.ToUpper(cfg.FailValue)

	issues, _ := value[cfg.IssuesKey].([]any)
	for _, raw := range issues {
		severity, description := describeIssue(raw, cfg.SeverityField)
		switch {
		case failed && contains(cfg.FatalSeverities, severity):
			result.Blocking = append(result.Blocking, fmt.Sprintf("[%s] %s", severity, description))
		case contains(cfg.WarnSeverities, severity), contains(cfg.FatalSeverities, severity):
			result.Warnings = append(result.Warnings, fmt.Sprintf("[%s] %s", severity, description))
		}
	}
	return result
}

func describeIssue(raw any, severityField string) (string, string) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return "", fmt.Sprint(raw)
	}
	severity := strings.ToLower(strings.TrimSpace(fmt.Sprint(obj[severityField])))
	for _, key := range []string{"description", "issue", "detail", "message"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return severity, s
		}
	}
	return severity, strings.TrimSpace(detailOf(obj, severityField))
}

func contains(values []string, target string) bool {
	if target == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}
