// Package logging assembles structured slog loggers and formatting helpers used
// across the audiobook pipeline.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so station code automatically
// tags log lines with session IDs, station labels and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
