// Package services defines shared utilities consumed by the pipeline runner,
// the station implementations and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, station labels, run IDs and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so every failure lands in
//     exactly one error kind (missing dependency, extraction, validation,
//     store, transport, ...) that run reports and the CLI can surface.
//
// Use these helpers when wiring new station logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
