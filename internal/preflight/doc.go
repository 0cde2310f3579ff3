// Package preflight provides readiness checks for the services and
// filesystem paths the pipeline depends on.
//
// These checks run in two contexts:
//   - "audiobook run" calls RunAll before the first station so a session
//     does not fail halfway on a missing directory or an unreachable store.
//   - "audiobook check" prints every result as a table.
//
// The LLM check is skipped by RunAll when skipLLM is set, since it spends a
// real completion.
package preflight
