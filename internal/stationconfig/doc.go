// Package stationconfig loads the station catalog: one YAML record per
// station carrying model settings, dependencies, prompt templates, the
// required-key schema and optional operator interaction.
//
// The catalog is read once per process. Templates are formatted by callers;
// the loader never substitutes values itself.
package stationconfig
