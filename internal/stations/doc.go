// Package stations builds the concrete pipeline stations from the station
// catalog.
//
// Every catalog record becomes a PromptStation: a station.Base carrying the
// record's identity and dependencies. Lint checks that each template only
// references values its dependencies, inputs or own reply can supply, so a
// broken catalog is reported before any LLM call is made.
package stations
