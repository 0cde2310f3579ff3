// Package sessionstore persists station outputs per session.
//
// Keys follow {prefix}:{session_id}:station_{NN} with fractional stations
// written station_{NN}_{m}; values are JSON objects with a TTL refreshed on
// every write. Backends implement KV: Redis, SQLite and an in-memory map.
// Backend failures surface as StoreUnavailableError and are not retried here.
package sessionstore
