package testsupport

import (
	"context"
	"testing"

	"audiobook/internal/config"
	"audiobook/internal/sessionstore"
	"audiobook/internal/stationid"
)

// MustOpenStore opens a sessionstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *sessionstore.Store {
	t.Helper()

	store, err := sessionstore.Open(context.Background(), cfg.Store)
	if err != nil {
		t.Fatalf("sessionstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// Seed stores a minimal output for each station id.
func Seed(t testing.TB, store *sessionstore.Store, sessionID string, ids ...string) {
	t.Helper()

	for _, id := range ids {
		out := sessionstore.Output{"value": id, "session_id": sessionID}
		if err := store.Write(context.Background(), sessionID, stationid.MustParse(id), out); err != nil {
			t.Fatalf("seed %s/%s: %v", sessionID, id, err)
		}
	}
}
