package sessionstore

import (
	"context"
	"encoding/json"
	"time"

	"audiobook/internal/services"
	"audiobook/internal/stationid"
)

// sessionMeta lives under {prefix}:{session}:meta and never parses as a
// station key.
type sessionMeta struct {
	Stale     []stationid.ID `json:"stale,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (s *Store) readMeta(ctx context.Context, sessionID string) (sessionMeta, error) {
	key := s.metaKey(sessionID)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return sessionMeta{}, unavailable("get", key, err)
	}
	var meta sessionMeta
	if !ok {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return sessionMeta{}, services.Wrap(services.ErrStoreUnavailable, "", "read meta", key, err)
	}
	return meta, nil
}

func (s *Store) writeMeta(ctx context.Context, sessionID string, meta sessionMeta) error {
	key := s.metaKey(sessionID)
	if len(meta.Stale) == 0 {
		return unavailable("delete", key, s.kv.Delete(ctx, key))
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(meta)
	if err != nil {
		return services.Wrap(services.ErrValidation, "", "write meta", key, err)
	}
	return unavailable("set", key, s.kv.Set(ctx, key, string(data), s.ttl))
}

// MarkStale records that the given stations' outputs predate a forced
// re-run of an earlier station. Outputs are kept; dependency loads refuse them.
func (s *Store) MarkStale(ctx context.Context, sessionID string, ids ...stationid.ID) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	meta, err := s.readMeta(ctx, sessionID)
	if err != nil {
		return err
	}
	set := make(map[stationid.ID]struct{}, len(meta.Stale)+len(ids))
	for _, id := range meta.Stale {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	meta.Stale = meta.Stale[:0]
	for id := range set {
		meta.Stale = append(meta.Stale, id)
	}
	stationid.Sort(meta.Stale)
	return s.writeMeta(ctx, sessionID, meta)
}

// ClearStale removes the stale marker for id.
func (s *Store) ClearStale(ctx context.Context, sessionID string, id stationid.ID) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	meta, err := s.readMeta(ctx, sessionID)
	if err != nil {
		return err
	}
	kept := meta.Stale[:0]
	changed := false
	for _, existing := range meta.Stale {
		if existing == id {
			changed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !changed {
		return nil
	}
	meta.Stale = kept
	return s.writeMeta(ctx, sessionID, meta)
}

// StaleStations lists stations currently marked stale, ascending.
func (s *Store) StaleStations(ctx context.Context, sessionID string) ([]stationid.ID, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	meta, err := s.readMeta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return meta.Stale, nil
}

// IsStale reports whether id is marked stale.
func (s *Store) IsStale(ctx context.Context, sessionID string, id stationid.ID) (bool, error) {
	stale, err := s.StaleStations(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for _, existing := range stale {
		if existing == id {
			return true, nil
		}
	}
	return false, nil
}

// Ping checks backend reachability.
func (s *Store) Ping(ctx context.Context) error {
	return unavailable("ping", "", s.kv.Ping(ctx))
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}
