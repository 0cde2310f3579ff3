package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"audiobook/internal/services"
	"audiobook/internal/stationid"
)

const (
	// DefaultPrefix is the key namespace shared with other tooling.
	DefaultPrefix = "audiobook"
	// DefaultTTL applies from the last write of each key.
	DefaultTTL = 24 * time.Hour

	metaSuffix    = "meta"
	stationPrefix = "station_"
)

// Output is one station's persisted JSON object.
type Output = map[string]any

// Store maps (session, station) pairs onto KV keys holding JSON text.
type Store struct {
	kv     KV
	prefix string
	ttl    time.Duration
}

// Option customises a Store.
type Option func(*Store)

// WithPrefix replaces the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
			s.prefix = trimmed
		}
	}
}

// WithTTL replaces the per-key TTL. Zero or negative disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New wraps kv.
func New(kv KV, opts ...Option) *Store {
	s := &Store{kv: kv, prefix: DefaultPrefix, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key renders the default-namespace key for a station output:
// audiobook:{session}:station_04 or audiobook:{session}:station_04_5.
func Key(sessionID string, id stationid.ID) string {
	return stationKey(DefaultPrefix, sessionID, id)
}

func stationKey(prefix, sessionID string, id stationid.ID) string {
	return prefix + ":" + sessionID + ":" + stationPrefix + id.KeySuffix()
}

// Key renders the key for a station output in this store's namespace.
func (s *Store) Key(sessionID string, id stationid.ID) string {
	return stationKey(s.prefix, sessionID, id)
}

func (s *Store) metaKey(sessionID string) string {
	return s.prefix + ":" + sessionID + ":" + metaSuffix
}

func (s *Store) sessionPrefix(sessionID string) string {
	return s.prefix + ":" + sessionID + ":"
}

// TTL returns the expiry applied on write.
func (s *Store) TTL() time.Duration { return s.ttl }

// ValidateSessionID rejects ids that would break the key layout.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return services.Wrap(services.ErrValidation, "", "session id", "must not be empty", nil)
	}
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return services.Wrap(services.ErrValidation, "", "session id", fmt.Sprintf("%q contains %q; use letters, digits, '_', '-' or '.'", sessionID, r), nil)
		}
	}
	return nil
}

// Write serializes payload and stores it under the station key, resetting
// the TTL. Empty payloads are rejected before the backend is touched.
func (s *Store) Write(ctx context.Context, sessionID string, id stationid.ID, payload Output) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if len(payload) == 0 {
		return services.Wrap(services.ErrValidation, id.String(), "write", "refusing to store empty output", nil)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrValidation, id.String(), "write", "output is not JSON serializable", err)
	}
	key := s.Key(sessionID, id)
	return unavailable("set", key, s.kv.Set(ctx, key, string(data), s.ttl))
}

// Read returns the stored output, or nil with no error when absent.
func (s *Store) Read(ctx context.Context, sessionID string, id stationid.ID) (Output, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	key := s.Key(sessionID, id)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	if !ok {
		return nil, nil
	}
	out, err := decodeObject(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, id.String(), "read", "stored value is not a JSON object: "+key, err)
	}
	return out, nil
}

// Exists reports whether the station has stored output.
func (s *Store) Exists(ctx context.Context, sessionID string, id stationid.ID) (bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return false, err
	}
	key := s.Key(sessionID, id)
	_, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, unavailable("get", key, err)
	}
	return ok, nil
}

// DeleteStation removes one station output.
func (s *Store) DeleteStation(ctx context.Context, sessionID string, id stationid.ID) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	key := s.Key(sessionID, id)
	return unavailable("delete", key, s.kv.Delete(ctx, key))
}

// DeleteSession removes every key of the session and returns how many were
// removed.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return 0, err
	}
	prefix := s.sessionPrefix(sessionID)
	keys, err := s.kv.Scan(ctx, prefix)
	if err != nil {
		return 0, unavailable("scan", prefix, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return 0, unavailable("delete", prefix, err)
	}
	return len(keys), nil
}

// Completed lists the stations with stored output, ascending.
func (s *Store) Completed(ctx context.Context, sessionID string) ([]stationid.ID, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	prefix := s.sessionPrefix(sessionID)
	keys, err := s.kv.Scan(ctx, prefix)
	if err != nil {
		return nil, unavailable("scan", prefix, err)
	}
	var ids []stationid.ID
	for _, key := range keys {
		if _, id, ok := s.parseStationKey(key); ok {
			ids = append(ids, id)
		}
	}
	stationid.Sort(ids)
	return ids, nil
}

// SessionSummary describes one stored session.
type SessionSummary struct {
	ID        string
	Completed []stationid.ID
	Stale     []stationid.ID
}

// Highest returns the highest completed station.
func (s SessionSummary) Highest() (stationid.ID, bool) {
	if len(s.Completed) == 0 {
		return stationid.ID{}, false
	}
	return s.Completed[len(s.Completed)-1], true
}

// ListSessions scans the namespace and groups station keys per session.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	prefix := s.prefix + ":"
	keys, err := s.kv.Scan(ctx, prefix)
	if err != nil {
		return nil, unavailable("scan", prefix, err)
	}
	bySession := make(map[string]*SessionSummary)
	get := func(sessionID string) *SessionSummary {
		summary, ok := bySession[sessionID]
		if !ok {
			summary = &SessionSummary{ID: sessionID}
			bySession[sessionID] = summary
		}
		return summary
	}
	for _, key := range keys {
		if sessionID, id, ok := s.parseStationKey(key); ok {
			summary := get(sessionID)
			summary.Completed = append(summary.Completed, id)
		}
	}
	sessions := make([]SessionSummary, 0, len(bySession))
	for sessionID, summary := range bySession {
		stationid.Sort(summary.Completed)
		stale, err := s.StaleStations(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		summary.Stale = stale
		sessions = append(sessions, *summary)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

// parseStationKey splits {prefix}:{session}:station_NN[_m]. Meta keys and
// foreign keys report ok=false.
func (s *Store) parseStationKey(key string) (string, stationid.ID, bool) {
	rest, ok := strings.CutPrefix(key, s.prefix+":")
	if !ok {
		return "", stationid.ID{}, false
	}
	sessionID, suffix, ok := strings.Cut(rest, ":")
	if !ok || sessionID == "" || !strings.HasPrefix(suffix, stationPrefix) {
		return "", stationid.ID{}, false
	}
	id, err := stationid.Parse(suffix)
	if err != nil {
		return "", stationid.ID{}, false
	}
	if stationKey(s.prefix, sessionID, id) != key {
		return "", stationid.ID{}, false
	}
	return sessionID, id, true
}

func decodeObject(raw string) (Output, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out Output
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("null object")
	}
	return out, nil
}
