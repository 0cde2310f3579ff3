package sessionstore

import (
	"context"
	"fmt"
	"time"

	"audiobook/internal/services"
)

// KV is the key-value contract the store needs from a backend. Get reports
// absence with ok=false rather than an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// StoreUnavailableError wraps a backend failure. It is never retried by the
// store itself.
type StoreUnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store unavailable: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool {
	return target == services.ErrStoreUnavailable
}

func unavailable(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreUnavailableError{Op: op, Key: key, Err: err}
}
