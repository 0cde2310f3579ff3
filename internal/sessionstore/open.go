package sessionstore

import (
	"context"
	"fmt"
	"time"

	"audiobook/internal/config"
	"audiobook/internal/services"
)

// Open builds the store selected by configuration.
func Open(ctx context.Context, cfg config.Store) (*Store, error) {
	var (
		kv  KV
		err error
	)
	switch cfg.Backend {
	case config.BackendRedis:
		kv, err = NewRedisKV(ctx, cfg.RedisURL)
	case config.BackendSQLite:
		kv, err = OpenSQLiteKV(ctx, cfg.SQLitePath)
	case config.BackendMemory:
		kv = NewMemoryKV()
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, services.WithHint(
			&StoreUnavailableError{Op: "open " + cfg.Backend, Err: err},
			"check [store] in the config file or set AUDIOBOOK_STORE_BACKEND",
		)
	}
	return New(kv, WithPrefix(cfg.KeyPrefix), WithTTL(time.Duration(cfg.TTLSeconds)*time.Second)), nil
}
