package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable. The LLM API key is checked
// separately by ValidateLLM so read-only commands work without one.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateLLM ensures the settings needed to call the LLM are present.
func (c *Config) ValidateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("llm.api_key is required. Set OPENROUTER_API_KEY env var or edit %s (create with 'audiobook config init')", defaultPath)
	}
	if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("llm.base_url is invalid: %w", err)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendRedis:
		if !strings.HasPrefix(c.Store.RedisURL, "redis://") && !strings.HasPrefix(c.Store.RedisURL, "rediss://") {
			return fmt.Errorf("store.redis_url must use redis:// or rediss:// (got %q)", c.Store.RedisURL)
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path must be set for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend must be one of redis, sqlite, memory (got %q)", c.Store.Backend)
	}
	if strings.ContainsAny(c.Store.KeyPrefix, " \t\n{}") {
		return fmt.Errorf("store.key_prefix contains invalid characters: %q", c.Store.KeyPrefix)
	}
	if c.Store.TTLSeconds < 0 {
		return errors.New("store.ttl_seconds must not be negative")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxAttempts < 1 || c.Pipeline.MaxAttempts > 10 {
		return fmt.Errorf("pipeline.max_attempts must be between 1 and 10 (got %d)", c.Pipeline.MaxAttempts)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	for station, level := range c.Logging.StationOverrides {
		if !validLevel(level) {
			return fmt.Errorf("logging.station_overrides[%s]: unsupported level %q", station, level)
		}
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported level %q", c.Logging.Level)
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
