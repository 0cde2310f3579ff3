// Package config loads, normalizes, and validates the TOML configuration that
// drives the audiobook pipeline.
//
// It resolves the config file (explicit path, ~/.config/audiobook/config.toml
// or ./audiobook.toml), applies defaults and environment fallbacks
// (OPENROUTER_API_KEY, REDIS_URL, AUDIOBOOK_STORE_BACKEND) and exposes
// helpers for sample generation and directory creation.
package config
