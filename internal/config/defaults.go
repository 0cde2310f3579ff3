package config

const (
	defaultConfigPath        = "~/.config/audiobook/config.toml"
	defaultStateDir          = "~/.local/share/audiobook"
	defaultLogDir            = "~/.local/share/audiobook/logs"
	defaultLockDir           = "~/.local/share/audiobook/locks"
	defaultSQLiteFile        = "sessions.db"
	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMTitle          = "Audiobook Station Pipeline"
	defaultLLMTimeoutSeconds = 120
	defaultLLMRetryAttempts  = 3
	defaultStoreBackend      = BackendRedis
	defaultRedisURL          = "redis://localhost:6379/0"
	defaultKeyPrefix         = "audiobook"
	defaultTTLSeconds        = 86400
	defaultMaxAttempts       = 3
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			LockDir:  defaultLockDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			RetryAttempts:  defaultLLMRetryAttempts,
		},
		Store: Store{
			Backend:    defaultStoreBackend,
			RedisURL:   defaultRedisURL,
			KeyPrefix:  defaultKeyPrefix,
			TTLSeconds: defaultTTLSeconds,
		},
		Pipeline: Pipeline{
			MaxAttempts: defaultMaxAttempts,
			Interactive: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
