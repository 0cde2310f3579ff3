package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"audiobook/internal/config"
	"audiobook/internal/logging"
	"audiobook/internal/pipeline"
	"audiobook/internal/services/llm"
	"audiobook/internal/sessionstore"
	"audiobook/internal/station"
	"audiobook/internal/stationconfig"
	"audiobook/internal/stations"
)

type commandContext struct {
	configFlag *string
	envFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	now func() time.Time
}

func newCommandContext(configFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
		now:        time.Now,
	}
}

// loadEnv reads KEY=value pairs from the env file without overriding
// variables already set in the environment.
func (c *commandContext) loadEnv() error {
	if c.envFlag == nil {
		return nil
	}
	path := strings.TrimSpace(*c.envFlag)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) openStore(ctx context.Context) (*sessionstore.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return sessionstore.Open(ctx, cfg.Store)
}

// pipelineHandle bundles a runner with the store it owns.
type pipelineHandle struct {
	runner *pipeline.Runner
	store  *sessionstore.Store
}

func (h *pipelineHandle) Close() error {
	return h.store.Close()
}

// openPipeline builds the runner over the configured catalog. The LLM key
// is only required when requireLLM is set, so read-only commands work
// without one.
func (c *commandContext) openPipeline(ctx context.Context, prompter station.ChoicePrompter, requireLLM bool) (*pipelineHandle, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if requireLLM {
		if err := cfg.ValidateLLM(); err != nil {
			return nil, err
		}
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	loader := stationconfig.NewLoader(cfg.Paths.StationsFile)
	built, err := stations.Load(loader)
	if err != nil {
		return nil, err
	}

	store, err := sessionstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		RetryAttempts:  cfg.LLM.RetryAttempts,
	})

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		LLM:         client,
		Store:       store,
		Configs:     loader,
		Prompter:    prompter,
		Logger:      logger,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		LogLevels:   cfg.Logging.StationOverrides,
		LockDir:     cfg.Paths.LockDir,
		Now:         c.now,
	}, built...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &pipelineHandle{runner: runner, store: store}, nil
}

// newSessionID derives an id from the current UTC time.
func (c *commandContext) newSessionID() string {
	return "sess_" + c.now().UTC().Format("20060102T150405")
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
