// Package cli provides common initialization utilities shared by the
// stock-etl, stock-api and stock-sheets-worker binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"stockhistory/internal/amqp"
	"stockhistory/internal/config"
	applog "stockhistory/internal/log"
	"stockhistory/internal/storage"
)

// DefaultEnvFile is read when ENV_FILE is unset.
const DefaultEnvFile = ".env"

// SetupLogger builds the process logger at the given level and installs it
// as the slog default. An unknown level falls back to info.
func SetupLogger(level string) *applog.Logger {
	cfg := applog.DefaultConfig()
	parsed, err := applog.ParseLevel(level)
	if err == nil {
		cfg.Level = parsed
	}
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", applog.FieldError, err.Error())
	}
	return logger
}

// LoadEnvFile loads ENV_FILE (default .env) into the environment without
// overriding variables that are already set. A missing file is ignored.
func LoadEnvFile() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadAndValidateConfig loads configuration and runs Validate plus any
// binary-specific checks.
func LoadAndValidateConfig(checks ...func(*config.Config) error) (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// OpenRunJournal opens the run journal, or returns nil when RUNS_DB_PATH is
// empty.
func OpenRunJournal(cfg *config.Config, logger *applog.Logger) (*storage.SQLiteRepository, error) {
	if cfg.RunsDBPath == "" {
		logger.Info("Run journal disabled, concurrent runs are not excluded")
		return nil, nil
	}
	repo, err := storage.NewSQLiteRepository(cfg.RunsDBPath, cfg.RunStaleAfter)
	if err != nil {
		return nil, fmt.Errorf("open run journal %s: %w", cfg.RunsDBPath, err)
	}
	return repo, nil
}

// OpenAMQP dials the broker, or returns nil when AMQP_URL is empty. queue
// falls back to defaultQueue when AMQP_QUEUE is unset; pass an empty
// defaultQueue for a publish-only client.
func OpenAMQP(cfg *config.Config, defaultQueue string, logger *applog.Logger) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil, nil
	}
	queue := defaultQueue
	if queue != "" && cfg.AMQPQueue != "" {
		queue = cfg.AMQPQueue
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, queue)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP: %w", err)
	}
	logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", queue)
	return client, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
