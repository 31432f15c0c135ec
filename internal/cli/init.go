// Package cli provides common process bootstrap helpers shared by the
// budgetbook, budgetbook-worker and housekeeping commands.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budgetbook/internal/backend"
	"budgetbook/internal/config"
	applog "budgetbook/internal/log"
	"budgetbook/internal/store"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger.
func SetupLogger(level slog.Level) *slog.Logger {
	logger := applog.New(applog.DefaultConfig(level))
	applog.SetDefault(logger)
	return logger.Logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err, "error_type", applog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// InitBackend brings up the process-wide backend handle within the
// configured bootstrap timeout. Exits the process on failure.
func InitBackend(ctx context.Context, logger *slog.Logger, cfg *config.Config) store.Backend {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	b, err := backend.Default().Init(ctx, backend.NewFactory(logger), backendCfg, cfg.BootstrapTimeout)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "type", backendCfg.Type)
		os.Exit(1)
	}
	return b
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			backend.Default().Reset()
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
