package backend

import (
	"context"
	"fmt"
	"log/slog"

	"budgetbook/internal/storage"
	"budgetbook/internal/store/memory"
)

type constructor func(ctx context.Context, c Config, logger *slog.Logger) (*BackendResult, error)

var constructors = map[BackendType]constructor{
	SQLiteBackend: openSQLite,
	MemoryBackend: openMemory,
}

// DefaultFactory builds the backends this binary ships with.
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, c Config) (*BackendResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return constructors[c.Type](ctx, c, f.logger)
}

func openSQLite(ctx context.Context, c Config, logger *slog.Logger) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(c.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", c.SQLiteDBPath, err)
	}
	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("sqlite not reachable: %w", err)
	}
	logger.Info("SQLite backend ready", "db_path", c.SQLiteDBPath)
	return &BackendResult{Backend: repo, Cleanup: repo.Close}, nil
}

func openMemory(context.Context, Config, *slog.Logger) (*BackendResult, error) {
	return &BackendResult{Backend: memory.New()}, nil
}
