// Package backend selects, builds and owns the persistence backend of a
// process.
package backend

import (
	"context"
	"fmt"

	"budgetbook/internal/config"
	"budgetbook/internal/store"
)

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool {
	_, ok := constructors[bt]
	return ok
}

// Config is the slice of the application config a backend needs.
type Config struct {
	Type         BackendType
	SQLiteDBPath string
}

// FromAppConfig picks the backend settings out of the application config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	c := Config{Type: BackendType(app.DataBackend), SQLiteDBPath: app.SQLiteDBPath}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %q", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("sqlite backend needs SQLITE_DB_PATH")
	}
	return nil
}

// BackendResult is a ready backend plus whatever releases it. Cleanup may
// be nil.
type BackendResult struct {
	Backend store.Backend
	Cleanup func() error
}

// Factory builds a backend for a validated Config.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
