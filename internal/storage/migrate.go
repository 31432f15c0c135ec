package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the database at dbPath up to the latest schema and
// returns the version it ended on. The migrator gets its own connection
// because closing the migrator closes the connection it was handed.
func RunMigrations(dbPath string) (uint, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open migration connection: %w", err)
	}
	defer conn.Close()

	m, err := newMigrator(conn)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

func newMigrator(conn *sql.DB) (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "sqlite", driver)
}
