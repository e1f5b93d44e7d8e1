package state

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/state/migrations"
)

// runMigrations brings the schema up to the latest embedded version.
// The migrate instance is not closed: its sqlite driver would close db.
func (db *DB) runMigrations(log logr.Logger) error {
	driver, err := sqlite.WithInstance(db.conn, &sqlite.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("state: creating migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("state: creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("state: creating migrator: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.V(1).Info("state schema up to date")
	case err != nil:
		return fmt.Errorf("state: applying migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("state: reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("state: schema version %d is dirty", version)
	}
	log.Info("state schema ready", "version", version)
	return nil
}
