package postgres

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationsFS exposes the embedded schema migrations
func MigrationsFS() fs.FS {
	return migrations
}

// Migrate applies all pending up migrations. A database left dirty by an
// interrupted run is reported instead of being retried.
func (db *DB) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	defer src.Close()

	driver, err := mpostgres.WithInstance(db.DB, &mpostgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d, manual intervention required", version)
	}

	err = mig.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		db.logger.Info("database schema up to date", zap.Uint("version", version))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ = mig.Version()
	db.logger.Info("database migrations applied", zap.Uint("version", version))
	return nil
}
