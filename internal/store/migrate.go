package store

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationFS embed.FS

// MigrationsTable records the engine's schema version, apart from any other
// migration history in the shared database.
const MigrationsTable = "badge_schema_migrations"

// MigratePostgres applies the embedded Postgres migrations to databaseURL.
func MigratePostgres(databaseURL string, logger *zap.Logger) error {
	target, err := migrationURL(databaseURL)
	if err != nil {
		return err
	}
	return runMigrations("migrations/postgres", target, logger)
}

// MigrateSQLite applies the embedded SQLite migrations to the database file at path.
func MigrateSQLite(path string, logger *zap.Logger) error {
	return runMigrations("migrations/sqlite", "sqlite://"+path, logger)
}

func runMigrations(dir, databaseURL string, logger *zap.Logger) error {
	src, err := iofs.New(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	currentVersion, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		logger.Warn("Database is in dirty state", zap.Uint("version", currentVersion))
		return fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := migrator.Version()
	if err != nil {
		return fmt.Errorf("failed to get new migration version: %w", err)
	}

	logger.Info("Migrations completed",
		zap.String("source", dir),
		zap.Uint("from_version", currentVersion),
		zap.Uint("to_version", newVersion),
	)
	return nil
}

func pgx5URL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func migrationURL(databaseURL string) (string, error) {
	u, err := url.Parse(pgx5URL(databaseURL))
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("x-migrations-table", MigrationsTable)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
