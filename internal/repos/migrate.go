package repos

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded migrations for the database's dialect.
// The migrator is never closed: both drivers close the *sql.DB they were
// built on, and db stays in use after migrating.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	var (
		dir  string
		name string
		drv  database.Driver
		err  error
	)
	if isPostgres(db) {
		conn, cerr := db.Conn(ctx)
		if cerr != nil {
			return fmt.Errorf("acquire conn: %w", cerr)
		}
		defer conn.Close()
		dir, name = "migrations/postgres", "postgres"
		drv, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
	} else {
		dir, name = "migrations/sqlite", "sqlite"
		drv, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("init db driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("init iofs: %w", err)
	}
	defer src.Close()

	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func isPostgres(db *sqlx.DB) bool {
	return db.DriverName() == "pgx" || db.DriverName() == "postgres"
}
