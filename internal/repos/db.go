package repos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenDB opens a sqlite database, migrates it and seeds the demo data.
func OpenDB(dsn string) (*sqlx.DB, error) {
	return Open(context.Background(), DriverSQLite, dsn)
}

// Open connects to the configured backend, applies migrations and seeds
// the menu and demo users. Seeding is idempotent.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		db, err = openSQLite(dsn)
	case DriverPostgres:
		db, err = openPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := seedMenu(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed menu: %w", err)
	}
	if err := seedUsers(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed users: %w", err)
	}
	return db, nil
}

func openSQLite(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, err
	}
	// each connection to :memory: is its own database
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// sqliteDSN turns on foreign keys for every pooled connection and stores
// timestamps in a sortable text format.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

func openPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"), nil
}
