package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"crawlerd/internal/structures"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DB is a *sql.DB that knows its placeholder dialect.
type DB struct {
	*sql.DB
	Driver string
}

func OpenDatabase(conf *structures.Config) (*DB, error) {
	db, err := Open(conf.Storage.Driver, conf.Database.DSN)
	if err != nil {
		return nil, err
	}
	if db.Driver == DriverPostgres {
		if conf.Database.MaxOpenConns > 0 {
			db.SetMaxOpenConns(conf.Database.MaxOpenConns)
		}
		if conf.Database.MaxIdleConns > 0 {
			db.SetMaxIdleConns(conf.Database.MaxIdleConns)
		}
	}
	if conf.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(conf.Database.ConnMaxLifetime)
	}

	if conf.Database.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Open connects and pings. SQLite gets a single connection so that writers
// queue in the pool instead of failing with SQLITE_BUSY.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &DB{DB: sqlDB, Driver: driver}, nil
}

// Rebind rewrites '?' placeholders to $n for postgres.
func (d *DB) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS workspaces_owner_idx ON workspaces (owner_id)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		key_hash TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		domains TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS crawler_events (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		workspace_id TEXT,
		domain TEXT NOT NULL,
		path TEXT NOT NULL,
		crawler_name TEXT NOT NULL,
		crawler_company TEXT NOT NULL,
		crawler_category TEXT NOT NULL,
		user_agent TEXT NOT NULL,
		status_code INTEGER,
		response_time_ms INTEGER,
		country TEXT,
		metadata TEXT,
		occurred_at TIMESTAMP NOT NULL,
		received_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS crawler_events_owner_domain_idx ON crawler_events (owner_id, domain, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS crawler_daily_stats (
		owner_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		day TEXT NOT NULL,
		crawler_name TEXT NOT NULL,
		crawler_company TEXT NOT NULL,
		crawler_category TEXT NOT NULL,
		visit_count BIGINT NOT NULL DEFAULT 0,
		unique_path_count BIGINT NOT NULL DEFAULT 0,
		response_time_sum BIGINT NOT NULL DEFAULT 0,
		response_time_samples BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (owner_id, domain, day, crawler_name)
	)`,
	`CREATE TABLE IF NOT EXISTS crawler_daily_paths (
		owner_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		day TEXT NOT NULL,
		crawler_name TEXT NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (owner_id, domain, day, crawler_name, path)
	)`,
	`CREATE TABLE IF NOT EXISTS crawler_daily_countries (
		owner_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		day TEXT NOT NULL,
		crawler_name TEXT NOT NULL,
		country TEXT NOT NULL,
		visits BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (owner_id, domain, day, crawler_name, country)
	)`,
}

// Migrate creates the tables crawlerd reads and writes. Statements are
// idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// inTx runs fn in a transaction and commits when it returns nil.
func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
