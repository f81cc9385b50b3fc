// Package sqlite is the persistent store: users, permissions, server
// config, and chat state in a single SQLite database, schema managed by
// embedded goose migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/zquestz/nexus/adapter/outbound/storage/sqlite/migrations"
)

// DB wraps the SQLite handle shared by the repositories.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the database at path, applies pragmas, and runs
// pending migrations. A migration failure is fatal to startup.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	s, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// The driver serializes writes anyway; one connection sidesteps
	// SQLITE_BUSY between our own statements.
	s.SetMaxOpenConns(1)
	s.SetMaxIdleConns(1)
	s.SetConnMaxLifetime(0)

	db := &DB{sql: s}
	if err := db.ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := db.setPragmas(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := Migrate(ctx, s); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded migrations in lexicographic order. Safe to
// run repeatedly; applied versions are recorded and skipped.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (d *DB) Close() error {
	return d.sql.Close()
}

// SQL exposes the raw handle for the repositories and tests.
func (d *DB) SQL() *sql.DB {
	return d.sql
}

func (d *DB) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return d.sql.PingContext(ctx)
}

func (d *DB) setPragmas(ctx context.Context) error {
	// WAL keeps reads concurrent with the single writer.
	if _, err := d.sql.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return err
	}
	_, err := d.sql.ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	return err
}
