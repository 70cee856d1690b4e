// Package postgres stores portfolios and the profile registry in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"
)

// Executor is implemented by both *sqlx.DB and *sqlx.Tx.
type Executor interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS portfolios (
		key           TEXT PRIMARY KEY,
		balance       NUMERIC NOT NULL CHECK (balance >= 0),
		holdings      JSONB NOT NULL DEFAULT '[]',
		trade_history JSONB NOT NULL DEFAULT '[]',
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		email      TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		pin_hash   TEXT NOT NULL,
		cards      JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS active_profile (
		id    SMALLINT PRIMARY KEY CHECK (id = 1),
		email TEXT REFERENCES profiles (email) ON DELETE SET NULL
	)`,
}

// Migrate creates the tables used by this package if they do not exist.
func Migrate(ctx context.Context, q Executor) error {
	for _, stmt := range schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply postgres schema")
		}
	}
	return nil
}
