// Package database opens the PostgreSQL and Redis connections the API
// runs on.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	_ "github.com/lib/pq"
	"github.com/samber/oops"

	"blogapi/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Open connects to PostgreSQL with the configured pool limits and checks
// the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, oops.In("database").Wrapf(err, "open postgres")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return oops.In("database").Wrapf(err, "ping postgres")
	}
	return nil
}

// ApplySchema creates any missing tables. Every statement is idempotent.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return oops.In("database").Wrapf(err, "apply schema")
	}
	return nil
}
