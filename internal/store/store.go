package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
)

// Store provides access to PostgreSQL for audit records and the persisted
// engine configuration.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL through pgx, pings, and ensures the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	s := NewStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}
	return s, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			query              TEXT NOT NULL,
			original_output    TEXT NOT NULL,
			validated_output   TEXT NOT NULL,
			violations         BYTEA,
			encrypted          BOOLEAN NOT NULL DEFAULT false,
			compliance_score   DOUBLE PRECISION NOT NULL,
			is_valid           BOOLEAN NOT NULL,
			timestamp          TIMESTAMPTZ NOT NULL,
			tier               TEXT NOT NULL,
			processing_time_ms BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_user_ts ON audit_logs (user_id, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_ts ON audit_logs (timestamp);

		CREATE TABLE IF NOT EXISTS engine_config (
			name       TEXT PRIMARY KEY,
			config     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	if err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
