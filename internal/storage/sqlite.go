package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/triage-ai/constitutional/internal/audit"
)

// SQLiteSink stores audit records in a local SQLite file. Suitable for
// single-instance deployments that need records to survive restarts.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and ensures the schema.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("NewSQLiteSink: path cannot be empty")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteSink: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteSink{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewSQLiteSink: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		query TEXT NOT NULL,
		original_output TEXT NOT NULL,
		validated_output TEXT NOT NULL,
		violations BLOB,
		encrypted INTEGER NOT NULL DEFAULT 0,
		compliance_score REAL NOT NULL,
		is_valid INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		tier TEXT NOT NULL,
		processing_time_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_ts ON audit_logs(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_ts ON audit_logs(timestamp);
	`)
	return err
}

// Write inserts records in one transaction. Existing ids are replaced, so a
// retried batch does not duplicate rows.
func (s *SQLiteSink) Write(ctx context.Context, records []*audit.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO audit_logs (
			id, user_id, query, original_output, validated_output,
			violations, encrypted, compliance_score, is_valid,
			timestamp, tier, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.UserID, r.Query, r.OriginalOutput, r.ValidatedOutput,
			r.Violations, boolToInt(r.Encrypted), r.ComplianceScore, boolToInt(r.IsValid),
			r.Timestamp.UnixNano(), r.Tier, r.ProcessingTimeMs,
		); err != nil {
			return fmt.Errorf("Write %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	return nil
}

const sqliteColumns = `id, user_id, query, original_output, validated_output,
	violations, encrypted, compliance_score, is_valid, timestamp, tier, processing_time_ms`

func (s *SQLiteSink) QueryUser(ctx context.Context, userID string, since time.Time, limit int) ([]*audit.Record, error) {
	query := `SELECT ` + sqliteColumns + ` FROM audit_logs
		WHERE user_id = ? AND timestamp > ?
		ORDER BY timestamp DESC`
	args := []any{userID, since.UnixNano()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryUser: %w", err)
	}
	defer rows.Close()
	return scanSQLiteRecords(rows)
}

func (s *SQLiteSink) QueryRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM audit_logs
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp`, start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("QueryRange: %w", err)
	}
	defer rows.Close()
	return scanSQLiteRecords(rows)
}

func (s *SQLiteSink) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp <= ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("DeleteBefore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteBefore: %w", err)
	}
	return n, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func scanSQLiteRecords(rows *sql.Rows) ([]*audit.Record, error) {
	var out []*audit.Record
	for rows.Next() {
		var (
			r         audit.Record
			encrypted int
			isValid   int
			ts        int64
		)
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Query, &r.OriginalOutput, &r.ValidatedOutput,
			&r.Violations, &encrypted, &r.ComplianceScore, &isValid,
			&ts, &r.Tier, &r.ProcessingTimeMs,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Encrypted = encrypted != 0
		r.IsValid = isValid != 0
		r.Timestamp = time.Unix(0, ts)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
