package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/triage-ai/constitutional/internal/audit"
)

// Write inserts records in one transaction. Rows whose id already exists are
// skipped, so a retried batch is idempotent.
func (s *Store) Write(ctx context.Context, records []*audit.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_logs (
			id, user_id, query, original_output, validated_output,
			violations, encrypted, compliance_score, is_valid,
			timestamp, tier, processing_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.UserID, r.Query, r.OriginalOutput, r.ValidatedOutput,
			r.Violations, r.Encrypted, r.ComplianceScore, r.IsValid,
			r.Timestamp, r.Tier, r.ProcessingTimeMs,
		); err != nil {
			return fmt.Errorf("Write %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	return nil
}

const auditColumns = `id, user_id, query, original_output, validated_output,
	violations, encrypted, compliance_score, is_valid, timestamp, tier, processing_time_ms`

// QueryUser returns a user's records newer than since, newest first.
func (s *Store) QueryUser(ctx context.Context, userID string, since time.Time, limit int) ([]*audit.Record, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs
		WHERE user_id = $1 AND timestamp > $2
		ORDER BY timestamp DESC`
	args := []any{userID, since}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryUser: %w", err)
	}
	defer rows.Close()
	return scanAuditRecords(rows)
}

func (s *Store) QueryRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_logs
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp`, start, end)
	if err != nil {
		return nil, fmt.Errorf("QueryRange: %w", err)
	}
	defer rows.Close()
	return scanAuditRecords(rows)
}

func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteBefore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteBefore: %w", err)
	}
	return n, nil
}

func scanAuditRecords(rows *sql.Rows) ([]*audit.Record, error) {
	var out []*audit.Record
	for rows.Next() {
		var r audit.Record
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Query, &r.OriginalOutput, &r.ValidatedOutput,
			&r.Violations, &r.Encrypted, &r.ComplianceScore, &r.IsValid,
			&r.Timestamp, &r.Tier, &r.ProcessingTimeMs,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
