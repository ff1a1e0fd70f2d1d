package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/audit"
)

const clickhouseOpTimeout = 5 * time.Second

// ClickHouseSink stores audit records in the audit_logs table. The table is a
// ReplacingMergeTree keyed on id, so a retried batch collapses on merge and
// reads use FINAL.
type ClickHouseSink struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseSink connects, pings, and ensures the table exists. TLS is
// enabled through the DSN (?secure=true).
func NewClickHouseSink(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseSink: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseSink: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("NewClickHouseSink: %w", err)
	}

	s := &ClickHouseSink{conn: conn, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewClickHouseSink: %w", err)
	}
	return s, nil
}

func (s *ClickHouseSink) ensureSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id String,
			user_id String,
			query String,
			original_output String,
			validated_output String,
			violations String,
			encrypted UInt8,
			compliance_score Float64,
			is_valid UInt8,
			timestamp DateTime64(9, 'UTC'),
			tier LowCardinality(String),
			processing_time_ms Int64
		)
		ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (user_id, timestamp, id)
	`)
}

// Write batch-inserts records.
func (s *ClickHouseSink) Write(ctx context.Context, records []*audit.Record) error {
	ctx, cancel := context.WithTimeout(ctx, clickhouseOpTimeout)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO audit_logs (
			id, user_id, query, original_output, validated_output,
			violations, encrypted, compliance_score, is_valid,
			timestamp, tier, processing_time_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("Write prepare batch: %w", err)
	}

	for _, r := range records {
		if err := batch.Append(
			r.ID,
			r.UserID,
			r.Query,
			r.OriginalOutput,
			r.ValidatedOutput,
			string(r.Violations),
			boolToUint8(r.Encrypted),
			r.ComplianceScore,
			boolToUint8(r.IsValid),
			r.Timestamp,
			r.Tier,
			r.ProcessingTimeMs,
		); err != nil {
			// one bad row should not sink the batch
			s.logger.Error("clickhouse append audit record failed",
				zap.String("id", r.ID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("Write send batch of %d: %w", len(records), err)
	}
	return nil
}

const clickhouseColumns = "id, user_id, query, original_output, validated_output, " +
	"violations, encrypted, compliance_score, is_valid, timestamp, tier, processing_time_ms"

func (s *ClickHouseSink) QueryUser(ctx context.Context, userID string, since time.Time, limit int) ([]*audit.Record, error) {
	query := "SELECT " + clickhouseColumns + " FROM audit_logs FINAL " +
		"WHERE user_id = @user_id AND timestamp > @since " +
		"ORDER BY timestamp DESC"
	args := []any{
		clickhouse.Named("user_id", userID),
		clickhouse.Named("since", since),
	}
	if limit > 0 {
		query += " LIMIT @limit"
		args = append(args, clickhouse.Named("limit", uint32(limit)))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryUser: %w", err)
	}
	defer rows.Close()
	return scanClickHouseRecords(rows)
}

func (s *ClickHouseSink) QueryRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT "+clickhouseColumns+" FROM audit_logs FINAL "+
			"WHERE timestamp >= @start_time AND timestamp <= @end_time "+
			"ORDER BY timestamp",
		clickhouse.Named("start_time", start),
		clickhouse.Named("end_time", end),
	)
	if err != nil {
		return nil, fmt.Errorf("QueryRange: %w", err)
	}
	defer rows.Close()
	return scanClickHouseRecords(rows)
}

// DeleteBefore counts the expired rows, then issues a mutation to remove
// them. The mutation is applied asynchronously by ClickHouse.
func (s *ClickHouseSink) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx,
		"SELECT count() FROM audit_logs FINAL WHERE timestamp <= @cutoff",
		clickhouse.Named("cutoff", cutoff),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("DeleteBefore count: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.conn.Exec(ctx,
		"ALTER TABLE audit_logs DELETE WHERE timestamp <= @cutoff",
		clickhouse.Named("cutoff", cutoff),
	); err != nil {
		return 0, fmt.Errorf("DeleteBefore: %w", err)
	}
	return int64(n), nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}

func scanClickHouseRecords(rows driver.Rows) ([]*audit.Record, error) {
	var out []*audit.Record
	for rows.Next() {
		var (
			r          audit.Record
			violations string
			encrypted  uint8
			isValid    uint8
		)
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Query, &r.OriginalOutput, &r.ValidatedOutput,
			&violations, &encrypted, &r.ComplianceScore, &isValid,
			&r.Timestamp, &r.Tier, &r.ProcessingTimeMs,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Violations = []byte(violations)
		r.Encrypted = encrypted == 1
		r.IsValid = isValid == 1
		out = append(out, &r)
	}
	return out, rows.Err()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
