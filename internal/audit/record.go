package audit

import (
	"context"
	"time"
)

// Record is the persisted form of one validation verdict.
// Violations holds the JSON-encoded violation list, or nonce||ciphertext
// when Encrypted is set. Query and outputs are never encrypted.
type Record struct {
	ID               string
	UserID           string
	Query            string
	OriginalOutput   string
	ValidatedOutput  string
	Violations       []byte
	Encrypted        bool
	ComplianceScore  float64
	IsValid          bool
	Timestamp        time.Time
	Tier             string
	ProcessingTimeMs int64
}

// Sink is durable storage for audit records. Write must tolerate records it
// has already stored: a failed flush is retried with the same ids.
type Sink interface {
	Write(ctx context.Context, records []*Record) error
	// QueryUser returns a user's records newer than since, newest first.
	// limit <= 0 means no limit.
	QueryUser(ctx context.Context, userID string, since time.Time, limit int) ([]*Record, error)
	// QueryRange returns records with start <= timestamp <= end.
	QueryRange(ctx context.Context, start, end time.Time) ([]*Record, error)
	// DeleteBefore removes records at or before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
