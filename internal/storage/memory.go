package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/triage-ai/constitutional/internal/audit"
)

// MemorySink keeps audit records in process memory. Records are lost on
// restart; use it for development and tests.
type MemorySink struct {
	mu      sync.RWMutex
	records map[string]*audit.Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]*audit.Record)}
}

func (s *MemorySink) Write(ctx context.Context, records []*audit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		cp := *r
		s.records[r.ID] = &cp
	}
	return nil
}

func (s *MemorySink) QueryUser(ctx context.Context, userID string, since time.Time, limit int) ([]*audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []*audit.Record
	for _, r := range s.records {
		if r.UserID == userID && r.Timestamp.After(since) {
			cp := *r
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySink) QueryRange(ctx context.Context, start, end time.Time) ([]*audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Record
	for _, r := range s.records {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemorySink) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.records {
		if !r.Timestamp.After(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemorySink) Close() error { return nil }
