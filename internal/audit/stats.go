package audit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/triage-ai/constitutional/internal/engine"
)

// ComplianceStats aggregates audit records over a time range.
type ComplianceStats struct {
	Start                time.Time                      `json:"start"`
	End                  time.Time                      `json:"end"`
	Total                int64                          `json:"total"`
	Passed               int64                          `json:"passed"`
	Failed               int64                          `json:"failed"`
	PassRate             float64                        `json:"pass_rate"`
	AverageScore         float64                        `json:"average_score"`
	AverageProcessingMs  float64                        `json:"average_processing_ms"`
	ViolationsByType     map[engine.ViolationType]int64 `json:"violations_by_type"`
	ViolationsBySeverity map[string]int64               `json:"violations_by_severity"`
	ByTier               map[string]int64               `json:"by_tier"`
	UnreadableViolations int64                          `json:"unreadable_violations,omitempty"`
}

// GetComplianceStats summarizes stored and buffered records with
// start <= timestamp <= end.
func (l *Logger) GetComplianceStats(ctx context.Context, start, end time.Time) (*ComplianceStats, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("GetComplianceStats: end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	l.flushMu.Lock()
	stored, err := l.sink.QueryRange(ctx, start, end)
	if err != nil {
		l.flushMu.Unlock()
		return nil, fmt.Errorf("GetComplianceStats: %w", err)
	}
	l.mu.Lock()
	var pending []*Record
	for _, r := range l.buffer {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			pending = append(pending, r)
		}
	}
	l.mu.Unlock()
	l.flushMu.Unlock()

	stats := &ComplianceStats{
		Start:                start,
		End:                  end,
		ViolationsByType:     make(map[engine.ViolationType]int64),
		ViolationsBySeverity: make(map[string]int64),
		ByTier:               make(map[string]int64),
	}

	var scoreSum float64
	var latencySum int64
	for _, r := range mergeRecords(stored, pending) {
		stats.Total++
		if r.IsValid {
			stats.Passed++
		} else {
			stats.Failed++
		}
		scoreSum += r.ComplianceScore
		latencySum += r.ProcessingTimeMs
		stats.ByTier[r.Tier]++

		vs := l.decodeViolations(r)
		if vs == nil && len(r.Violations) > 0 {
			stats.UnreadableViolations++
		}
		for _, v := range vs {
			stats.ViolationsByType[v.Type]++
			stats.ViolationsBySeverity[v.Severity.String()]++
		}
	}

	if stats.Total > 0 {
		n := float64(stats.Total)
		stats.PassRate = round2(float64(stats.Passed) / n)
		stats.AverageScore = round2(scoreSum / n)
		stats.AverageProcessingMs = round2(float64(latencySum) / n)
	}
	return stats, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
