package engine

import (
	"sync"
	"time"
)

// ComplianceMetrics is a cumulative, process-lifetime snapshot.
type ComplianceMetrics struct {
	TotalValidations       int64                   `json:"total_validations"`
	SuccessfulValidations  int64                   `json:"successful_validations"`
	FailedValidations      int64                   `json:"failed_validations"`
	AverageComplianceScore float64                 `json:"average_compliance_score"`
	ViolationsByType       map[ViolationType]int64 `json:"violations_by_type"`
	AverageProcessingTime  float64                 `json:"average_processing_time_ms"`
	LastUpdated            time.Time               `json:"last_updated"`
}

// metricsTracker accumulates ComplianceMetrics under a mutex.
type metricsTracker struct {
	mu         sync.Mutex
	total      int64
	passed     int64
	failed     int64
	scoreSum   float64
	latencySum float64
	byType     map[ViolationType]int64
	updated    time.Time
}

func newMetricsTracker() *metricsTracker {
	return &metricsTracker{byType: make(map[ViolationType]int64)}
}

func (m *metricsTracker) record(r *Result, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if r.IsValid {
		m.passed++
	} else {
		m.failed++
	}
	m.scoreSum += r.ComplianceScore
	m.latencySum += r.ProcessingTimeMs
	for _, v := range r.Violations {
		m.byType[v.Type]++
	}
	m.updated = now
}

func (m *metricsTracker) snapshot() ComplianceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := ComplianceMetrics{
		TotalValidations:      m.total,
		SuccessfulValidations: m.passed,
		FailedValidations:     m.failed,
		ViolationsByType:      make(map[ViolationType]int64, len(m.byType)),
		LastUpdated:           m.updated,
	}
	for k, v := range m.byType {
		out.ViolationsByType[k] = v
	}
	if m.total > 0 {
		out.AverageComplianceScore = m.scoreSum / float64(m.total)
		out.AverageProcessingTime = m.latencySum / float64(m.total)
	}
	return out
}

func (m *metricsTracker) reset(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total, m.passed, m.failed = 0, 0, 0
	m.scoreSum, m.latencySum = 0, 0
	m.byType = make(map[ViolationType]int64)
	m.updated = now
}
