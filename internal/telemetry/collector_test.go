package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/triage-ai/constitutional/internal/engine"
)

var _ engine.Observer = (*Collector)(nil)

func TestCollector_ObserveResult(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveResult(&engine.Result{IsValid: true, ComplianceScore: 92}, 3*time.Millisecond)
	c.ObserveResult(&engine.Result{
		IsValid:         false,
		ComplianceScore: 41,
		Violations: []engine.Violation{
			{Type: engine.ViolationPrivacy, Severity: engine.SeverityMedium},
			{Type: engine.ViolationPrivacy, Severity: engine.SeverityMedium},
			{Type: engine.ViolationHarm, Severity: engine.SeverityHigh},
		},
	}, 8*time.Millisecond)
	c.ObserveResult(nil, time.Millisecond)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"valid", testutil.ToFloat64(c.validations.WithLabelValues("valid")), 1},
		{"invalid", testutil.ToFloat64(c.validations.WithLabelValues("invalid")), 1},
		{"privacy medium", testutil.ToFloat64(c.violations.WithLabelValues("privacy", "medium")), 2},
		{"harm high", testutil.ToFloat64(c.violations.WithLabelValues("harm", "high")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(c.complianceScore); n != 1 {
		t.Errorf("compliance score series = %d, want 1", n)
	}
}

func TestCollector_ObserveDetector(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveDetector("ubuntu", time.Millisecond, false)
	c.ObserveDetector("bias", 5*time.Second, true)
	c.ObserveDetector("bias", time.Millisecond, false)

	if got := testutil.ToFloat64(c.detectorDegraded.WithLabelValues("bias")); got != 1 {
		t.Errorf("bias degraded = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.detectorDegraded); n != 1 {
		t.Errorf("degraded series = %d, want 1 (ubuntu never degraded)", n)
	}
	if n := testutil.CollectAndCount(c.detectorTime); n != 2 {
		t.Errorf("detector latency series = %d, want 2", n)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveResult(&engine.Result{IsValid: true, ComplianceScore: 88}, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`constitutional_validations_total{outcome="valid"} 1`,
		"constitutional_compliance_score_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func BenchmarkCollector_ObserveResult(b *testing.B) {
	c := NewCollector(prometheus.NewRegistry())
	r := &engine.Result{
		ComplianceScore: 70,
		Violations:      []engine.Violation{{Type: engine.ViolationBias, Severity: engine.SeverityLow}},
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.ObserveResult(r, time.Millisecond)
	}
}
