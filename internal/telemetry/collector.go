// Package telemetry exports engine measurements as Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triage-ai/constitutional/internal/engine"
)

const namespace = "constitutional"

// Collector implements engine.Observer on top of a Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	validations      *prometheus.CounterVec
	validationTime   prometheus.Histogram
	complianceScore  prometheus.Histogram
	violations       *prometheus.CounterVec
	detectorTime     *prometheus.HistogramVec
	detectorDegraded *prometheus.CounterVec
}

// NewCollector registers the engine metrics on registry. A nil registry gets
// a fresh one with the Go and process collectors attached.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validation calls by outcome.",
		}, []string{"outcome"}),
		validationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "End-to-end validation latency.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}),
		complianceScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compliance_score",
			Help:      "Distribution of compliance scores.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Violations by type and severity.",
		}, []string{"type", "severity"}),
		detectorTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_duration_seconds",
			Help:      "Per-detector latency.",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .5, 1, 5},
		}, []string{"detector"}),
		detectorDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_degraded_total",
			Help:      "Detector runs that timed out, failed, or panicked.",
		}, []string{"detector"}),
	}

	registry.MustRegister(
		c.validations,
		c.validationTime,
		c.complianceScore,
		c.violations,
		c.detectorTime,
		c.detectorDegraded,
	)
	return c
}

func (c *Collector) ObserveDetector(name string, elapsed time.Duration, degraded bool) {
	c.detectorTime.WithLabelValues(name).Observe(elapsed.Seconds())
	if degraded {
		c.detectorDegraded.WithLabelValues(name).Inc()
	}
}

func (c *Collector) ObserveResult(result *engine.Result, elapsed time.Duration) {
	if result == nil {
		return
	}
	outcome := "invalid"
	if result.IsValid {
		outcome = "valid"
	}
	c.validations.WithLabelValues(outcome).Inc()
	c.validationTime.Observe(elapsed.Seconds())
	c.complianceScore.Observe(result.ComplianceScore)
	for _, v := range result.Violations {
		c.violations.WithLabelValues(string(v.Type), v.Severity.String()).Inc()
	}
}

// Registry exposes the underlying registry for extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
