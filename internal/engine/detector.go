package engine

import (
	"context"
	"time"
)

// Detector names used in logs, metrics, and degraded lists.
const (
	DetectorUbuntu  = "ubuntu"
	DetectorBias    = "bias"
	DetectorPrivacy = "privacy"
	DetectorHarm    = "harm"
)

// UbuntuScorer scores text on the pro-social principles.
// Implementations must respect ctx deadlines and return quickly.
type UbuntuScorer interface {
	Validate(ctx context.Context, text string) (*UbuntuValidationResult, error)
}

// BiasAnalyzer finds demographic-bias spans and masks them.
type BiasAnalyzer interface {
	DetectBias(ctx context.Context, text string) (*BiasReport, error)

	// MitigateBias rewrites every span in scores. Spans are byte offsets into text.
	MitigateBias(text string, scores []BiasScore) string
}

// PrivacyScanner finds and redacts personal data.
type PrivacyScanner interface {
	FilterPII(ctx context.Context, text string) (*FilterResult, error)
}

// HarmAssessor estimates harm risk and builds the replacement message.
type HarmAssessor interface {
	AssessHarm(ctx context.Context, query, output string) (*HarmAssessment, error)
	GenerateSafeResponse(query string, assessment *HarmAssessment) string
}

// DetectorSet bundles the four detectors an Orchestrator composes.
type DetectorSet struct {
	Ubuntu  UbuntuScorer
	Bias    BiasAnalyzer
	Privacy PrivacyScanner
	Harm    HarmAssessor
}

// AuditTrail persists validation records. Log must never block the caller.
type AuditTrail interface {
	Log(entry AuditLog)
	LogsForUser(ctx context.Context, userID string, opts LogQuery) ([]AuditLog, error)
	SetRetention(days int)
	Flush(ctx context.Context) error
	Close() error
}

// LogQuery narrows an audit read.
type LogQuery struct {
	Limit int
	Since time.Time
}

// Observer receives per-call measurements. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveDetector(name string, elapsed time.Duration, degraded bool)
	ObserveResult(result *Result, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveDetector(string, time.Duration, bool) {}
func (nopObserver) ObserveResult(*Result, time.Duration)        {}
