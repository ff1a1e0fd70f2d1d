package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("constitutional.engine")

// FallbackOutput is released when there is nothing safe to release.
const FallbackOutput = "I'm sorry, but I wasn't able to produce a response for this request. Please try rephrasing your question."

var errNilResult = errors.New("detector returned no result")

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAuditTrail attaches the audit trail used by LogValidation and GetAuditLogs.
func WithAuditTrail(t AuditTrail) Option {
	return func(o *Orchestrator) { o.trail = t }
}

// WithObserver attaches a metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// Orchestrator runs the four detectors against candidate text and composes
// their findings into one Result.
type Orchestrator struct {
	detectors DetectorSet
	cfg       atomic.Pointer[Config]
	cfgMu     sync.Mutex // serializes writers; readers use cfg.Load
	trail     AuditTrail
	observer  Observer
	metrics   *metricsTracker
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator validates cfg and wires the detectors. All four detectors
// are required; disable them through Config instead of passing nil.
func NewOrchestrator(set DetectorSet, cfg Config, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if set.Ubuntu == nil || set.Bias == nil || set.Privacy == nil || set.Harm == nil {
		return nil, fmt.Errorf("NewOrchestrator: %w: all four detectors are required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("NewOrchestrator: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		detectors: set,
		observer:  nopObserver{},
		metrics:   newMetricsTracker(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cfg.Store(&cfg)
	if o.trail != nil {
		o.trail.SetRetention(cfg.AuditLogRetention)
	}
	return o, nil
}

// detectorTask is one enabled detector bound to this call's input.
type detectorTask struct {
	name string
	run  func(ctx context.Context) (func(*findings), error)
}

// detectorOutput holds a single detector's contribution alongside its metadata.
type detectorOutput struct {
	name    string
	apply   func(*findings)
	err     error
	elapsed time.Duration
}

// ValidateOutput screens output (generated for query) and returns the verdict.
// It never fails: malformed input, detector errors, and timeouts all resolve to
// a well-formed Result.
func (o *Orchestrator) ValidateOutput(ctx context.Context, query, output string, rc *RequestContext) (result *Result) {
	start := time.Now()
	cfg := o.cfg.Load()

	ctx, span := tracer.Start(ctx, "Orchestrator.ValidateOutput", trace.WithAttributes(
		attribute.Int("output.bytes", len(output)),
		attribute.Bool("strict_mode", cfg.StrictMode),
		attribute.Bool("parallel", cfg.ParallelValidation),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("validation panicked, returning fallback result", zap.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
			result = o.malfunctionResult(output, rc)
		}
		elapsed := time.Since(start)
		result.ProcessingTimeMs = float64(elapsed.Microseconds()) / 1000
		o.metrics.record(result, o.now())
		o.observer.ObserveResult(result, elapsed)
		span.SetAttributes(
			attribute.Bool("valid", result.IsValid),
			attribute.Float64("compliance_score", result.ComplianceScore),
			attribute.Int("violations", len(result.Violations)),
		)
	}()

	if strings.TrimSpace(output) == "" {
		return o.emptyOutputResult(output, rc)
	}

	f := o.runDetectors(ctx, cfg, query, output)
	return o.compose(cfg, query, output, f, rc)
}

func (o *Orchestrator) tasks(cfg *Config, query, output string) []detectorTask {
	var tasks []detectorTask
	if cfg.UbuntuEnabled {
		tasks = append(tasks, detectorTask{name: DetectorUbuntu, run: func(ctx context.Context) (func(*findings), error) {
			r, err := o.detectors.Ubuntu.Validate(ctx, output)
			if err == nil && r == nil {
				err = errNilResult
			}
			return func(f *findings) { f.ubuntu = r }, err
		}})
	}
	if cfg.BiasDetectionEnabled {
		tasks = append(tasks, detectorTask{name: DetectorBias, run: func(ctx context.Context) (func(*findings), error) {
			r, err := o.detectors.Bias.DetectBias(ctx, output)
			if err == nil && r == nil {
				err = errNilResult
			}
			return func(f *findings) { f.bias = r }, err
		}})
	}
	if cfg.PrivacyFilterEnabled {
		tasks = append(tasks, detectorTask{name: DetectorPrivacy, run: func(ctx context.Context) (func(*findings), error) {
			r, err := o.detectors.Privacy.FilterPII(ctx, output)
			if err == nil && r == nil {
				err = errNilResult
			}
			return func(f *findings) { f.privacy = r }, err
		}})
	}
	if cfg.HarmPreventionEnabled {
		tasks = append(tasks, detectorTask{name: DetectorHarm, run: func(ctx context.Context) (func(*findings), error) {
			r, err := o.detectors.Harm.AssessHarm(ctx, query, output)
			if err == nil && r == nil {
				err = errNilResult
			}
			return func(f *findings) { f.harm = r }, err
		}})
	}
	return tasks
}

// runDetectors executes every enabled detector, concurrently or in fixed order,
// and returns the merged findings. Disabled and degraded detectors are filled
// with their neutral result.
func (o *Orchestrator) runDetectors(ctx context.Context, cfg *Config, query, output string) *findings {
	tasks := o.tasks(cfg, query, output)
	timeout := cfg.ValidationTimeout()

	var outs []detectorOutput
	if cfg.ParallelValidation {
		outs = o.collect(ctx, tasks, timeout)
	} else {
		for _, t := range tasks {
			outs = append(outs, o.collect(ctx, []detectorTask{t}, timeout)...)
		}
	}

	f := &findings{}
	completed := make(map[string]bool, len(tasks))
	for _, out := range outs {
		if out.err != nil {
			o.logger.Warn("detector error, degrading to neutral result",
				zap.String("detector", out.name),
				zap.Error(out.err),
			)
			o.observer.ObserveDetector(out.name, out.elapsed, true)
			continue
		}
		out.apply(f)
		completed[out.name] = true
		o.observer.ObserveDetector(out.name, out.elapsed, false)
	}
	for _, t := range tasks {
		if completed[t.name] {
			continue
		}
		f.degraded = append(f.degraded, t.name)
		if !hasOutput(outs, t.name) {
			o.observer.ObserveDetector(t.name, timeout, true)
		}
	}

	if f.ubuntu == nil {
		f.ubuntu = neutralUbuntu()
	}
	if f.bias == nil {
		f.bias = neutralBias()
	}
	if f.privacy == nil {
		f.privacy = neutralPrivacy(output)
	}
	if f.harm == nil {
		f.harm = neutralHarm()
	}
	return f
}

// collect runs tasks concurrently under one deadline and returns whatever
// finished in time.
//
// Each goroutine sends through a buffered channel sized for every task, so
// late finishers never block and the channel is collected once unreferenced.
func (o *Orchestrator) collect(ctx context.Context, tasks []detectorTask, timeout time.Duration) []detectorOutput {
	if len(tasks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan detectorOutput, len(tasks))
	for _, t := range tasks {
		go func(t detectorTask) {
			began := time.Now()
			dctx, span := tracer.Start(ctx, "detector."+t.name)
			out := detectorOutput{name: t.name}
			defer func() {
				if r := recover(); r != nil {
					out.apply = nil
					out.err = fmt.Errorf("detector panic: %v", r)
				}
				if out.err != nil {
					span.RecordError(out.err)
					span.SetStatus(codes.Error, out.err.Error())
				}
				span.End()
				out.elapsed = time.Since(began)
				ch <- out
			}()
			out.apply, out.err = t.run(dctx)
		}(t)
	}

	collected := make([]detectorOutput, 0, len(tasks))
	remaining := len(tasks)
	for remaining > 0 {
		select {
		case out := <-ch:
			collected = append(collected, out)
			remaining--
		case <-ctx.Done():
			o.logger.Warn("detector timeout exceeded, continuing with partial results",
				zap.Duration("timeout", timeout),
				zap.Int("pending", remaining),
			)
			remaining = 0
		}
	}
	return collected
}

// compose merges findings, scores them, applies the mutation order
// (redact, then mitigate bias, then replace if harmful), and builds the Result.
func (o *Orchestrator) compose(cfg *Config, query, output string, f *findings, rc *RequestContext) *Result {
	harmful := harmTriggered(f.harm, cfg)
	harm := *f.harm
	harm.IsHarmful = harmful
	f.harm = &harm

	violations := buildViolations(f, cfg)
	score := complianceScore(f.ubuntu.Score, violations)
	isValid := decide(score, violations, harmful, cfg)

	bias := *f.bias
	f.bias = &bias
	text := output

	var redactions []PIIMatch
	if cfg.PrivacyFilterEnabled && cfg.PIIRedactionEnabled && f.privacy.HasPII {
		text = f.privacy.FilteredOutput
		redactions = f.privacy.Matches
	}

	if cfg.BiasDetectionEnabled && cfg.AutoMitigateBias && f.bias.HasBias {
		var targets []BiasScore
		for _, b := range f.bias.BiasTypes {
			if b.Severity >= cfg.BiasSeverityThreshold {
				targets = append(targets, b)
			}
		}
		targets = rebaseBiasScores(targets, redactions)
		if len(targets) > 0 {
			text = o.detectors.Bias.MitigateBias(text, targets)
			f.bias.MitigatedOutput = text
			f.bias.MitigationApplied = true
		}
	}

	if harmful && cfg.BlockHarmfulContent {
		text = o.detectors.Harm.GenerateSafeResponse(query, f.harm)
		if strings.TrimSpace(text) == "" {
			text = FallbackOutput
		}
	}

	return &Result{
		IsValid:         isValid,
		ValidatedOutput: text,
		Violations:      violations,
		ComplianceScore: score,
		Timestamp:       o.now(),
		Metadata: Metadata{
			UbuntuValidation: *f.ubuntu,
			BiasDetection:    *f.bias,
			PrivacyFilter:    *f.privacy,
			HarmPrevention:   *f.harm,
			Degraded:         f.degraded,
			Context:          rc,
		},
	}
}

func (o *Orchestrator) emptyOutputResult(output string, rc *RequestContext) *Result {
	const desc = "Output is empty; there is no content to validate"
	ubuntu := neutralUbuntu()
	ubuntu.IsValid = false
	ubuntu.Score = 0
	ubuntu.CollectiveBenefit, ubuntu.KnowledgeSharing, ubuntu.InclusiveDesign = 0, 0, 0
	ubuntu.Violations = []string{desc}
	ubuntu.Suggestions = []string{"Regenerate the response before validating it"}

	return &Result{
		IsValid:         false,
		ValidatedOutput: FallbackOutput,
		Violations: []Violation{{
			Type:        ViolationUbuntu,
			Severity:    SeverityMedium,
			Description: desc,
			Suggestion:  "Regenerate the response before validating it",
		}},
		ComplianceScore: 0,
		Timestamp:       o.now(),
		Metadata: Metadata{
			UbuntuValidation: *ubuntu,
			BiasDetection:    *neutralBias(),
			PrivacyFilter:    *neutralPrivacy(output),
			HarmPrevention:   *neutralHarm(),
			Context:          rc,
		},
	}
}

func (o *Orchestrator) malfunctionResult(output string, rc *RequestContext) *Result {
	return &Result{
		IsValid:         false,
		ValidatedOutput: FallbackOutput,
		Violations: []Violation{{
			Type:        ViolationUbuntu,
			Severity:    SeverityHigh,
			Description: "Validation malfunction: the content could not be screened",
			Suggestion:  "Retry the request",
			Malfunction: true,
		}},
		ComplianceScore: 0,
		Timestamp:       o.now(),
		Metadata: Metadata{
			UbuntuValidation: *neutralUbuntu(),
			BiasDetection:    *neutralBias(),
			PrivacyFilter:    *neutralPrivacy(output),
			HarmPrevention:   *neutralHarm(),
			Degraded:         []string{DetectorUbuntu, DetectorBias, DetectorPrivacy, DetectorHarm},
			Context:          rc,
		},
	}
}

// LogValidation hands a verdict to the audit trail. It is a separate step so
// dry runs need not persist. A zero processingTime falls back to the
// result's own measurement.
func (o *Orchestrator) LogValidation(result *Result, userID, query, originalOutput, tier string, processingTime time.Duration) {
	cfg := o.cfg.Load()
	if o.trail == nil || !cfg.AuditLoggingEnabled || result == nil {
		return
	}
	ms := processingTime.Milliseconds()
	if processingTime == 0 {
		ms = int64(result.ProcessingTimeMs)
	}
	if tier == "" {
		tier = "free"
	}
	o.trail.Log(AuditLog{
		UserID:           userID,
		Query:            query,
		OriginalOutput:   originalOutput,
		ValidatedOutput:  result.ValidatedOutput,
		Violations:       result.Violations,
		ComplianceScore:  result.ComplianceScore,
		IsValid:          result.IsValid,
		Timestamp:        result.Timestamp,
		Tier:             tier,
		ProcessingTimeMs: ms,
	})
}

// GetAuditLogs returns the retained audit records for a user, newest first.
func (o *Orchestrator) GetAuditLogs(ctx context.Context, userID string) ([]AuditLog, error) {
	if o.trail == nil {
		return []AuditLog{}, nil
	}
	logs, err := o.trail.LogsForUser(ctx, userID, LogQuery{})
	if err != nil {
		return nil, fmt.Errorf("GetAuditLogs: %w", err)
	}
	return logs, nil
}

// GetComplianceMetrics returns the cumulative metrics snapshot.
func (o *Orchestrator) GetComplianceMetrics() ComplianceMetrics {
	return o.metrics.snapshot()
}

// ResetMetrics zeroes the cumulative metrics.
func (o *Orchestrator) ResetMetrics() {
	o.metrics.reset(o.now())
}

// GetConfig returns a copy of the active configuration.
func (o *Orchestrator) GetConfig() Config {
	return *o.cfg.Load()
}

// UpdateConfig applies a partial update. It affects subsequent calls only:
// in-flight calls keep the snapshot they started with.
func (o *Orchestrator) UpdateConfig(p PartialConfig) (Config, error) {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()

	next := o.cfg.Load().Apply(p)
	if err := o.store(next); err != nil {
		return Config{}, fmt.Errorf("UpdateConfig: %w", err)
	}
	return next, nil
}

// ReplaceConfig swaps in a complete configuration.
func (o *Orchestrator) ReplaceConfig(cfg Config) error {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()

	if err := o.store(cfg); err != nil {
		return fmt.Errorf("ReplaceConfig: %w", err)
	}
	return nil
}

func (o *Orchestrator) store(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg.Store(&cfg)
	if o.trail != nil {
		o.trail.SetRetention(cfg.AuditLogRetention)
	}
	o.logger.Info("configuration updated",
		zap.Bool("strict_mode", cfg.StrictMode),
		zap.Bool("parallel_validation", cfg.ParallelValidation),
		zap.Float64("min_compliance_score", cfg.MinComplianceScore),
	)
	return nil
}

// Close flushes and closes the audit trail.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.trail == nil {
		return nil
	}
	if err := o.trail.Flush(ctx); err != nil {
		o.logger.Warn("final audit flush failed", zap.Error(err))
	}
	return o.trail.Close()
}

func hasOutput(outs []detectorOutput, name string) bool {
	for _, out := range outs {
		if out.name == name {
			return true
		}
	}
	return false
}

func neutralUbuntu() *UbuntuValidationResult {
	return &UbuntuValidationResult{
		ValidationResult: ValidationResult{
			IsValid:     true,
			Violations:  []string{},
			Score:       100,
			Suggestions: []string{},
		},
		CollectiveBenefit: 100,
		KnowledgeSharing:  100,
		InclusiveDesign:   100,
	}
}

func neutralBias() *BiasReport {
	return &BiasReport{BiasTypes: []BiasScore{}}
}

func neutralPrivacy(output string) *FilterResult {
	return &FilterResult{Matches: []PIIMatch{}, FilteredOutput: output}
}

func neutralHarm() *HarmAssessment {
	return &HarmAssessment{
		HarmTypes:   []HarmType{},
		Explanation: "No harmful content detected",
		Confidence:  1,
	}
}
