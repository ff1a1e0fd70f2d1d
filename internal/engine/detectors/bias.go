package detectors

import (
	"context"
	"math"
	"sort"

	"github.com/triage-ai/constitutional/internal/engine"
)

const (
	baseBiasConfidence = 0.7
	longSpanBytes      = 30
	// findings of the same type starting this close together are one finding
	dedupWindow = 10
)

// BiasConfig configures a BiasDetector.
type BiasConfig struct {
	ConfidenceThreshold float64
	// TypesToCheck limits detection to these types. Empty means all.
	TypesToCheck []engine.BiasType
	// Enhanced enables the co-occurrence and job-title pass.
	Enhanced bool
	// Strategy rewrites each mitigated span. Nil means placeholder masking.
	Strategy MitigationStrategy
}

// DefaultBiasConfig returns threshold 0.6 with the enhanced pass on.
func DefaultBiasConfig() BiasConfig {
	return BiasConfig{
		ConfidenceThreshold: 0.6,
		Enhanced:            true,
	}
}

// BiasDetector finds demographic bias with regex patterns and masks it.
type BiasDetector struct {
	cfg   BiasConfig
	types map[engine.BiasType]bool
}

func NewBiasDetector(cfg BiasConfig) *BiasDetector {
	if cfg.Strategy == nil {
		cfg.Strategy = PlaceholderStrategy{}
	}
	types := make(map[engine.BiasType]bool)
	if len(cfg.TypesToCheck) == 0 {
		for _, t := range engine.AllBiasTypes {
			types[t] = true
		}
	} else {
		for _, t := range cfg.TypesToCheck {
			types[t] = true
		}
	}
	return &BiasDetector{cfg: cfg, types: types}
}

func (d *BiasDetector) Name() string {
	return engine.DetectorBias
}

// DetectBias runs the pattern pass (and the enhanced pass if enabled), drops
// findings under the confidence threshold, and deduplicates the rest.
func (d *BiasDetector) DetectBias(ctx context.Context, text string) (*engine.BiasReport, error) {
	var found []engine.BiasScore

	for _, t := range engine.AllBiasTypes {
		if !d.types[t] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, p := range biasPatterns[t] {
			for _, loc := range p.re.FindAllStringIndex(text, -1) {
				found = append(found, engine.BiasScore{
					Type:       t,
					Severity:   p.severity,
					Confidence: patternConfidence(p.severity, loc[1]-loc[0]),
					Context:    text[loc[0]:loc[1]],
					Location:   engine.Location{Start: loc[0], End: loc[1]},
				})
			}
		}
	}

	if d.cfg.Enhanced {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found = append(found, d.enhancedPass(text)...)
	}

	kept := found[:0]
	for _, f := range found {
		if f.Confidence >= d.cfg.ConfidenceThreshold {
			kept = append(kept, f)
		}
	}
	scores := dedupBiasScores(text, kept)

	report := &engine.BiasReport{
		HasBias:   len(scores) > 0,
		BiasTypes: scores,
	}
	for _, s := range scores {
		if s.Severity > report.OverallSeverity {
			report.OverallSeverity = s.Severity
		}
	}
	return report, nil
}

// MitigateBias rewrites every scored span through the configured strategy.
// Overlapping spans are merged first, then spliced from the end of the text
// backwards so earlier offsets stay valid.
func (d *BiasDetector) MitigateBias(text string, scores []engine.BiasScore) string {
	spans := mergeSpans(text, scores)
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		replacement := d.cfg.Strategy.Replace(text[s.Location.Start:s.Location.End], s)
		text = text[:s.Location.Start] + replacement + text[s.Location.End:]
	}
	return text
}

// patternConfidence: 0.7 base, +0.2 critical, +0.1 high, +0.1 for spans over
// 30 bytes, capped at 1.
func patternConfidence(sev engine.Severity, spanLen int) float64 {
	c := baseBiasConfidence
	switch sev {
	case engine.SeverityCritical:
		c += 0.2
	case engine.SeverityHigh:
		c += 0.1
	}
	if spanLen > longSpanBytes {
		c += 0.1
	}
	return math.Min(1, math.Round(c*100)/100)
}

// dedupBiasScores merges findings of the same type whose starts fall within
// dedupWindow bytes. The merged finding covers the union span and keeps the
// higher severity and confidence.
func dedupBiasScores(text string, scores []engine.BiasScore) []engine.BiasScore {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Location.Start < scores[j].Location.Start
	})

	out := make([]engine.BiasScore, 0, len(scores))
	lastByType := make(map[engine.BiasType]int)
	for _, s := range scores {
		idx, ok := lastByType[s.Type]
		if ok && s.Location.Start-out[idx].Location.Start <= dedupWindow {
			m := &out[idx]
			if s.Location.End > m.Location.End {
				m.Location.End = s.Location.End
			}
			if s.Severity > m.Severity {
				m.Severity = s.Severity
			}
			if s.Confidence > m.Confidence {
				m.Confidence = s.Confidence
			}
			m.Context = text[m.Location.Start:m.Location.End]
			continue
		}
		out = append(out, s)
		lastByType[s.Type] = len(out) - 1
	}
	return out
}

// mergeSpans returns in-bounds spans sorted by start with overlaps unioned.
func mergeSpans(text string, scores []engine.BiasScore) []engine.BiasScore {
	spans := make([]engine.BiasScore, 0, len(scores))
	for _, s := range scores {
		if s.Location.Start < 0 || s.Location.End > len(text) || s.Location.Start >= s.Location.End {
			continue
		}
		spans = append(spans, s)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Location.Start < spans[j].Location.Start })

	merged := spans[:0]
	for _, s := range spans {
		if n := len(merged); n > 0 && s.Location.Start < merged[n-1].Location.End {
			if s.Location.End > merged[n-1].Location.End {
				merged[n-1].Location.End = s.Location.End
			}
			if s.Severity > merged[n-1].Severity {
				merged[n-1].Severity = s.Severity
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
