package detectors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/triage-ai/constitutional/internal/engine"
)

const (
	baseHarmConfidence    = 0.6
	harmConfidencePerHit  = 0.1
	harmMultiplierPerType = 0.1
	maxHarmMultiplier     = 1.5
	maxHarmSeverity       = 10.0
)

// HarmConfig configures a HarmPrevention detector.
type HarmConfig struct {
	SeverityThreshold   float64
	ConfidenceThreshold float64
	// TypesToCheck limits detection to these types. Empty means all.
	TypesToCheck []engine.HarmType
	// Responder builds replacement text. Nil means a default generator.
	Responder *SafeResponseGenerator
}

// DefaultHarmConfig returns severity threshold 5 and confidence threshold 0.7.
func DefaultHarmConfig() HarmConfig {
	return HarmConfig{SeverityThreshold: 5, ConfidenceThreshold: 0.7}
}

// HarmPrevention assesses harm risk across eight categories.
type HarmPrevention struct {
	cfg        HarmConfig
	categories []harmCategory
	responder  *SafeResponseGenerator
}

func NewHarmPrevention(cfg HarmConfig) *HarmPrevention {
	want := make(map[engine.HarmType]bool)
	for _, t := range cfg.TypesToCheck {
		want[t] = true
	}
	var cats []harmCategory
	for _, c := range harmCategories {
		if len(want) == 0 || want[c.kind] {
			cats = append(cats, c)
		}
	}
	responder := cfg.Responder
	if responder == nil {
		responder = NewSafeResponseGenerator(DefaultSafeResponseConfig())
	}
	return &HarmPrevention{cfg: cfg, categories: cats, responder: responder}
}

func (h *HarmPrevention) Name() string {
	return engine.DetectorHarm
}

type harmHit struct {
	kind     engine.HarmType
	count    int
	severity float64
}

// AssessHarm scans the query and output together, since intent may sit in
// either.
//
// severity = max(category severity) * min(1 + 0.1*(categories-1), 1.5), capped at 10
// confidence = min(0.6 + 0.1*matches, 1); 1.0 when nothing matched
func (h *HarmPrevention) AssessHarm(ctx context.Context, query, output string) (*engine.HarmAssessment, error) {
	combined := query + " " + output

	var hits []harmHit
	total := 0
	for _, c := range h.categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := 0
		for _, re := range c.patterns {
			n += len(re.FindAllStringIndex(combined, -1))
		}
		if n > 0 {
			hits = append(hits, harmHit{kind: c.kind, count: n, severity: c.severity})
			total += n
		}
	}

	if len(hits) == 0 {
		return &engine.HarmAssessment{
			IsHarmful:   false,
			HarmTypes:   []engine.HarmType{},
			Severity:    0,
			Explanation: "No harmful content detected",
			Confidence:  1,
		}, nil
	}

	// most severe first; ties keep category order
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].severity > hits[j].severity })

	maxSev := hits[0].severity
	multiplier := math.Min(1+harmMultiplierPerType*float64(len(hits)-1), maxHarmMultiplier)
	severity := math.Min(maxSev*multiplier, maxHarmSeverity)
	confidence := math.Min(baseHarmConfidence+harmConfidencePerHit*float64(total), 1)

	types := make([]engine.HarmType, len(hits))
	parts := make([]string, len(hits))
	for i, hit := range hits {
		types[i] = hit.kind
		noun := "matches"
		if hit.count == 1 {
			noun = "match"
		}
		parts[i] = fmt.Sprintf("%s (%d %s)", hit.kind, hit.count, noun)
	}

	a := &engine.HarmAssessment{
		HarmTypes:   types,
		Severity:    math.Round(severity*10) / 10,
		Explanation: "Potentially harmful content detected: " + strings.Join(parts, ", "),
		Confidence:  math.Round(confidence*100) / 100,
	}
	a.IsHarmful = h.IsHarmful(a)
	return a, nil
}

// IsHarmful applies the severity and confidence thresholds.
func (h *HarmPrevention) IsHarmful(a *engine.HarmAssessment) bool {
	if a == nil {
		return false
	}
	return a.Severity >= h.cfg.SeverityThreshold && a.Confidence >= h.cfg.ConfidenceThreshold
}

// GenerateSafeResponse builds the replacement message for a harmful exchange.
func (h *HarmPrevention) GenerateSafeResponse(_ string, a *engine.HarmAssessment) string {
	var types []engine.HarmType
	if a != nil {
		types = a.HarmTypes
	}
	return h.responder.Generate(types)
}

// GenerateAlternatives offers constructive reframings for the detected types.
func (h *HarmPrevention) GenerateAlternatives(types []engine.HarmType) []string {
	return h.responder.Alternatives(types)
}

// Responder exposes the safe response generator for resource management.
func (h *HarmPrevention) Responder() *SafeResponseGenerator {
	return h.responder
}
