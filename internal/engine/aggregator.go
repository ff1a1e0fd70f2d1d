package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Base penalty per violation type, scaled by severityFactor. Ubuntu findings
// carry no penalty because the Ubuntu score is already the starting point.
var basePenalty = map[ViolationType]float64{
	ViolationUbuntu:  0,
	ViolationBias:    10,
	ViolationPrivacy: 10,
	ViolationHarm:    40,
}

func severityFactor(s Severity) float64 {
	switch s {
	case SeverityLow:
		return 0.5
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 1.5
	case SeverityCritical:
		return 2
	default:
		return 1
	}
}

// findings is the union of every detector's contribution to one call.
type findings struct {
	ubuntu   *UbuntuValidationResult
	bias     *BiasReport
	privacy  *FilterResult
	harm     *HarmAssessment
	degraded []string
}

// harmTriggered reports whether an assessment crosses the configured thresholds.
func harmTriggered(a *HarmAssessment, cfg *Config) bool {
	if a == nil || !cfg.HarmPreventionEnabled {
		return false
	}
	return a.Severity >= cfg.HarmSeverityThreshold && a.Confidence >= cfg.HarmConfidenceThreshold
}

// buildViolations merges detector findings into the normalized violation list.
//
// Order: Ubuntu, Bias, Privacy, Harm, then one malfunction per degraded
// detector. Malfunctions carry no score penalty; strict mode fails on them.
func buildViolations(f *findings, cfg *Config) []Violation {
	violations := make([]Violation, 0)

	if cfg.UbuntuEnabled && f.ubuntu != nil {
		for i, desc := range f.ubuntu.Violations {
			v := Violation{
				Type:        ViolationUbuntu,
				Severity:    SeverityLow,
				Description: desc,
			}
			if i < len(f.ubuntu.Suggestions) {
				v.Suggestion = f.ubuntu.Suggestions[i]
			}
			violations = append(violations, v)
		}
		if len(f.ubuntu.Violations) == 0 && f.ubuntu.Score < cfg.UbuntuThreshold {
			violations = append(violations, Violation{
				Type:        ViolationUbuntu,
				Severity:    SeverityLow,
				Description: fmt.Sprintf("Ubuntu alignment score %.0f is below threshold %.0f", f.ubuntu.Score, cfg.UbuntuThreshold),
				Suggestion:  "Frame the response around community, shared knowledge, and inclusion",
			})
		}
	}

	var redactions []PIIMatch
	if cfg.PrivacyFilterEnabled && cfg.PIIRedactionEnabled && f.privacy != nil && f.privacy.HasPII {
		redactions = f.privacy.Matches
	}

	if cfg.BiasDetectionEnabled && f.bias != nil {
		for _, b := range f.bias.BiasTypes {
			if b.Severity < cfg.BiasSeverityThreshold {
				continue
			}
			loc := b.Location
			violations = append(violations, Violation{
				Type:        ViolationBias,
				Severity:    b.Severity,
				Description: fmt.Sprintf("Potential %s bias: %q", b.Type, redactContext(b.Context, loc, redactions)),
				Suggestion:  "Rephrase using neutral language that does not generalize about a group",
				Location:    &loc,
			})
		}
	}

	if cfg.PrivacyFilterEnabled && f.privacy != nil {
		for _, m := range f.privacy.Matches {
			loc := Location{Start: m.StartIndex, End: m.EndIndex}
			violations = append(violations, Violation{
				Type:        ViolationPrivacy,
				Severity:    SeverityMedium,
				Description: fmt.Sprintf("Personal data detected: %s", m.Type),
				Suggestion:  "Remove or redact personal information before sharing",
				Location:    &loc,
			})
		}
	}

	if harmTriggered(f.harm, cfg) {
		violations = append(violations, Violation{
			Type:        ViolationHarm,
			Severity:    harmSeverityClass(f.harm.Severity),
			Description: fmt.Sprintf("Harmful content detected: %s (severity %.1f/10)", joinHarmTypes(f.harm.HarmTypes), f.harm.Severity),
			Suggestion:  "Replace the response with a safe alternative and point to support resources",
		})
	}

	for _, name := range f.degraded {
		violations = append(violations, Violation{
			Type:        violationTypeFor(name),
			Severity:    SeverityLow,
			Description: fmt.Sprintf("Validation malfunction: %s detector did not complete", name),
			Suggestion:  "Retry the request; the content was not fully screened",
			Malfunction: true,
		})
	}

	return violations
}

// complianceScore starts from base and subtracts a severity-scaled penalty
// for every policy violation. The result is clamped to [0, 100].
func complianceScore(base float64, violations []Violation) float64 {
	score := base
	for _, v := range violations {
		if v.Malfunction {
			continue
		}
		score -= basePenalty[v.Type] * severityFactor(v.Severity)
	}
	return clamp(math.Round(score*100)/100, 0, 100)
}

// decide applies strict or score-based policy.
func decide(score float64, violations []Violation, harmful bool, cfg *Config) bool {
	if cfg.StrictMode {
		return len(violations) == 0
	}
	return score >= cfg.MinComplianceScore && !(harmful && cfg.BlockHarmfulContent)
}

func harmSeverityClass(severity float64) Severity {
	switch {
	case severity >= 9:
		return SeverityCritical
	case severity >= 7:
		return SeverityHigh
	case severity >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func joinHarmTypes(types []HarmType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func violationTypeFor(detector string) ViolationType {
	switch detector {
	case DetectorBias:
		return ViolationBias
	case DetectorPrivacy:
		return ViolationPrivacy
	case DetectorHarm:
		return ViolationHarm
	default:
		return ViolationUbuntu
	}
}

// rebaseBiasScores shifts bias spans found in the original text into the
// coordinates of the redacted text. A span that overlaps a redacted PII span
// is widened to cover the whole replacement token, so mitigation still
// rewrites it and no fragment of the personal data survives.
func rebaseBiasScores(scores []BiasScore, redactions []PIIMatch) []BiasScore {
	if len(redactions) == 0 {
		return scores
	}
	sorted := sortedMatches(redactions)

	out := make([]BiasScore, 0, len(scores))
	for _, s := range scores {
		s.Location = Location{
			Start: rebasePos(s.Location.Start, sorted, false),
			End:   rebasePos(s.Location.End, sorted, true),
		}
		out = append(out, s)
	}
	return out
}

// rebasePos maps offset p of the original text into the redacted text. An
// offset inside a redacted span snaps to the start of its replacement, or to
// the end when end is set.
func rebasePos(p int, sorted []PIIMatch, end bool) int {
	shift := 0
	for _, m := range sorted {
		if m.EndIndex <= p {
			shift += len(m.Replacement) - (m.EndIndex - m.StartIndex)
			continue
		}
		if m.StartIndex < p {
			if end {
				return m.StartIndex + shift + len(m.Replacement)
			}
			return m.StartIndex + shift
		}
		break
	}
	return p + shift
}

// redactContext replaces the parts of context, the original text at loc,
// that overlap a redacted PII span with the span's replacement.
func redactContext(context string, loc Location, redactions []PIIMatch) string {
	if len(redactions) == 0 || loc.End-loc.Start != len(context) {
		return context
	}
	sorted := sortedMatches(redactions)
	for i := len(sorted) - 1; i >= 0; i-- {
		m := sorted[i]
		if m.EndIndex <= loc.Start || m.StartIndex >= loc.End {
			continue
		}
		from := max(m.StartIndex, loc.Start) - loc.Start
		to := min(m.EndIndex, loc.End) - loc.Start
		context = context[:from] + m.Replacement + context[to:]
	}
	return context
}

func sortedMatches(matches []PIIMatch) []PIIMatch {
	sorted := make([]PIIMatch, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartIndex < sorted[j].StartIndex })
	return sorted
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
