package detectors

import (
	"context"
	"sort"
	"strings"

	"github.com/triage-ai/constitutional/internal/engine"
)

// DefaultRedactionToken replaces redacted PII.
const DefaultRedactionToken = "[REDACTED]"

// PrivacyConfig configures a PrivacyFilter.
type PrivacyConfig struct {
	// TypesToDetect limits detection to these types. Empty means all.
	TypesToDetect []engine.PIIType
	// RedactionToken replaces each match. Empty means DefaultRedactionToken.
	RedactionToken string
	// PreserveFormat keeps an email's @domain and the last four digits of
	// phone, SSN, and card numbers.
	PreserveFormat bool
}

// PrivacyFilter finds and redacts personal data.
type PrivacyFilter struct {
	cfg      PrivacyConfig
	patterns []piiPattern
}

func NewPrivacyFilter(cfg PrivacyConfig) *PrivacyFilter {
	if cfg.RedactionToken == "" {
		cfg.RedactionToken = DefaultRedactionToken
	}
	want := make(map[engine.PIIType]bool)
	for _, t := range cfg.TypesToDetect {
		want[t] = true
	}
	var patterns []piiPattern
	for _, p := range piiPatterns {
		if len(want) == 0 || want[p.kind] {
			patterns = append(patterns, p)
		}
	}
	return &PrivacyFilter{cfg: cfg, patterns: patterns}
}

func (f *PrivacyFilter) Name() string {
	return engine.DetectorPrivacy
}

// DetectPII returns non-overlapping matches ordered by position. Where
// candidates overlap, the higher-confidence type wins.
func (f *PrivacyFilter) DetectPII(ctx context.Context, text string) ([]engine.PIIMatch, error) {
	var candidates []engine.PIIMatch
	for _, p := range f.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		valueIdx := p.re.SubexpIndex("value")
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if valueIdx > 0 && m[2*valueIdx] >= 0 {
				start, end = m[2*valueIdx], m[2*valueIdx+1]
			}
			if start >= end {
				continue
			}
			candidates = append(candidates, engine.PIIMatch{
				Type:       p.kind,
				Value:      text[start:end],
				StartIndex: start,
				EndIndex:   end,
				Confidence: p.confidence,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].StartIndex < candidates[j].StartIndex
	})

	accepted := make([]engine.PIIMatch, 0, len(candidates))
	for _, c := range candidates {
		overlaps := false
		for _, a := range accepted {
			if c.StartIndex < a.EndIndex && a.StartIndex < c.EndIndex {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c)
		}
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].StartIndex < accepted[j].StartIndex })
	return accepted, nil
}

// FilterPII detects PII and returns the text with every match redacted.
func (f *PrivacyFilter) FilterPII(ctx context.Context, text string) (*engine.FilterResult, error) {
	matches, err := f.DetectPII(ctx, text)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for i := range matches {
		m := &matches[i]
		m.Replacement = f.redact(m)
		b.WriteString(text[prev:m.StartIndex])
		b.WriteString(m.Replacement)
		prev = m.EndIndex
	}
	b.WriteString(text[prev:])

	return &engine.FilterResult{
		HasPII:         len(matches) > 0,
		Matches:        matches,
		FilteredOutput: b.String(),
		RedactionCount: len(matches),
	}, nil
}

func (f *PrivacyFilter) redact(m *engine.PIIMatch) string {
	if !f.cfg.PreserveFormat {
		return f.cfg.RedactionToken
	}
	switch m.Type {
	case engine.PIIEmail:
		if at := strings.LastIndexByte(m.Value, '@'); at >= 0 {
			return f.cfg.RedactionToken + m.Value[at:]
		}
	case engine.PIIPhone, engine.PIISSN, engine.PIICreditCard:
		if last := lastDigits(m.Value, 4); last != "" {
			return f.cfg.RedactionToken + "-" + last
		}
	}
	return f.cfg.RedactionToken
}

// lastDigits returns the final n digits of s, or "" if s has fewer.
func lastDigits(s string, n int) string {
	digits := make([]byte, 0, n)
	for i := len(s) - 1; i >= 0 && len(digits) < n; i-- {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < n {
		return ""
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}
