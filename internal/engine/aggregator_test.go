package engine

import (
	"strings"
	"testing"
)

func TestComplianceScore_NoViolations(t *testing.T) {
	if got := complianceScore(87, nil); got != 87 {
		t.Errorf("expected 87, got %v", got)
	}
}

func TestComplianceScore_SeverityScaling(t *testing.T) {
	tests := []struct {
		name       string
		violations []Violation
		want       float64
	}{
		{"medium privacy", []Violation{{Type: ViolationPrivacy, Severity: SeverityMedium}}, 90},
		{"low bias", []Violation{{Type: ViolationBias, Severity: SeverityLow}}, 95},
		{"high bias", []Violation{{Type: ViolationBias, Severity: SeverityHigh}}, 85},
		{"critical harm", []Violation{{Type: ViolationHarm, Severity: SeverityCritical}}, 20},
		{"ubuntu carries no penalty", []Violation{{Type: ViolationUbuntu, Severity: SeverityLow}}, 100},
		{"malfunction carries no penalty", []Violation{{Type: ViolationHarm, Severity: SeverityLow, Malfunction: true}}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := complianceScore(100, tt.violations); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestComplianceScore_ClampsAtZero(t *testing.T) {
	vs := []Violation{
		{Type: ViolationHarm, Severity: SeverityCritical},
		{Type: ViolationHarm, Severity: SeverityCritical},
	}
	if got := complianceScore(50, vs); got != 0 {
		t.Errorf("expected clamp to 0, got %v", got)
	}
}

func TestDecide_StrictMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StrictMode = true

	if decide(100, []Violation{{Type: ViolationPrivacy}}, false, &cfg) {
		t.Error("strict mode must fail on any violation")
	}
	if !decide(0, nil, false, &cfg) {
		t.Error("strict mode with no violations should pass regardless of score")
	}
}

func TestDecide_NormalMode(t *testing.T) {
	cfg := DefaultConfig()

	if !decide(70, nil, false, &cfg) {
		t.Error("score at threshold should pass")
	}
	if decide(69.9, nil, false, &cfg) {
		t.Error("score below threshold should fail")
	}
	if decide(100, nil, true, &cfg) {
		t.Error("harmful content should fail when blocking is enabled")
	}

	cfg.BlockHarmfulContent = false
	if !decide(100, nil, true, &cfg) {
		t.Error("harmful content should not fail on its own when blocking is disabled")
	}
}

func TestBuildViolations_BiasSeverityThreshold(t *testing.T) {
	cfg := DefaultConfig()
	f := &findings{
		ubuntu: neutralUbuntu(),
		bias: &BiasReport{HasBias: true, BiasTypes: []BiasScore{
			{Type: BiasGender, Severity: SeverityLow, Context: "chairman"},
			{Type: BiasAge, Severity: SeverityHigh, Context: "old people are slow"},
		}},
		privacy: neutralPrivacy("x"),
		harm:    neutralHarm(),
	}

	vs := buildViolations(f, &cfg)
	if len(vs) != 1 {
		t.Fatalf("expected 1 violation, got %d: %+v", len(vs), vs)
	}
	if vs[0].Type != ViolationBias || vs[0].Severity != SeverityHigh {
		t.Errorf("unexpected violation: %+v", vs[0])
	}
}

func TestBuildViolations_HarmSummary(t *testing.T) {
	cfg := DefaultConfig()
	f := &findings{
		ubuntu:  neutralUbuntu(),
		bias:    neutralBias(),
		privacy: neutralPrivacy("x"),
		harm:    &HarmAssessment{HarmTypes: []HarmType{HarmViolence}, Severity: 8, Confidence: 0.9},
	}

	vs := buildViolations(f, &cfg)
	if len(vs) != 1 {
		t.Fatalf("expected 1 harm violation, got %d", len(vs))
	}
	if vs[0].Type != ViolationHarm || vs[0].Severity != SeverityHigh {
		t.Errorf("unexpected harm violation: %+v", vs[0])
	}
	if !strings.Contains(vs[0].Description, "violence") {
		t.Errorf("description should name harm type: %s", vs[0].Description)
	}
}

func TestBuildViolations_ReportsMalfunctions(t *testing.T) {
	f := &findings{
		ubuntu:   neutralUbuntu(),
		bias:     neutralBias(),
		privacy:  neutralPrivacy("x"),
		harm:     neutralHarm(),
		degraded: []string{DetectorBias},
	}

	for _, strict := range []bool{false, true} {
		cfg := DefaultConfig()
		cfg.StrictMode = strict
		vs := buildViolations(f, &cfg)
		if len(vs) != 1 || !vs[0].Malfunction || vs[0].Type != ViolationBias {
			t.Errorf("strict=%v: expected one bias malfunction, got %+v", strict, vs)
		}
		if score := complianceScore(100, vs); score != 100 {
			t.Errorf("strict=%v: malfunction should not be penalized, got %v", strict, score)
		}
	}
}

func TestRebaseBiasScores(t *testing.T) {
	// "mail a@b.co: chairman" -> "mail [REDACTED]: chairman"
	const original = "mail a@b.co: chairman"
	redactions := []PIIMatch{{StartIndex: 5, EndIndex: 11, Replacement: "[REDACTED]"}}
	redacted := original[:5] + "[REDACTED]" + original[11:]

	tests := []struct {
		name string
		in   Location
		want Location
		text string
	}{
		{"after redaction shifts", Location{13, 21}, Location{17, 25}, "chairman"},
		{"before redaction unchanged", Location{0, 4}, Location{0, 4}, "mail"},
		{"touching start", Location{0, 5}, Location{0, 5}, "mail "},
		{"touching end", Location{11, 21}, Location{15, 25}, ": chairman"},
		{"inside widens to token", Location{6, 9}, Location{5, 15}, "[REDACTED]"},
		{"straddles start", Location{0, 8}, Location{0, 15}, "mail [REDACTED]"},
		{"straddles end", Location{8, 21}, Location{5, 25}, "[REDACTED]: chairman"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rebaseBiasScores([]BiasScore{{Type: BiasGender, Location: tt.in}}, redactions)
			if len(got) != 1 {
				t.Fatalf("finding dropped, got %d spans", len(got))
			}
			if got[0].Location != tt.want {
				t.Fatalf("rebase %+v = %+v, want %+v", tt.in, got[0].Location, tt.want)
			}
			if span := redacted[got[0].Location.Start:got[0].Location.End]; span != tt.text {
				t.Errorf("rebased span covers %q, want %q", span, tt.text)
			}
		})
	}
}

func TestRedactContext(t *testing.T) {
	const text = "Women lead, mail a@b.co today"
	redactions := []PIIMatch{{StartIndex: 17, EndIndex: 23, Replacement: "[REDACTED]"}}

	tests := []struct {
		name string
		loc  Location
		want string
	}{
		{"whole sentence", Location{0, len(text)}, "Women lead, mail [REDACTED] today"},
		{"partial overlap", Location{0, 19}, "Women lead, mail [REDACTED]"},
		{"no overlap", Location{0, 10}, "Women lead"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactContext(text[tt.loc.Start:tt.loc.End], tt.loc, redactions)
			if got != tt.want {
				t.Errorf("redactContext = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHarmSeverityClass(t *testing.T) {
	tests := []struct {
		severity float64
		want     Severity
	}{
		{10, SeverityCritical},
		{8, SeverityHigh},
		{6, SeverityMedium},
		{2, SeverityLow},
	}
	for _, tt := range tests {
		if got := harmSeverityClass(tt.severity); got != tt.want {
			t.Errorf("harmSeverityClass(%v) = %v, want %v", tt.severity, got, tt.want)
		}
	}
}
