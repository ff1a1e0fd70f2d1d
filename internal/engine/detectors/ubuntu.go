package detectors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/triage-ai/constitutional/internal/engine"
)

// ErrInvalidWeights is returned when the principle weights do not sum to 1.0.
var ErrInvalidWeights = errors.New("weights must sum to 1.0")

const (
	highImpactWeight = 1.5
	negativePenalty  = 10
	reinforceBonus   = 5

	// keyword relevance at which a principle saturates at 100
	principleSaturation = 3.0
	// score for a principle the text neither supports nor undermines
	neutralPrincipleScore = 75.0
	// sub-scores below this produce a violation
	principleFloor = 50.0

	weightTolerance = 0.01
)

// UbuntuWeights are the per-principle weights. They must sum to 1.0.
type UbuntuWeights struct {
	CollectiveBenefit float64 `yaml:"collective_benefit" json:"collective_benefit"`
	KnowledgeSharing  float64 `yaml:"knowledge_sharing" json:"knowledge_sharing"`
	InclusiveDesign   float64 `yaml:"inclusive_design" json:"inclusive_design"`
}

// UbuntuConfig configures an UbuntuValidator.
type UbuntuConfig struct {
	Weights  UbuntuWeights
	MinScore float64
}

// DefaultUbuntuConfig returns weights 0.4/0.3/0.3 and a minimum score of 70.
func DefaultUbuntuConfig() UbuntuConfig {
	return UbuntuConfig{
		Weights:  UbuntuWeights{CollectiveBenefit: 0.4, KnowledgeSharing: 0.3, InclusiveDesign: 0.3},
		MinScore: 70,
	}
}

type weightedTerm struct {
	re     *regexp.Regexp
	weight float64
}

type principle struct {
	label       string
	lowReason   string
	suggestion  string
	keywords    []weightedTerm
	negative    []*regexp.Regexp
	reinforcing []*regexp.Regexp
}

// UbuntuValidator scores text on collective benefit, knowledge sharing, and
// inclusive design.
type UbuntuValidator struct {
	cfg        UbuntuConfig
	collective principle
	knowledge  principle
	inclusive  principle
}

// NewUbuntuValidator returns an error wrapping ErrInvalidWeights unless the
// weights are non-negative and sum to 1.0 (within 0.01).
func NewUbuntuValidator(cfg UbuntuConfig) (*UbuntuValidator, error) {
	w := cfg.Weights
	if w.CollectiveBenefit < 0 || w.KnowledgeSharing < 0 || w.InclusiveDesign < 0 {
		return nil, fmt.Errorf("NewUbuntuValidator: %w (negative weight)", ErrInvalidWeights)
	}
	sum := w.CollectiveBenefit + w.KnowledgeSharing + w.InclusiveDesign
	if math.Abs(sum-1.0) > weightTolerance {
		return nil, fmt.Errorf("NewUbuntuValidator: %w (got %.3f)", ErrInvalidWeights, sum)
	}
	if cfg.MinScore < 0 || cfg.MinScore > 100 {
		return nil, fmt.Errorf("NewUbuntuValidator: min score %.1f out of range [0,100]", cfg.MinScore)
	}

	return &UbuntuValidator{
		cfg: cfg,
		collective: compilePrinciple(collectiveBenefitLexicon,
			"Collective benefit",
			"the response does not emphasize community or shared benefit",
			"Highlight how the response benefits the community and supports collective wellbeing"),
		knowledge: compilePrinciple(knowledgeSharingLexicon,
			"Knowledge sharing",
			"the response does not share knowledge or explain its reasoning",
			"Add educational context and share knowledge openly so others can learn"),
		inclusive: compilePrinciple(inclusiveDesignLexicon,
			"Inclusive design",
			"the response does not use welcoming or accessible language",
			"Use inclusive language that welcomes people of all backgrounds and abilities"),
	}, nil
}

func compilePrinciple(lex principleLexicon, label, lowReason, suggestion string) principle {
	p := principle{label: label, lowReason: lowReason, suggestion: suggestion}
	for _, k := range lex.keywords {
		p.keywords = append(p.keywords, weightedTerm{re: wholeWord(k), weight: 1})
	}
	for _, k := range lex.highImpact {
		p.keywords = append(p.keywords, weightedTerm{re: wholeWord(k), weight: highImpactWeight})
	}
	for _, n := range lex.negative {
		p.negative = append(p.negative, wholeWord(n))
	}
	for _, r := range lex.reinforcing {
		p.reinforcing = append(p.reinforcing, wholeWord(r))
	}
	return p
}

func wholeWord(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(phrase)) + `\b`)
}

func (v *UbuntuValidator) Name() string {
	return engine.DetectorUbuntu
}

// Validate never fails on bad input: empty text scores 0 with one violation.
// It returns ctx.Err() if the deadline passes mid-scan.
func (v *UbuntuValidator) Validate(ctx context.Context, text string) (*engine.UbuntuValidationResult, error) {
	if strings.TrimSpace(text) == "" {
		return &engine.UbuntuValidationResult{
			ValidationResult: engine.ValidationResult{
				IsValid:     false,
				Violations:  []string{"Content is empty and cannot be evaluated for Ubuntu principles"},
				Score:       0,
				Suggestions: []string{"Provide content that serves the community, shares knowledge, and welcomes everyone"},
			},
		}, nil
	}

	lower := strings.ToLower(text)
	res := &engine.UbuntuValidationResult{
		ValidationResult: engine.ValidationResult{Violations: []string{}, Suggestions: []string{}},
	}

	scored := []struct {
		p   *principle
		dst *float64
	}{
		{&v.collective, &res.CollectiveBenefit},
		{&v.knowledge, &res.KnowledgeSharing},
		{&v.inclusive, &res.InclusiveDesign},
	}
	for _, s := range scored {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := s.p.score(lower)
		*s.dst = score
		if score < principleFloor {
			res.Violations = append(res.Violations,
				fmt.Sprintf("%s score is low (%.0f/100): %s", s.p.label, score, s.p.lowReason))
			res.Suggestions = append(res.Suggestions, s.p.suggestion)
		}
	}

	w := v.cfg.Weights
	res.Score = math.Round(res.CollectiveBenefit*w.CollectiveBenefit +
		res.KnowledgeSharing*w.KnowledgeSharing +
		res.InclusiveDesign*w.InclusiveDesign)
	res.IsValid = res.Score >= v.cfg.MinScore

	if !res.IsValid && len(res.Violations) == 0 {
		res.Violations = append(res.Violations,
			fmt.Sprintf("Overall Ubuntu alignment %.0f is below the minimum of %.0f", res.Score, v.cfg.MinScore))
		res.Suggestions = append(res.Suggestions,
			"Strengthen community focus, educational value, and inclusive framing")
	}
	return res, nil
}

// score computes one principle's 0..100 score on lower-cased text. Keyword
// hits inside a negative phrase ("not welcome") do not count as support.
func (p *principle) score(lower string) float64 {
	negSpans := findAll(p.negative, lower)

	relevance := 0.0
	for _, k := range p.keywords {
		for _, loc := range k.re.FindAllStringIndex(lower, -1) {
			if !within(loc, negSpans) {
				relevance += k.weight
			}
		}
	}
	negatives := len(negSpans)
	reinforcing := len(findAll(p.reinforcing, lower))

	base := neutralPrincipleScore
	if relevance > 0 || negatives > 0 {
		base = math.Min(100, 100*relevance/principleSaturation)
	}
	score := base - negativePenalty*float64(negatives) + reinforceBonus*float64(reinforcing)
	return math.Max(0, math.Min(100, score))
}

func findAll(res []*regexp.Regexp, s string) [][]int {
	var out [][]int
	for _, re := range res {
		out = append(out, re.FindAllStringIndex(s, -1)...)
	}
	return out
}

// within reports whether loc lies entirely inside one of spans.
func within(loc []int, spans [][]int) bool {
	for _, sp := range spans {
		if sp[0] <= loc[0] && loc[1] <= sp[1] {
			return true
		}
	}
	return false
}
