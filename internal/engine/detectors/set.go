package detectors

import (
	"fmt"

	"github.com/triage-ai/constitutional/internal/engine"
)

// SetConfig configures all four detectors.
type SetConfig struct {
	Ubuntu       UbuntuConfig
	Bias         BiasConfig
	Privacy      PrivacyConfig
	Harm         HarmConfig
	SafeResponse SafeResponseConfig
}

// DefaultSetConfig returns the production defaults for every detector.
func DefaultSetConfig() SetConfig {
	return SetConfig{
		Ubuntu:       DefaultUbuntuConfig(),
		Bias:         DefaultBiasConfig(),
		Harm:         DefaultHarmConfig(),
		SafeResponse: DefaultSafeResponseConfig(),
	}
}

// NewSet builds the detectors an Orchestrator composes. Wired here rather
// than in engine to avoid an import cycle.
func NewSet(cfg SetConfig) (engine.DetectorSet, error) {
	ubuntu, err := NewUbuntuValidator(cfg.Ubuntu)
	if err != nil {
		return engine.DetectorSet{}, fmt.Errorf("NewSet: %w", err)
	}
	harmCfg := cfg.Harm
	if harmCfg.Responder == nil {
		harmCfg.Responder = NewSafeResponseGenerator(cfg.SafeResponse)
	}
	return engine.DetectorSet{
		Ubuntu:  ubuntu,
		Bias:    NewBiasDetector(cfg.Bias),
		Privacy: NewPrivacyFilter(cfg.Privacy),
		Harm:    NewHarmPrevention(harmCfg),
	}, nil
}
