package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the runtime policy applied by the Orchestrator. Every toggle is
// independent.
type Config struct {
	UbuntuEnabled           bool     `json:"ubuntu_enabled" yaml:"ubuntu_enabled"`
	UbuntuThreshold         float64  `json:"ubuntu_threshold" yaml:"ubuntu_threshold" validate:"gte=0,lte=100"`
	BiasDetectionEnabled    bool     `json:"bias_detection_enabled" yaml:"bias_detection_enabled"`
	BiasSeverityThreshold   Severity `json:"bias_severity_threshold" yaml:"bias_severity_threshold" validate:"gte=1,lte=4"`
	AutoMitigateBias        bool     `json:"auto_mitigate_bias" yaml:"auto_mitigate_bias"`
	PrivacyFilterEnabled    bool     `json:"privacy_filter_enabled" yaml:"privacy_filter_enabled"`
	PIIRedactionEnabled     bool     `json:"pii_redaction_enabled" yaml:"pii_redaction_enabled"`
	HarmPreventionEnabled   bool     `json:"harm_prevention_enabled" yaml:"harm_prevention_enabled"`
	HarmSeverityThreshold   float64  `json:"harm_severity_threshold" yaml:"harm_severity_threshold" validate:"gte=0,lte=10"`
	HarmConfidenceThreshold float64  `json:"harm_confidence_threshold" yaml:"harm_confidence_threshold" validate:"gte=0,lte=1"`
	BlockHarmfulContent     bool     `json:"block_harmful_content" yaml:"block_harmful_content"`
	AuditLoggingEnabled     bool     `json:"audit_logging_enabled" yaml:"audit_logging_enabled"`
	AuditLogRetention       int      `json:"audit_log_retention" yaml:"audit_log_retention" validate:"gte=0,lte=36500"`
	ValidationTimeoutMs     int      `json:"validation_timeout" yaml:"validation_timeout" validate:"gt=0,lte=600000"`
	ParallelValidation      bool     `json:"parallel_validation" yaml:"parallel_validation"`
	MinComplianceScore      float64  `json:"min_compliance_score" yaml:"min_compliance_score" validate:"gte=0,lte=100"`
	StrictMode              bool     `json:"strict_mode" yaml:"strict_mode"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		UbuntuEnabled:           true,
		UbuntuThreshold:         70,
		BiasDetectionEnabled:    true,
		BiasSeverityThreshold:   SeverityMedium,
		AutoMitigateBias:        true,
		PrivacyFilterEnabled:    true,
		PIIRedactionEnabled:     true,
		HarmPreventionEnabled:   true,
		HarmSeverityThreshold:   5,
		HarmConfidenceThreshold: 0.7,
		BlockHarmfulContent:     true,
		AuditLoggingEnabled:     true,
		AuditLogRetention:       90,
		ValidationTimeoutMs:     5000,
		ParallelValidation:      true,
		MinComplianceScore:      70,
		StrictMode:              false,
	}
}

// Validate checks ranges on every field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ValidationTimeout returns the per-detector budget.
func (c Config) ValidationTimeout() time.Duration {
	return time.Duration(c.ValidationTimeoutMs) * time.Millisecond
}

// PartialConfig is an update where nil fields mean "keep the current value".
type PartialConfig struct {
	UbuntuEnabled           *bool     `json:"ubuntu_enabled,omitempty"`
	UbuntuThreshold         *float64  `json:"ubuntu_threshold,omitempty"`
	BiasDetectionEnabled    *bool     `json:"bias_detection_enabled,omitempty"`
	BiasSeverityThreshold   *Severity `json:"bias_severity_threshold,omitempty"`
	AutoMitigateBias        *bool     `json:"auto_mitigate_bias,omitempty"`
	PrivacyFilterEnabled    *bool     `json:"privacy_filter_enabled,omitempty"`
	PIIRedactionEnabled     *bool     `json:"pii_redaction_enabled,omitempty"`
	HarmPreventionEnabled   *bool     `json:"harm_prevention_enabled,omitempty"`
	HarmSeverityThreshold   *float64  `json:"harm_severity_threshold,omitempty"`
	HarmConfidenceThreshold *float64  `json:"harm_confidence_threshold,omitempty"`
	BlockHarmfulContent     *bool     `json:"block_harmful_content,omitempty"`
	AuditLoggingEnabled     *bool     `json:"audit_logging_enabled,omitempty"`
	AuditLogRetention       *int      `json:"audit_log_retention,omitempty"`
	ValidationTimeoutMs     *int      `json:"validation_timeout,omitempty"`
	ParallelValidation      *bool     `json:"parallel_validation,omitempty"`
	MinComplianceScore      *float64  `json:"min_compliance_score,omitempty"`
	StrictMode              *bool     `json:"strict_mode,omitempty"`
}

// Apply returns a copy of c with every non-nil field of p applied.
func (c Config) Apply(p PartialConfig) Config {
	setBool(&c.UbuntuEnabled, p.UbuntuEnabled)
	setFloat(&c.UbuntuThreshold, p.UbuntuThreshold)
	setBool(&c.BiasDetectionEnabled, p.BiasDetectionEnabled)
	if p.BiasSeverityThreshold != nil {
		c.BiasSeverityThreshold = *p.BiasSeverityThreshold
	}
	setBool(&c.AutoMitigateBias, p.AutoMitigateBias)
	setBool(&c.PrivacyFilterEnabled, p.PrivacyFilterEnabled)
	setBool(&c.PIIRedactionEnabled, p.PIIRedactionEnabled)
	setBool(&c.HarmPreventionEnabled, p.HarmPreventionEnabled)
	setFloat(&c.HarmSeverityThreshold, p.HarmSeverityThreshold)
	setFloat(&c.HarmConfidenceThreshold, p.HarmConfidenceThreshold)
	setBool(&c.BlockHarmfulContent, p.BlockHarmfulContent)
	setBool(&c.AuditLoggingEnabled, p.AuditLoggingEnabled)
	setInt(&c.AuditLogRetention, p.AuditLogRetention)
	setInt(&c.ValidationTimeoutMs, p.ValidationTimeoutMs)
	setBool(&c.ParallelValidation, p.ParallelValidation)
	setFloat(&c.MinComplianceScore, p.MinComplianceScore)
	setBool(&c.StrictMode, p.StrictMode)
	return c
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
