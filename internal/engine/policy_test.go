package engine

import (
	"encoding/json"
	"errors"
	"testing"
)

func boolPtr(b bool) *bool          { return &b }
func float64Ptr(f float64) *float64 { return &f }
func intPtr(i int) *int             { return &i }

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MinComplianceScore != 70 {
		t.Errorf("MinComplianceScore = %v, want 70", cfg.MinComplianceScore)
	}
	if cfg.ValidationTimeoutMs != 5000 {
		t.Errorf("ValidationTimeoutMs = %d, want 5000", cfg.ValidationTimeoutMs)
	}
	if cfg.AuditLogRetention != 90 {
		t.Errorf("AuditLogRetention = %d, want 90", cfg.AuditLogRetention)
	}
	if cfg.StrictMode {
		t.Error("StrictMode should default to false")
	}
	if !cfg.ParallelValidation {
		t.Error("ParallelValidation should default to true")
	}
}

func TestConfig_Validate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative compliance", func(c *Config) { c.MinComplianceScore = -1 }},
		{"compliance over 100", func(c *Config) { c.MinComplianceScore = 101 }},
		{"harm severity over 10", func(c *Config) { c.HarmSeverityThreshold = 11 }},
		{"zero timeout", func(c *Config) { c.ValidationTimeoutMs = 0 }},
		{"negative retention", func(c *Config) { c.AuditLogRetention = -1 }},
		{"unspecified bias severity", func(c *Config) { c.BiasSeverityThreshold = SeverityUnspecified }},
		{"harm confidence over 1", func(c *Config) { c.HarmConfidenceThreshold = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error should wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfig_Apply_NilFieldsKeepValues(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.Apply(PartialConfig{})
	if got != cfg {
		t.Errorf("empty partial should not change config:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestConfig_Apply_SetsFields(t *testing.T) {
	sev := SeverityHigh
	got := DefaultConfig().Apply(PartialConfig{
		StrictMode:            boolPtr(true),
		MinComplianceScore:    float64Ptr(85),
		ValidationTimeoutMs:   intPtr(250),
		BiasSeverityThreshold: &sev,
		PIIRedactionEnabled:   boolPtr(false),
	})
	if !got.StrictMode {
		t.Error("StrictMode not applied")
	}
	if got.MinComplianceScore != 85 {
		t.Errorf("MinComplianceScore = %v, want 85", got.MinComplianceScore)
	}
	if got.ValidationTimeoutMs != 250 {
		t.Errorf("ValidationTimeoutMs = %d, want 250", got.ValidationTimeoutMs)
	}
	if got.BiasSeverityThreshold != SeverityHigh {
		t.Errorf("BiasSeverityThreshold = %v, want high", got.BiasSeverityThreshold)
	}
	if got.PIIRedactionEnabled {
		t.Error("PIIRedactionEnabled should be false")
	}
	if !got.UbuntuEnabled {
		t.Error("untouched field UbuntuEnabled changed")
	}
}

func TestPartialConfig_JSON(t *testing.T) {
	raw := `{"strict_mode": true, "bias_severity_threshold": "critical", "validation_timeout": 1000}`
	var p PartialConfig
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.StrictMode == nil || !*p.StrictMode {
		t.Error("strict_mode not decoded")
	}
	if p.BiasSeverityThreshold == nil || *p.BiasSeverityThreshold != SeverityCritical {
		t.Error("bias_severity_threshold not decoded")
	}
	if p.ValidationTimeoutMs == nil || *p.ValidationTimeoutMs != 1000 {
		t.Error("validation_timeout not decoded")
	}
	if p.UbuntuEnabled != nil {
		t.Error("absent field should stay nil")
	}
}

func TestSeverity_ParseAndString(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		got, err := ParseSeverity(s.String())
		if err != nil {
			t.Fatalf("ParseSeverity(%q): %v", s.String(), err)
		}
		if got != s {
			t.Errorf("round trip %v -> %v", s, got)
		}
	}
	if _, err := ParseSeverity("extreme"); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func TestSeverity_UnmarshalZeroValue(t *testing.T) {
	for _, in := range []string{"", "unspecified", " Unspecified "} {
		s := SeverityHigh
		if err := s.UnmarshalText([]byte(in)); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", in, err)
		}
		if s != SeverityUnspecified {
			t.Errorf("UnmarshalText(%q) = %v, want unspecified", in, s)
		}
	}
	var s Severity
	if err := s.UnmarshalText([]byte("extreme")); err == nil {
		t.Error("expected error for unknown severity")
	}
}
