package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/triage-ai/constitutional/internal/engine"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Source{Lookup: lookupFrom(nil)}.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.HTTPPort != 8080 || cfg.GRPCPort != 9090 || cfg.LogLevel != "info" {
		t.Errorf("server defaults = %d/%d/%s", cfg.HTTPPort, cfg.GRPCPort, cfg.LogLevel)
	}
	if cfg.Audit != want.Audit {
		t.Errorf("audit = %+v, want %+v", cfg.Audit, want.Audit)
	}
	if cfg.Engine != engine.DefaultConfig() {
		t.Errorf("engine = %+v", cfg.Engine)
	}
}

func TestLoad_Layering(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "config.yaml", `
http_port: 8181
audit:
  store: sqlite
  batch_size: 50
engine:
  strict_mode: true
  min_compliance_score: 80
  bias_severity_threshold: high
`)
	dotenv := writeFile(t, dir, ".env", "CAI_HTTP_PORT=8282\nCAI_GRPC_PORT=9292\n")

	cfg, err := Source{
		File:   file,
		DotEnv: dotenv,
		Lookup: lookupFrom(map[string]string{
			"CAI_GRPC_PORT":            "9393",
			"CAI_MIN_COMPLIANCE_SCORE": "85.5",
		}),
	}.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"yaml overridden by .env", cfg.HTTPPort, 8282},
		{"process env beats .env", cfg.GRPCPort, 9393},
		{"yaml store", cfg.Audit.Store, "sqlite"},
		{"yaml batch size", cfg.Audit.BatchSize, 50},
		{"default flush kept", cfg.Audit.FlushMs, 5000},
		{"yaml strict mode", cfg.Engine.StrictMode, true},
		{"env beats yaml", cfg.Engine.MinComplianceScore, 85.5},
		{"yaml severity", cfg.Engine.BiasSeverityThreshold, engine.SeverityHigh},
		{"default kept under partial yaml", cfg.Engine.UbuntuThreshold, 70.0},
		{"file recorded", cfg.File, file},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EngineToggles(t *testing.T) {
	cfg, err := Source{Lookup: lookupFrom(map[string]string{
		"CAI_UBUNTU_ENABLED":            "false",
		"CAI_BIAS_SEVERITY_THRESHOLD":   "critical",
		"CAI_HARM_SEVERITY_THRESHOLD":   "7.5",
		"CAI_HARM_CONFIDENCE_THRESHOLD": "0.9",
		"CAI_AUDIT_LOG_RETENTION":       "30",
		"CAI_VALIDATION_TIMEOUT":        "250",
		"CAI_PARALLEL_VALIDATION":       "0",
		"CAI_STRICT_MODE":               "TRUE",
		"CAI_LOG_LEVEL":                 "DEBUG",
		"CAI_AUDIT_ENCRYPT":             "true",
		"CAI_AUDIT_KEY":                 "passphrase",
	})}.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	g := cfg.Engine
	if g.UbuntuEnabled || g.BiasSeverityThreshold != engine.SeverityCritical || g.HarmSeverityThreshold != 7.5 ||
		g.HarmConfidenceThreshold != 0.9 || g.AuditLogRetention != 30 || g.ValidationTimeoutMs != 250 ||
		g.ParallelValidation || !g.StrictMode {
		t.Errorf("engine = %+v", g)
	}
	if cfg.LogLevel != "debug" || !cfg.Audit.Encrypt || cfg.Audit.Key != "passphrase" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		source Source
		isCfg  bool
	}{
		{
			name:   "missing file",
			source: Source{File: filepath.Join(dir, "nope.yaml")},
		},
		{
			name:   "unknown yaml key",
			source: Source{File: writeFile(t, dir, "typo.yaml", "engine:\n  strikt_mode: true\n")},
		},
		{
			name:   "bad severity in yaml",
			source: Source{File: writeFile(t, dir, "sev.yaml", "engine:\n  bias_severity_threshold: extreme\n")},
		},
		{
			name:   "unparseable env int",
			source: Source{Lookup: lookupFrom(map[string]string{"CAI_HTTP_PORT": "eighty"})},
		},
		{
			name:   "unparseable env bool",
			source: Source{Lookup: lookupFrom(map[string]string{"CAI_STRICT_MODE": "maybe"})},
		},
		{
			name:   "score out of range",
			source: Source{Lookup: lookupFrom(map[string]string{"CAI_MIN_COMPLIANCE_SCORE": "101"})},
			isCfg:  true,
		},
		{
			name:   "zero timeout",
			source: Source{Lookup: lookupFrom(map[string]string{"CAI_VALIDATION_TIMEOUT": "0"})},
			isCfg:  true,
		},
		{
			name:   "unknown store",
			source: Source{Lookup: lookupFrom(map[string]string{"CAI_AUDIT_STORE": "redis"})},
			isCfg:  true,
		},
		{
			name:   "postgres without dsn",
			source: Source{Lookup: lookupFrom(map[string]string{"CAI_AUDIT_STORE": "postgres"})},
			isCfg:  true,
		},
		{
			name:   "bad log level",
			source: Source{Lookup: lookupFrom(map[string]string{"CAI_LOG_LEVEL": "trace"})},
			isCfg:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.source.Lookup == nil {
				tt.source.Lookup = lookupFrom(nil)
			}
			_, err := tt.source.Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.isCfg && !errors.Is(err, engine.ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := Source{DotEnv: filepath.Join(t.TempDir(), ".env"), Lookup: lookupFrom(nil)}.Load()
	if err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	file := writeFile(t, t.TempDir(), "empty.yaml", "")
	cfg, err := Source{File: file, Lookup: lookupFrom(nil)}.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine != engine.DefaultConfig() {
		t.Errorf("empty file should keep defaults")
	}
}
