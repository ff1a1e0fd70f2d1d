// Package config loads the server configuration. Values are layered:
// compiled defaults, then the YAML file, then .env, then CAI_* environment
// variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/triage-ai/constitutional/internal/audit"
	"github.com/triage-ai/constitutional/internal/engine"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the full process configuration.
type Config struct {
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	HTTPPort int    `yaml:"http_port" validate:"gt=0,lte=65535"`
	GRPCPort int    `yaml:"grpc_port" validate:"gt=0,lte=65535"`

	Audit  AuditConfig   `yaml:"audit"`
	Engine engine.Config `yaml:"engine"`

	// File is the YAML path the values were read from, if any.
	File string `yaml:"-"`
}

// AuditConfig selects the audit store and tunes the buffered logger.
type AuditConfig struct {
	Store             string `yaml:"store" validate:"omitempty,oneof=memory sqlite postgres clickhouse log"`
	SQLitePath        string `yaml:"sqlite_path" validate:"required_if=Store sqlite"`
	PostgresDSN       string `yaml:"postgres_dsn" validate:"required_if=Store postgres"`
	ClickHouseDSN     string `yaml:"clickhouse_dsn" validate:"required_if=Store clickhouse"`
	Encrypt           bool   `yaml:"encrypt"`
	BatchSize         int    `yaml:"batch_size" validate:"gt=0,lte=100000"`
	FlushMs           int    `yaml:"flush_ms" validate:"gt=0"`
	RetentionSchedule string `yaml:"retention_schedule" validate:"required"`

	// Key is the encryption passphrase. It is only read from the environment.
	Key string `yaml:"-"`
}

// Default returns the compiled defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTPPort: 8080,
		GRPCPort: 9090,
		Audit: AuditConfig{
			SQLitePath:        "constitutional-audit.db",
			BatchSize:         100,
			FlushMs:           5000,
			RetentionSchedule: audit.DefaultRetentionSchedule,
		},
		Engine: engine.DefaultConfig(),
	}
}

// Validate checks every field, including the engine section.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidConfig, err)
	}
	return nil
}

// Source describes where configuration is read from.
type Source struct {
	// File is an optional YAML file. A missing file is an error.
	File string
	// DotEnv is an optional .env file. A missing file is ignored.
	DotEnv string
	// Lookup reads environment variables. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load reads configuration from CAI_CONFIG_FILE, ./.env, and the process
// environment.
func Load() (*Config, error) {
	return Source{File: os.Getenv("CAI_CONFIG_FILE"), DotEnv: ".env"}.Load()
}

// Load applies every layer over the defaults and validates the result.
func (s Source) Load() (*Config, error) {
	cfg := Default()

	if s.File != "" {
		raw, err := os.ReadFile(s.File)
		if err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return nil, fmt.Errorf("Load %s: %w", s.File, err)
		}
		cfg.File = s.File
	}

	dotenv := map[string]string{}
	if s.DotEnv != "" {
		m, err := godotenv.Read(s.DotEnv)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("Load %s: %w", s.DotEnv, err)
		default:
			dotenv = m
		}
	}

	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := &env{lookup: lookup, dotenv: dotenv}
	e.apply(&cfg)
	if err := errors.Join(e.errs...); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return &cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// env reads overrides. Process environment wins over .env entries.
type env struct {
	lookup func(string) (string, bool)
	dotenv map[string]string
	errs   []error
}

func (e *env) get(key string) (string, bool) {
	if v, ok := e.lookup(key); ok && v != "" {
		return v, true
	}
	v, ok := e.dotenv[key]
	return v, ok && v != ""
}

func (e *env) envOrDefault(key, defaultVal string) string {
	if v, ok := e.get(key); ok {
		return v
	}
	return defaultVal
}

func (e *env) envOrDefaultInt(key string, defaultVal int) int {
	v, ok := e.get(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return i
}

func (e *env) envOrDefaultFloat(key string, defaultVal float64) float64 {
	v, ok := e.get(key)
	if !ok {
		return defaultVal
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return f
}

func (e *env) envOrDefaultBool(key string, defaultVal bool) bool {
	v, ok := e.get(key)
	if !ok {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return b
}

func (e *env) envOrDefaultSeverity(key string, defaultVal engine.Severity) engine.Severity {
	v, ok := e.get(key)
	if !ok {
		return defaultVal
	}
	s, err := engine.ParseSeverity(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return s
}

func (e *env) apply(c *Config) {
	c.LogLevel = strings.ToLower(e.envOrDefault("CAI_LOG_LEVEL", c.LogLevel))
	c.HTTPPort = e.envOrDefaultInt("CAI_HTTP_PORT", c.HTTPPort)
	c.GRPCPort = e.envOrDefaultInt("CAI_GRPC_PORT", c.GRPCPort)

	a := &c.Audit
	a.Store = strings.ToLower(e.envOrDefault("CAI_AUDIT_STORE", a.Store))
	a.SQLitePath = e.envOrDefault("CAI_SQLITE_PATH", a.SQLitePath)
	a.PostgresDSN = e.envOrDefault("POSTGRES_DSN", a.PostgresDSN)
	a.ClickHouseDSN = e.envOrDefault("CLICKHOUSE_DSN", a.ClickHouseDSN)
	a.Key = e.envOrDefault("CAI_AUDIT_KEY", a.Key)
	a.Encrypt = e.envOrDefaultBool("CAI_AUDIT_ENCRYPT", a.Encrypt)
	a.BatchSize = e.envOrDefaultInt("CAI_AUDIT_BATCH_SIZE", a.BatchSize)
	a.FlushMs = e.envOrDefaultInt("CAI_AUDIT_FLUSH_MS", a.FlushMs)
	a.RetentionSchedule = e.envOrDefault("CAI_RETENTION_SCHEDULE", a.RetentionSchedule)

	g := &c.Engine
	g.UbuntuEnabled = e.envOrDefaultBool("CAI_UBUNTU_ENABLED", g.UbuntuEnabled)
	g.UbuntuThreshold = e.envOrDefaultFloat("CAI_UBUNTU_THRESHOLD", g.UbuntuThreshold)
	g.BiasDetectionEnabled = e.envOrDefaultBool("CAI_BIAS_DETECTION_ENABLED", g.BiasDetectionEnabled)
	g.BiasSeverityThreshold = e.envOrDefaultSeverity("CAI_BIAS_SEVERITY_THRESHOLD", g.BiasSeverityThreshold)
	g.AutoMitigateBias = e.envOrDefaultBool("CAI_AUTO_MITIGATE_BIAS", g.AutoMitigateBias)
	g.PrivacyFilterEnabled = e.envOrDefaultBool("CAI_PRIVACY_FILTER_ENABLED", g.PrivacyFilterEnabled)
	g.PIIRedactionEnabled = e.envOrDefaultBool("CAI_PII_REDACTION_ENABLED", g.PIIRedactionEnabled)
	g.HarmPreventionEnabled = e.envOrDefaultBool("CAI_HARM_PREVENTION_ENABLED", g.HarmPreventionEnabled)
	g.HarmSeverityThreshold = e.envOrDefaultFloat("CAI_HARM_SEVERITY_THRESHOLD", g.HarmSeverityThreshold)
	g.HarmConfidenceThreshold = e.envOrDefaultFloat("CAI_HARM_CONFIDENCE_THRESHOLD", g.HarmConfidenceThreshold)
	g.BlockHarmfulContent = e.envOrDefaultBool("CAI_BLOCK_HARMFUL_CONTENT", g.BlockHarmfulContent)
	g.AuditLoggingEnabled = e.envOrDefaultBool("CAI_AUDIT_LOGGING_ENABLED", g.AuditLoggingEnabled)
	g.AuditLogRetention = e.envOrDefaultInt("CAI_AUDIT_LOG_RETENTION", g.AuditLogRetention)
	g.ValidationTimeoutMs = e.envOrDefaultInt("CAI_VALIDATION_TIMEOUT", g.ValidationTimeoutMs)
	g.ParallelValidation = e.envOrDefaultBool("CAI_PARALLEL_VALIDATION", g.ParallelValidation)
	g.MinComplianceScore = e.envOrDefaultFloat("CAI_MIN_COMPLIANCE_SCORE", g.MinComplianceScore)
	g.StrictMode = e.envOrDefaultBool("CAI_STRICT_MODE", g.StrictMode)
}
