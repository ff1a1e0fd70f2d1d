package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/engine"
	"github.com/triage-ai/constitutional/internal/store"
)

// configSchema describes a configuration body. Every property is optional;
// PUT fills omitted fields from the defaults.
const configSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"ubuntu_enabled":            {"type": "boolean"},
		"ubuntu_threshold":          {"type": "number", "minimum": 0, "maximum": 100},
		"bias_detection_enabled":    {"type": "boolean"},
		"bias_severity_threshold":   {"enum": ["low", "medium", "high", "critical"]},
		"auto_mitigate_bias":        {"type": "boolean"},
		"privacy_filter_enabled":    {"type": "boolean"},
		"pii_redaction_enabled":     {"type": "boolean"},
		"harm_prevention_enabled":   {"type": "boolean"},
		"harm_severity_threshold":   {"type": "number", "minimum": 0, "maximum": 10},
		"harm_confidence_threshold": {"type": "number", "minimum": 0, "maximum": 1},
		"block_harmful_content":     {"type": "boolean"},
		"audit_logging_enabled":     {"type": "boolean"},
		"audit_log_retention":       {"type": "integer", "minimum": 0, "maximum": 36500},
		"validation_timeout":        {"type": "integer", "minimum": 1, "maximum": 600000},
		"parallel_validation":       {"type": "boolean"},
		"min_compliance_score":      {"type": "number", "minimum": 0, "maximum": 100},
		"strict_mode":               {"type": "boolean"}
	}
}`

var compiledConfigSchema = mustCompileSchema("config.json", configSchema)

func mustCompileSchema(name, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("config schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("config schema: %v", err))
	}
	sch, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("config schema: %v", err))
	}
	return sch
}

// validateConfigBody checks raw against the configuration schema and
// returns a client-facing message on failure.
func validateConfigBody(raw []byte) string {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return "Invalid JSON body"
	}
	if err := compiledConfigSchema.Validate(doc); err != nil {
		return fmt.Sprintf("schema validation failed: %v", err)
	}
	return ""
}

func (d *Dependencies) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Engine.GetConfig())
}

// handleUpdateConfig implements PATCH /v1/config. Only fields present in the
// body change.
func (d *Dependencies) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read body"})
		return
	}
	if msg := validateConfigBody(raw); msg != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: msg})
		return
	}

	var patch engine.PartialConfig
	if err := json.Unmarshal(raw, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	cfg, err := d.Engine.UpdateConfig(patch)
	if err != nil {
		d.writeConfigError(w, err)
		return
	}
	d.persistConfig(r, cfg)
	writeJSON(w, http.StatusOK, cfg)
}

// handleReplaceConfig implements PUT /v1/config. Omitted fields take their
// default values.
func (d *Dependencies) handleReplaceConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read body"})
		return
	}
	if msg := validateConfigBody(raw); msg != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: msg})
		return
	}

	cfg := engine.DefaultConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if err := d.Engine.ReplaceConfig(cfg); err != nil {
		d.writeConfigError(w, err)
		return
	}
	d.persistConfig(r, cfg)
	writeJSON(w, http.StatusOK, cfg)
}

func (d *Dependencies) writeConfigError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrInvalidConfig) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}
	d.Logger.Error("failed to update config", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update config"})
}

// persistConfig saves cfg when a store is configured. The running engine
// already has the new values, so failures are logged only.
func (d *Dependencies) persistConfig(r *http.Request, cfg engine.Config) {
	if d.Store == nil {
		return
	}
	if _, err := d.Store.SaveConfig(r.Context(), store.DefaultConfigName, cfg); err != nil {
		d.Logger.Error("failed to persist config", zap.Error(err))
	}
}
