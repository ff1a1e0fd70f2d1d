package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/audit"
	"github.com/triage-ai/constitutional/internal/engine"
	"github.com/triage-ai/constitutional/internal/store"
	"github.com/triage-ai/constitutional/internal/telemetry"
)

// ConfigStore persists the engine configuration across restarts.
type ConfigStore interface {
	SaveConfig(ctx context.Context, name string, cfg engine.Config) (*store.StoredConfig, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Engine  *engine.Orchestrator
	Audit   *audit.Logger        // nil when no audit trail is configured
	Store   ConfigStore          // nil unless Postgres is configured
	Metrics *telemetry.Collector // nil disables /metrics
	Logger  *zap.Logger

	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/validate", deps.handleValidate)

	mux.HandleFunc("GET /v1/config", deps.handleGetConfig)
	mux.HandleFunc("PATCH /v1/config", deps.handleUpdateConfig)
	mux.HandleFunc("PUT /v1/config", deps.handleReplaceConfig)

	mux.HandleFunc("GET /v1/audit/logs", deps.requireAudit(deps.handleAuditLogs))
	mux.HandleFunc("GET /v1/audit/stats", deps.requireAudit(deps.handleAuditStats))
	mux.HandleFunc("POST /v1/audit/flush", deps.requireAudit(deps.handleAuditFlush))
	mux.HandleFunc("POST /v1/audit/cleanup", deps.requireAudit(deps.handleAuditCleanup))

	mux.HandleFunc("GET /v1/metrics", deps.handleGetMetrics)
	mux.HandleFunc("POST /v1/metrics/reset", deps.handleResetMetrics)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger), deps.AllowedOrigins)
}
