package api

import (
	"github.com/triage-ai/constitutional/internal/engine"
)

// ValidateRequest is the JSON body for POST /v1/validate.
type ValidateRequest struct {
	Query   string                 `json:"query"`
	Output  *string                `json:"output"`
	Context *engine.RequestContext `json:"context,omitempty"`
	// DryRun skips the audit trail for this call.
	DryRun bool `json:"dry_run,omitempty"`
}

// CleanupResp is returned by POST /v1/audit/cleanup.
type CleanupResp struct {
	Deleted       int64 `json:"deleted"`
	RetentionDays int   `json:"retention_days"`
}

// AuditLogsResp is returned by GET /v1/audit/logs.
type AuditLogsResp struct {
	UserID string            `json:"user_id"`
	Logs   []engine.AuditLog `json:"logs"`
}

// ErrorResp is the standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
