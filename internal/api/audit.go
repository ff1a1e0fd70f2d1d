package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/engine"
)

const (
	defaultLogsLimit = 100
	maxLogsLimit     = 1000
	defaultStatsSpan = 24 * time.Hour
)

// handleAuditLogs implements GET /v1/audit/logs?user_id=&limit=&since=.
func (d *Dependencies) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "user_id is required"})
		return
	}

	limit := defaultLogsLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLogsLimit)
	}

	var since time.Time
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "since must be RFC3339"})
			return
		}
		since = t
	}

	logs, err := d.Audit.LogsForUser(r.Context(), userID, engine.LogQuery{Limit: limit, Since: since})
	if err != nil {
		d.Logger.Error("failed to read audit logs", zap.String("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to read audit logs"})
		return
	}
	if logs == nil {
		logs = []engine.AuditLog{}
	}
	writeJSON(w, http.StatusOK, AuditLogsResp{UserID: userID, Logs: logs})
}

// handleAuditStats implements GET /v1/audit/stats?start=&end=. The window
// defaults to the last 24 hours.
func (d *Dependencies) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	end := time.Now().UTC()
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "end must be RFC3339"})
			return
		}
		end = t
	}
	start := end.Add(-defaultStatsSpan)
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "start must be RFC3339"})
			return
		}
		start = t
	}
	if end.Before(start) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "end must not be before start"})
		return
	}

	stats, err := d.Audit.GetComplianceStats(r.Context(), start, end)
	if err != nil {
		d.Logger.Error("failed to compute compliance stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to compute stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (d *Dependencies) handleAuditFlush(w http.ResponseWriter, r *http.Request) {
	if err := d.Audit.Flush(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, ErrorResp{Detail: "Flush failed, records re-queued"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (d *Dependencies) handleAuditCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := d.Audit.CleanupOldLogs(r.Context())
	if err != nil {
		d.Logger.Error("audit cleanup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Cleanup failed"})
		return
	}
	writeJSON(w, http.StatusOK, CleanupResp{Deleted: n, RetentionDays: d.Audit.Retention()})
}
