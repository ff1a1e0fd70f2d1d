package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// handleValidate implements POST /v1/validate.
func (d *Dependencies) handleValidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ValidateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Output == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "output is required"})
		return
	}

	result := d.Engine.ValidateOutput(r.Context(), req.Query, *req.Output, req.Context)
	elapsed := time.Since(start)

	if !req.DryRun {
		userID, tier := "anonymous", ""
		if req.Context != nil {
			if req.Context.UserID != "" {
				userID = req.Context.UserID
			}
			tier = req.Context.Tier
		}
		d.Engine.LogValidation(result, userID, req.Query, *req.Output, tier, elapsed)
	}

	if !result.IsValid {
		d.Logger.Debug("validation failed",
			zap.Int("violations", len(result.Violations)),
			zap.Float64("compliance_score", result.ComplianceScore),
		)
	}
	writeJSON(w, http.StatusOK, result)
}
