package api

import "net/http"

func (d *Dependencies) handleGetMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.Engine.GetComplianceMetrics())
}

func (d *Dependencies) handleResetMetrics(w http.ResponseWriter, _ *http.Request) {
	d.Engine.ResetMetrics()
	writeJSON(w, http.StatusOK, d.Engine.GetComplianceMetrics())
}
