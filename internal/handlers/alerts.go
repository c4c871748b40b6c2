package handlers

import (
	"net/http"
	"strconv"
)

// ListAlerts handles GET /api/v1/alerts?school_id=, newest first.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	schoolID, ok := requireInt64Param(w, r, "school_id")
	if !ok {
		return
	}
	if err := h.ingest.Authenticate(r.Context(), schoolID, apiKey(r)); err != nil {
		writeError(w, err, "authenticate")
		return
	}

	p := parsePagination(r)
	res, err := h.db.ListAlerts(r.Context(), schoolID, p.Limit, p.Offset)
	if err != nil {
		writeError(w, err, "list alerts")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AcknowledgeAlert handles POST /api/v1/alerts/ack?school_id=&alert_id=.
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	schoolID, ok := requireInt64Param(w, r, "school_id")
	if !ok {
		return
	}
	alertID, ok := requireInt64Param(w, r, "alert_id")
	if !ok {
		return
	}
	if err := h.ingest.Authenticate(r.Context(), schoolID, apiKey(r)); err != nil {
		writeError(w, err, "authenticate")
		return
	}

	alert, err := h.db.AcknowledgeAlert(r.Context(), schoolID, alertID)
	if err != nil {
		writeError(w, err, "acknowledge alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// ListDeliveries handles GET /api/v1/alerts/deliveries?school_id=&alert_id=.
func (h *Handlers) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	schoolID, ok := requireInt64Param(w, r, "school_id")
	if !ok {
		return
	}
	alertID, ok := requireInt64Param(w, r, "alert_id")
	if !ok {
		return
	}
	if err := h.ingest.Authenticate(r.Context(), schoolID, apiKey(r)); err != nil {
		writeError(w, err, "authenticate")
		return
	}

	alert, err := h.db.GetAlert(r.Context(), alertID)
	if err != nil {
		writeError(w, err, "get alert")
		return
	}
	if alert.SchoolID != schoolID {
		http.Error(w, "alert not found: "+strconv.FormatInt(alertID, 10), http.StatusNotFound)
		return
	}

	deliveries, err := h.db.ListDeliveries(r.Context(), alertID)
	if err != nil {
		writeError(w, err, "list deliveries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alert":      alert,
		"deliveries": deliveries,
	})
}
