package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/schoolguard/device-guardian/internal/events"
	"github.com/schoolguard/device-guardian/internal/ingest"
)

// IngestWebFilter handles POST /api/v1/ingest/webfilter.
func (h *Handlers) IngestWebFilter(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req events.IngestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.APIKey == "" {
		req.APIKey = apiKey(r)
	}

	res, err := h.ingest.IngestWebhook(r.Context(), &req)
	if err != nil {
		writeError(w, err, "ingest event")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// IngestGoGuardian handles POST /api/v1/ingest/goguardian.
func (h *Handlers) IngestGoGuardian(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req events.IngestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.APIKey == "" {
		req.APIKey = apiKey(r)
	}

	res, err := h.ingest.IngestGoGuardian(r.Context(), &req)
	if err != nil {
		writeError(w, err, "ingest event")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// IngestSyslog handles POST /api/v1/ingest/syslog?school_id=&source=. The body
// is raw log text or JSON with "message"/"messages".
func (h *Handlers) IngestSyslog(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	schoolID, ok := requireInt64Param(w, r, "school_id")
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	lines, err := ingest.SyslogLines(body)
	if err != nil {
		writeError(w, err, "parse syslog body")
		return
	}

	source := strings.TrimSpace(r.URL.Query().Get("source"))
	res, err := h.ingest.IngestSyslog(r.Context(), schoolID, apiKey(r), source, lines)
	if err != nil {
		writeError(w, err, "ingest syslog")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SyncInventory handles POST /api/v1/inventory/chromebooks?school_id=.
func (h *Handlers) SyncInventory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	schoolID, ok := requireInt64Param(w, r, "school_id")
	if !ok {
		return
	}
	var page ingest.InventoryPage
	if !decodeJSON(w, r, &page) {
		return
	}

	res, err := h.ingest.SyncInventory(r.Context(), schoolID, apiKey(r), &page)
	if err != nil {
		writeError(w, err, "sync inventory")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
