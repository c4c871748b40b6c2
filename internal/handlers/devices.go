package handlers

import (
	"net/http"
	"strconv"

	"github.com/schoolguard/device-guardian/internal/events"
)

// TelemetryRequest is the body of POST /api/v1/devices/telemetry.
type TelemetryRequest struct {
	APIKey         string             `json:"api_key"`
	SchoolID       int64              `json:"school_id"`
	Device         events.DeviceHints `json:"device"`
	BatteryPercent *int               `json:"battery_percent"`
	ReportedAt     string             `json:"reported_at"`
}

// RecordTelemetry handles POST /api/v1/devices/telemetry.
func (h *Handlers) RecordTelemetry(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req TelemetryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.APIKey == "" {
		req.APIKey = apiKey(r)
	}
	if err := h.ingest.Authenticate(r.Context(), req.SchoolID, req.APIKey); err != nil {
		writeError(w, err, "authenticate")
		return
	}

	res, err := h.monitor.RecordTelemetry(r.Context(), req.SchoolID, events.Telemetry{
		Device:         req.Device,
		BatteryPercent: req.BatteryPercent,
		ReportedAt:     req.ReportedAt,
	})
	if err != nil {
		writeError(w, err, "record telemetry")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// OfflineSweep handles POST /api/v1/ops/offline-sweep?school_id=.
func (h *Handlers) OfflineSweep(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
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

	n, err := h.monitor.OfflineSweep(r.Context(), &schoolID)
	if err != nil {
		writeError(w, err, "run offline sweep")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked_offline": n})
}

// ListDeviceEvents handles GET /api/v1/devices/events?school_id=&device_id=&limit=.
func (h *Handlers) ListDeviceEvents(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	schoolID, deviceID, ok := h.authorizeDevice(w, r)
	if !ok {
		return
	}

	p := parsePagination(r)
	evs, err := h.db.ListDeviceEvents(r.Context(), deviceID, p.Limit)
	if err != nil {
		writeError(w, err, "list device events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"school_id": schoolID,
		"device_id": deviceID,
		"events":    evs,
	})
}

// DeleteDevice handles DELETE /api/v1/devices?school_id=&device_id=.
func (h *Handlers) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	schoolID, deviceID, ok := h.authorizeDevice(w, r)
	if !ok {
		return
	}

	if err := h.db.DeleteDevice(r.Context(), schoolID, deviceID); err != nil {
		writeError(w, err, "delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizeDevice authenticates the school and checks that device_id belongs to it.
func (h *Handlers) authorizeDevice(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	schoolID, ok := requireInt64Param(w, r, "school_id")
	if !ok {
		return 0, 0, false
	}
	deviceID, ok := requireInt64Param(w, r, "device_id")
	if !ok {
		return 0, 0, false
	}
	if err := h.ingest.Authenticate(r.Context(), schoolID, apiKey(r)); err != nil {
		writeError(w, err, "authenticate")
		return 0, 0, false
	}

	device, err := h.db.GetDevice(r.Context(), deviceID)
	if err != nil {
		writeError(w, err, "get device")
		return 0, 0, false
	}
	if device.SchoolID != schoolID {
		http.Error(w, "device not found: "+strconv.FormatInt(deviceID, 10), http.StatusNotFound)
		return 0, 0, false
	}
	return schoolID, deviceID, true
}
