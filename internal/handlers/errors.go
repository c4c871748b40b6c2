package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/schoolguard/device-guardian/internal/ingest"
	"github.com/schoolguard/device-guardian/internal/monitor"
)

// writeError maps pipeline and storage errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, ingest.ErrInputMalformed), errors.Is(err, monitor.ErrInvalidTelemetry):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ingest.ErrAuthFailed):
		http.Error(w, "Invalid API key", http.StatusUnauthorized)
	case errors.Is(err, monitor.ErrDeviceNotFound):
		http.Error(w, "Device not found", http.StatusNotFound)
	default:
		handleDBError(w, err, operation)
	}
}

// handleDBError writes the response for a storage error.
func handleDBError(w http.ResponseWriter, err error, operation string) {
	slog.Error("Request failed", "operation", operation, "error", err)

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "not found"):
		http.Error(w, errStr, http.StatusNotFound)
	case strings.Contains(errStr, "already exists"):
		http.Error(w, errStr, http.StatusConflict)
	default:
		http.Error(w, "Failed to "+operation, http.StatusInternalServerError)
	}
}
