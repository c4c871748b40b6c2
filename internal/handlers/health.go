package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Health handles GET /health. It answers 503 when the database is unreachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		slog.Warn("Health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// GetServiceMetrics handles GET /api/v1/services/metrics, returning the
// snapshots every guardian process publishes to Redis.
func (h *Handlers) GetServiceMetrics(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if h.metrics == nil {
		http.Error(w, "service metrics unavailable: redis not configured", http.StatusServiceUnavailable)
		return
	}

	all, err := h.metrics.GetAllServiceMetrics(r.Context())
	if err != nil {
		writeError(w, err, "read service metrics")
		return
	}
	writeJSON(w, http.StatusOK, all)
}
