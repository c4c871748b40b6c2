package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes for the API.
func (r *Router) setupRoutes() {
	// Ingestion endpoints
	r.mux.HandleFunc("/api/v1/ingest/webfilter", r.handlers.IngestWebFilter)
	r.mux.HandleFunc("/api/v1/ingest/goguardian", r.handlers.IngestGoGuardian)
	r.mux.HandleFunc("/api/v1/ingest/syslog", r.handlers.IngestSyslog)
	r.mux.HandleFunc("/api/v1/inventory/chromebooks", r.handlers.SyncInventory)

	// Device endpoints
	r.mux.HandleFunc("/api/v1/devices/telemetry", r.handlers.RecordTelemetry)
	r.mux.HandleFunc("/api/v1/devices/events", r.handlers.ListDeviceEvents)
	r.mux.HandleFunc("/api/v1/devices", func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodDelete {
			r.handlers.DeleteDevice(w, req)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	r.mux.HandleFunc("/api/v1/ops/offline-sweep", r.handlers.OfflineSweep)

	// Alert endpoints
	r.mux.HandleFunc("/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			r.handlers.ListAlerts(w, req)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	r.mux.HandleFunc("/api/v1/alerts/ack", r.handlers.AcknowledgeAlert)
	r.mux.HandleFunc("/api/v1/alerts/deliveries", r.handlers.ListDeliveries)

	// Metrics endpoints
	r.mux.HandleFunc("/api/v1/services/metrics", r.handlers.GetServiceMetrics)
	r.mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	r.mux.HandleFunc("/health", r.handlers.Health)
}
