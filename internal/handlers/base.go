// Package handlers provides the HTTP handlers for guardian-api.
package handlers

// Handlers wraps dependencies for HTTP handlers.
type Handlers struct {
	ingest  Ingestor
	monitor DeviceMonitor
	db      Repository
	metrics MetricsReader
}

// NewHandlers creates the handler set. metricsReader may be nil when Redis is
// not configured; the service metrics endpoint then answers 503.
func NewHandlers(ingestor Ingestor, mon DeviceMonitor, db Repository, metricsReader MetricsReader) *Handlers {
	return &Handlers{
		ingest:  ingestor,
		monitor: mon,
		db:      db,
		metrics: metricsReader,
	}
}
