package handlers

import (
	"context"

	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/events"
	"github.com/schoolguard/device-guardian/internal/ingest"
	"github.com/schoolguard/device-guardian/internal/monitor"
	"github.com/schoolguard/device-guardian/pkg/metrics"
)

// Ingestor runs inbound events through the pipeline.
type Ingestor interface {
	Authenticate(ctx context.Context, schoolID int64, apiKey string) error
	IngestWebhook(ctx context.Context, req *events.IngestRequest) (*ingest.Result, error)
	IngestGoGuardian(ctx context.Context, req *events.IngestRequest) (*ingest.Result, error)
	IngestSyslog(ctx context.Context, schoolID int64, apiKey, source string, lines []string) (*ingest.SyslogResult, error)
	SyncInventory(ctx context.Context, schoolID int64, apiKey string, page *ingest.InventoryPage) (*ingest.InventoryResult, error)
}

// DeviceMonitor applies telemetry and runs offline sweeps.
type DeviceMonitor interface {
	RecordTelemetry(ctx context.Context, schoolID int64, t events.Telemetry) (*monitor.TelemetryResult, error)
	OfflineSweep(ctx context.Context, schoolID *int64) (int, error)
}

// Repository is the read/maintenance storage surface of the API.
type Repository interface {
	Ping(ctx context.Context) error
	GetDevice(ctx context.Context, deviceID int64) (*database.Device, error)
	DeleteDevice(ctx context.Context, schoolID, deviceID int64) error
	ListDeviceEvents(ctx context.Context, deviceID int64, limit int) ([]*events.NormalizedEvent, error)
	GetAlert(ctx context.Context, alertID int64) (*database.Alert, error)
	ListAlerts(ctx context.Context, schoolID int64, limit, offset int) (*database.AlertListResult, error)
	AcknowledgeAlert(ctx context.Context, schoolID, alertID int64) (*database.Alert, error)
	ListDeliveries(ctx context.Context, alertID int64) ([]*database.AlertDelivery, error)
}

// MetricsReader reads service snapshots published to Redis.
type MetricsReader interface {
	GetAllServiceMetrics(ctx context.Context) (map[string]*metrics.ServiceMetrics, error)
}
