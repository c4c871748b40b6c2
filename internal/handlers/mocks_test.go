package handlers

import (
	"context"

	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/events"
	"github.com/schoolguard/device-guardian/internal/ingest"
	"github.com/schoolguard/device-guardian/internal/monitor"
	"github.com/schoolguard/device-guardian/pkg/metrics"
)

const testKey = "k-1"

// mockIngestor implements Ingestor. Authenticate accepts school 1 with testKey
// unless AuthenticateFn is set.
type mockIngestor struct {
	AuthenticateFn     func(ctx context.Context, schoolID int64, apiKey string) error
	IngestWebhookFn    func(ctx context.Context, req *events.IngestRequest) (*ingest.Result, error)
	IngestGoGuardianFn func(ctx context.Context, req *events.IngestRequest) (*ingest.Result, error)
	IngestSyslogFn     func(ctx context.Context, schoolID int64, apiKey, source string, lines []string) (*ingest.SyslogResult, error)
	SyncInventoryFn    func(ctx context.Context, schoolID int64, apiKey string, page *ingest.InventoryPage) (*ingest.InventoryResult, error)
}

func (m *mockIngestor) Authenticate(ctx context.Context, schoolID int64, apiKey string) error {
	if m.AuthenticateFn != nil {
		return m.AuthenticateFn(ctx, schoolID, apiKey)
	}
	if schoolID <= 0 || apiKey == "" {
		return ingest.ErrInputMalformed
	}
	if schoolID != 1 || apiKey != testKey {
		return ingest.ErrAuthFailed
	}
	return nil
}

func (m *mockIngestor) IngestWebhook(ctx context.Context, req *events.IngestRequest) (*ingest.Result, error) {
	if m.IngestWebhookFn != nil {
		return m.IngestWebhookFn(ctx, req)
	}
	return &ingest.Result{Event: &events.NormalizedEvent{ID: 1, SchoolID: req.SchoolID}}, nil
}

func (m *mockIngestor) IngestGoGuardian(ctx context.Context, req *events.IngestRequest) (*ingest.Result, error) {
	if m.IngestGoGuardianFn != nil {
		return m.IngestGoGuardianFn(ctx, req)
	}
	return &ingest.Result{Event: &events.NormalizedEvent{ID: 2, SchoolID: req.SchoolID, Source: events.SourceGoGuardian}}, nil
}

func (m *mockIngestor) IngestSyslog(ctx context.Context, schoolID int64, apiKey, source string, lines []string) (*ingest.SyslogResult, error) {
	if m.IngestSyslogFn != nil {
		return m.IngestSyslogFn(ctx, schoolID, apiKey, source, lines)
	}
	return &ingest.SyslogResult{Received: len(lines), Parsed: len(lines)}, nil
}

func (m *mockIngestor) SyncInventory(ctx context.Context, schoolID int64, apiKey string, page *ingest.InventoryPage) (*ingest.InventoryResult, error) {
	if m.SyncInventoryFn != nil {
		return m.SyncInventoryFn(ctx, schoolID, apiKey, page)
	}
	return &ingest.InventoryResult{Received: len(page.Devices), Created: len(page.Devices)}, nil
}

// mockMonitor implements DeviceMonitor.
type mockMonitor struct {
	RecordTelemetryFn func(ctx context.Context, schoolID int64, t events.Telemetry) (*monitor.TelemetryResult, error)
	OfflineSweepFn    func(ctx context.Context, schoolID *int64) (int, error)
}

func (m *mockMonitor) RecordTelemetry(ctx context.Context, schoolID int64, t events.Telemetry) (*monitor.TelemetryResult, error) {
	if m.RecordTelemetryFn != nil {
		return m.RecordTelemetryFn(ctx, schoolID, t)
	}
	return &monitor.TelemetryResult{Device: &database.Device{ID: 7, SchoolID: schoolID, Status: "online"}}, nil
}

func (m *mockMonitor) OfflineSweep(ctx context.Context, schoolID *int64) (int, error) {
	if m.OfflineSweepFn != nil {
		return m.OfflineSweepFn(ctx, schoolID)
	}
	return 0, nil
}

// mockRepository implements Repository. Devices and alerts default to school 1.
type mockRepository struct {
	PingFn             func(ctx context.Context) error
	GetDeviceFn        func(ctx context.Context, deviceID int64) (*database.Device, error)
	DeleteDeviceFn     func(ctx context.Context, schoolID, deviceID int64) error
	ListDeviceEventsFn func(ctx context.Context, deviceID int64, limit int) ([]*events.NormalizedEvent, error)
	GetAlertFn         func(ctx context.Context, alertID int64) (*database.Alert, error)
	ListAlertsFn       func(ctx context.Context, schoolID int64, limit, offset int) (*database.AlertListResult, error)
	AcknowledgeAlertFn func(ctx context.Context, schoolID, alertID int64) (*database.Alert, error)
	ListDeliveriesFn   func(ctx context.Context, alertID int64) ([]*database.AlertDelivery, error)
}

func (m *mockRepository) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return nil
}

func (m *mockRepository) GetDevice(ctx context.Context, deviceID int64) (*database.Device, error) {
	if m.GetDeviceFn != nil {
		return m.GetDeviceFn(ctx, deviceID)
	}
	return &database.Device{ID: deviceID, SchoolID: 1}, nil
}

func (m *mockRepository) DeleteDevice(ctx context.Context, schoolID, deviceID int64) error {
	if m.DeleteDeviceFn != nil {
		return m.DeleteDeviceFn(ctx, schoolID, deviceID)
	}
	return nil
}

func (m *mockRepository) ListDeviceEvents(ctx context.Context, deviceID int64, limit int) ([]*events.NormalizedEvent, error) {
	if m.ListDeviceEventsFn != nil {
		return m.ListDeviceEventsFn(ctx, deviceID, limit)
	}
	return []*events.NormalizedEvent{}, nil
}

func (m *mockRepository) GetAlert(ctx context.Context, alertID int64) (*database.Alert, error) {
	if m.GetAlertFn != nil {
		return m.GetAlertFn(ctx, alertID)
	}
	return &database.Alert{ID: alertID, SchoolID: 1}, nil
}

func (m *mockRepository) ListAlerts(ctx context.Context, schoolID int64, limit, offset int) (*database.AlertListResult, error) {
	if m.ListAlertsFn != nil {
		return m.ListAlertsFn(ctx, schoolID, limit, offset)
	}
	return &database.AlertListResult{Alerts: []*database.Alert{}, Limit: limit, Offset: offset}, nil
}

func (m *mockRepository) AcknowledgeAlert(ctx context.Context, schoolID, alertID int64) (*database.Alert, error) {
	if m.AcknowledgeAlertFn != nil {
		return m.AcknowledgeAlertFn(ctx, schoolID, alertID)
	}
	return &database.Alert{ID: alertID, SchoolID: schoolID, Acknowledged: true}, nil
}

func (m *mockRepository) ListDeliveries(ctx context.Context, alertID int64) ([]*database.AlertDelivery, error) {
	if m.ListDeliveriesFn != nil {
		return m.ListDeliveriesFn(ctx, alertID)
	}
	return []*database.AlertDelivery{}, nil
}

// mockMetricsReader implements MetricsReader.
type mockMetricsReader struct {
	GetAllFn func(ctx context.Context) (map[string]*metrics.ServiceMetrics, error)
}

func (m *mockMetricsReader) GetAllServiceMetrics(ctx context.Context) (map[string]*metrics.ServiceMetrics, error) {
	if m.GetAllFn != nil {
		return m.GetAllFn(ctx)
	}
	return map[string]*metrics.ServiceMetrics{}, nil
}

func newTestHandlers() (*Handlers, *mockIngestor, *mockMonitor, *mockRepository) {
	ing := &mockIngestor{}
	mon := &mockMonitor{}
	repo := &mockRepository{}
	return NewHandlers(ing, mon, repo, &mockMetricsReader{}), ing, mon, repo
}
