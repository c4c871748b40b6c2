// Package monitor tracks device health: it marks silent devices offline and
// raises threshold alerts from telemetry.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/schoolguard/device-guardian/internal/alerts"
	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/events"
	"github.com/schoolguard/device-guardian/internal/identity"
	"github.com/schoolguard/device-guardian/pkg/metrics"
	"github.com/schoolguard/device-guardian/pkg/shared"
)

var (
	// ErrDeviceNotFound is returned when telemetry cannot be matched to a device.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrInvalidTelemetry is returned for telemetry that fails validation.
	ErrInvalidTelemetry = errors.New("invalid telemetry")
)

// Config holds the monitor thresholds.
type Config struct {
	OfflineThreshold    time.Duration
	LowBatteryThreshold int
	SweepInterval       time.Duration
}

// Store is the device storage the monitor needs.
type Store interface {
	OfflineSweep(ctx context.Context, schoolID *int64, cutoff time.Time) (int, error)
	RecordTelemetry(ctx context.Context, deviceID int64, battery *int, seenAt time.Time, ev *events.NormalizedEvent) (*database.Device, error)
}

// Resolver finds the device a heartbeat belongs to.
type Resolver interface {
	Resolve(ctx context.Context, schoolID int64, hints identity.Hints) (*database.Device, error)
}

// Raiser raises alerts.
type Raiser interface {
	Raise(ctx context.Context, req alerts.AlertRequest) (*database.Alert, error)
}

// Monitor runs the offline sweep and telemetry threshold checks.
type Monitor struct {
	cfg      Config
	store    Store
	resolver Resolver
	alerts   Raiser
	metrics  *metrics.Collector
	now      func() time.Time
}

// New creates a Monitor.
func New(cfg Config, store Store, resolver Resolver, raiser Raiser, collector *metrics.Collector) *Monitor {
	return &Monitor{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		alerts:   raiser,
		metrics:  collector,
		now:      time.Now,
	}
}

// OfflineSweep marks every device whose last_seen is older than the offline
// threshold as offline, for one school or all schools when schoolID is nil.
// Devices never seen are left alone. Running it twice changes nothing the
// second time.
func (m *Monitor) OfflineSweep(ctx context.Context, schoolID *int64) (int, error) {
	cutoff := m.now().UTC().Add(-m.cfg.OfflineThreshold)
	n, err := m.store.OfflineSweep(ctx, schoolID, cutoff)
	if err != nil {
		m.metrics.RecordError()
		return 0, fmt.Errorf("offline sweep failed: %w", err)
	}
	if n > 0 {
		slog.Info("Devices marked offline", "count", n, "school_id", shared.OptionalID(schoolID), "cutoff", cutoff)
		m.metrics.AddCustom("devices_marked_offline", uint64(n))
	}
	return n, nil
}

// EvaluateThresholds raises a low-battery alert when the device's battery is
// at or below the threshold. It returns the alert, or nil when none was raised.
func (m *Monitor) EvaluateThresholds(ctx context.Context, device *database.Device) (*database.Alert, error) {
	if device == nil || device.BatteryPercent == nil {
		return nil, nil
	}
	battery := *device.BatteryPercent
	if battery > m.cfg.LowBatteryThreshold {
		return nil, nil
	}

	id := device.ID
	alert, err := m.alerts.Raise(ctx, alerts.AlertRequest{
		SchoolID:  device.SchoolID,
		DeviceID:  &id,
		AlertType: database.AlertTypeThreshold,
		Severity:  events.SeverityMedium,
		Message:   fmt.Sprintf("Device %s battery is low (%d%%).", deviceLabel(device), battery),
	})
	if errors.Is(err, alerts.ErrSuppressed) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// TelemetryResult is the outcome of one heartbeat.
type TelemetryResult struct {
	Device *database.Device
	Alert  *database.Alert
}

// RecordTelemetry applies a heartbeat: it resolves the device, stores the new
// battery level and last_seen (marking it online), writes a telemetry event
// and evaluates thresholds once.
func (m *Monitor) RecordTelemetry(ctx context.Context, schoolID int64, t events.Telemetry) (*TelemetryResult, error) {
	if t.BatteryPercent != nil && (*t.BatteryPercent < 0 || *t.BatteryPercent > 100) {
		return nil, fmt.Errorf("%w: battery_percent must be between 0 and 100", ErrInvalidTelemetry)
	}
	t.Device = events.CleanDeviceHints(t.Device)
	hints := identity.HintsFrom(t.Device)
	if hints.Empty() {
		return nil, fmt.Errorf("%w: no device identifiers", ErrInvalidTelemetry)
	}

	device, err := m.resolver.Resolve(ctx, schoolID, hints)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device: %w", err)
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}

	ev := events.NormalizeTelemetry(schoolID, t, m.now())
	updated, err := m.store.RecordTelemetry(ctx, device.ID, t.BatteryPercent, ev.CreatedAt, ev)
	if err != nil {
		m.metrics.RecordError()
		return nil, fmt.Errorf("failed to record telemetry: %w", err)
	}
	m.metrics.IncrementCustom("telemetry_received")

	alert, err := m.EvaluateThresholds(ctx, updated)
	if err != nil {
		return nil, err
	}
	return &TelemetryResult{Device: updated, Alert: alert}, nil
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	slog.Info("Device monitor started",
		"sweep_interval", m.cfg.SweepInterval,
		"offline_threshold", m.cfg.OfflineThreshold,
		"low_battery_threshold", m.cfg.LowBatteryThreshold,
	)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Device monitor stopped")
			return
		case <-ticker.C:
			if _, err := m.OfflineSweep(ctx, nil); err != nil {
				slog.Error("Scheduled offline sweep failed", "error", err)
			}
		}
	}
}

func deviceLabel(d *database.Device) string {
	switch {
	case d.AssetTag != "":
		return d.AssetTag
	case d.SerialNumber != "":
		return d.SerialNumber
	default:
		return fmt.Sprintf("#%d", d.ID)
	}
}
