// Package alerts persists alert requests and hands them to a dispatcher for
// notification.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/pkg/metrics"
	"github.com/schoolguard/device-guardian/pkg/shared"
)

// ErrSuppressed is returned by Raise when the cool-down window swallowed the request.
var ErrSuppressed = errors.New("alert suppressed by cool-down")

// Store persists alerts.
type Store interface {
	InsertAlert(ctx context.Context, a *database.Alert) error
}

// Dispatcher delivers notifications for a persisted alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *database.Alert) error
}

// Suppressor decides whether a request falls inside an active cool-down.
type Suppressor interface {
	Allow(ctx context.Context, req AlertRequest) (bool, error)
}

// Manager raises alerts. The alert row is committed before any notification
// is attempted, and notification failures never undo it.
type Manager struct {
	store      Store
	dispatcher Dispatcher
	suppressor Suppressor
	metrics    *metrics.Collector
}

// NewManager creates a Manager. suppressor may be nil to disable the cool-down.
func NewManager(store Store, dispatcher Dispatcher, suppressor Suppressor, collector *metrics.Collector) *Manager {
	return &Manager{
		store:      store,
		dispatcher: dispatcher,
		suppressor: suppressor,
		metrics:    collector,
	}
}

// Raise persists req as an alert and dispatches its notifications.
func (m *Manager) Raise(ctx context.Context, req AlertRequest) (*database.Alert, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid alert request: %w", err)
	}

	if m.suppressor != nil {
		allowed, err := m.suppressor.Allow(ctx, req)
		if err != nil {
			// Cool-down errors fail open.
			slog.Warn("Alert cool-down check failed, raising anyway", "school_id", req.SchoolID, "error", err)
		} else if !allowed {
			slog.Debug("Alert suppressed by cool-down",
				"school_id", req.SchoolID,
				"alert_type", req.AlertType,
			)
			m.metrics.IncrementCustom("alerts_suppressed")
			return nil, ErrSuppressed
		}
	}

	alert := &database.Alert{
		SchoolID:  req.SchoolID,
		DeviceID:  req.DeviceID,
		AlertType: req.AlertType,
		Severity:  req.Severity,
		Message:   req.Message,
	}
	if err := m.store.InsertAlert(ctx, alert); err != nil {
		m.metrics.RecordError()
		return nil, fmt.Errorf("failed to persist alert: %w", err)
	}
	m.metrics.RecordAlertRaised()

	slog.Info("Alert raised",
		"alert_id", alert.ID,
		"school_id", alert.SchoolID,
		"device_id", shared.OptionalID(alert.DeviceID),
		"alert_type", alert.AlertType,
		"severity", alert.Severity,
	)

	if err := m.dispatcher.Dispatch(ctx, alert); err != nil {
		slog.Warn("Alert notification incomplete",
			"alert_id", alert.ID,
			"school_id", alert.SchoolID,
			"error", err,
		)
	}
	return alert, nil
}

// RaiseAll raises every request in order. Suppressed requests are skipped;
// the first persistence error stops the loop.
func (m *Manager) RaiseAll(ctx context.Context, reqs []AlertRequest) ([]*database.Alert, error) {
	raised := make([]*database.Alert, 0, len(reqs))
	for _, req := range reqs {
		alert, err := m.Raise(ctx, req)
		if errors.Is(err, ErrSuppressed) {
			continue
		}
		if err != nil {
			return raised, err
		}
		raised = append(raised, alert)
	}
	return raised, nil
}
