package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/schoolguard/device-guardian/internal/alerts"
	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/events"
	"github.com/schoolguard/device-guardian/internal/identity"
)

// fakeStore keeps devices in memory and applies the same rules as the SQL.
type fakeStore struct {
	mu      sync.Mutex
	devices map[int64]*database.Device
	events  []*events.NormalizedEvent
	err     error
}

func newFakeStore(devices ...*database.Device) *fakeStore {
	s := &fakeStore{devices: make(map[int64]*database.Device)}
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	return s
}

func (s *fakeStore) OfflineSweep(ctx context.Context, schoolID *int64, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	n := 0
	for _, d := range s.devices {
		if schoolID != nil && d.SchoolID != *schoolID {
			continue
		}
		if d.LastSeen != nil && d.LastSeen.Before(cutoff) && d.Status != database.StatusOffline {
			d.Status = database.StatusOffline
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) RecordTelemetry(ctx context.Context, deviceID int64, battery *int, seenAt time.Time, ev *events.NormalizedEvent) (*database.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	d, ok := s.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device not found: %d", deviceID)
	}
	if battery != nil {
		b := *battery
		d.BatteryPercent = &b
	}
	seen := seenAt
	d.LastSeen = &seen
	d.Status = database.StatusOnline
	ev.DeviceID = &d.ID
	s.events = append(s.events, ev)
	out := *d
	return &out, nil
}

// fakeResolver matches on serial within the school.
type fakeResolver struct {
	store *fakeStore
}

func (r *fakeResolver) Resolve(ctx context.Context, schoolID int64, hints identity.Hints) (*database.Device, error) {
	for _, d := range r.store.devices {
		if d.SchoolID == schoolID && d.SerialNumber == hints.Serial {
			return d, nil
		}
	}
	return nil, nil
}

// fakeRaiser records alert requests.
type fakeRaiser struct {
	requests []alerts.AlertRequest
	err      error
}

func (f *fakeRaiser) Raise(ctx context.Context, req alerts.AlertRequest) (*database.Alert, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &database.Alert{
		ID:        int64(len(f.requests)),
		SchoolID:  req.SchoolID,
		DeviceID:  req.DeviceID,
		AlertType: req.AlertType,
		Severity:  req.Severity,
		Message:   req.Message,
	}, nil
}
