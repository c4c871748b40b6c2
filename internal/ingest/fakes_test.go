package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/schoolguard/device-guardian/internal/alerts"
	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/events"
	"github.com/schoolguard/device-guardian/internal/identity"
)

// memStore is an in-memory stand-in for *database.DB covering every store
// interface the pipeline and its collaborators use.
type memStore struct {
	mu         sync.Mutex
	apiKeys    map[int64]string
	devices    []*database.Device
	macs       map[string]int64
	events     []*events.NormalizedEvent
	network    []*database.NetworkUpsert
	rules      []*database.PolicyRule
	alerts     []*database.Alert
	admins     map[int64][]string
	deliveries []*database.AlertDelivery
	insertErr  error
}

func newMemStore() *memStore {
	return &memStore{
		apiKeys: map[int64]string{1: "key-1", 2: "key-2"},
		macs:    make(map[string]int64),
		admins:  make(map[int64][]string),
	}
}

func (s *memStore) addDevice(d *database.Device) *database.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = int64(len(s.devices) + 1)
	s.devices = append(s.devices, d)
	return d
}

func (s *memStore) addDenyRule(schoolID int64, name, domain, severity string) {
	params, _ := json.Marshal(map[string]string{"domain": domain})
	s.rules = append(s.rules, &database.PolicyRule{
		ID:       int64(len(s.rules) + 1),
		SchoolID: schoolID,
		Name:     name,
		Enabled:  true,
		RuleType: "deny_domain",
		Params:   params,
		Severity: severity,
	})
}

func (s *memStore) ValidateAPIKey(ctx context.Context, schoolID int64, key string) (bool, error) {
	return s.apiKeys[schoolID] == key, nil
}

func (s *memStore) InsertEvent(ctx context.Context, ev *events.NormalizedEvent, network *database.NetworkUpsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if network != nil {
		s.network = append(s.network, network)
		if network.MAC != "" {
			s.macs[database.NormalizeMAC(network.MAC)] = network.DeviceID
		}
	}
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}

func (s *memStore) SyncInventoryDevice(ctx context.Context, rec database.InventoryRecord, ev *events.NormalizedEvent) (*database.Device, bool, error) {
	if rec.SerialNumber == "" {
		return nil, false, errors.New("inventory record has no serial number")
	}
	s.mu.Lock()
	var found *database.Device
	for _, d := range s.devices {
		if d.SchoolID == rec.SchoolID && d.SerialNumber == rec.SerialNumber {
			found = d
		}
	}
	s.mu.Unlock()

	created := found == nil
	if created {
		found = s.addDevice(&database.Device{
			SchoolID:     rec.SchoolID,
			SerialNumber: rec.SerialNumber,
			AssetTag:     rec.AssetTag,
			DeviceType:   rec.DeviceType,
			Status:       database.StatusUnknown,
		})
	} else if rec.AssetTag != "" {
		found.AssetTag = rec.AssetTag
	}
	if rec.LastSeen != nil {
		found.LastSeen = rec.LastSeen
		found.Status = database.StatusOnline
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ev.DeviceID = &found.ID
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return found, created, nil
}

func (s *memStore) find(match func(d *database.Device) bool) *database.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if match(d) {
			return d
		}
	}
	return nil
}

func (s *memStore) FindDeviceBySerial(ctx context.Context, schoolID int64, serial string) (*database.Device, error) {
	return s.find(func(d *database.Device) bool { return d.SchoolID == schoolID && d.SerialNumber == serial }), nil
}

func (s *memStore) FindDeviceByAssetTag(ctx context.Context, schoolID int64, tag string) (*database.Device, error) {
	return s.find(func(d *database.Device) bool { return d.SchoolID == schoolID && d.AssetTag == tag }), nil
}

func (s *memStore) FindDeviceByMAC(ctx context.Context, schoolID int64, mac string) (*database.Device, error) {
	s.mu.Lock()
	id, ok := s.macs[database.NormalizeMAC(mac)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.find(func(d *database.Device) bool { return d.ID == id }), nil
}

func (s *memStore) FindDeviceByIP(ctx context.Context, schoolID int64, ip string) (*database.Device, error) {
	return nil, nil
}

func (s *memStore) ListEnabledRules(ctx context.Context, schoolID int64) ([]*database.PolicyRule, error) {
	var out []*database.PolicyRule
	for _, r := range s.rules {
		if r.SchoolID == schoolID && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) InsertAlert(ctx context.Context, a *database.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.alerts) + 1)
	a.CreatedAt = time.Now().UTC()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *memStore) AdminEmails(ctx context.Context, schoolID int64) ([]string, error) {
	return s.admins[schoolID], nil
}

func (s *memStore) RecordDelivery(ctx context.Context, d *database.AlertDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return nil
}

// recordingSender counts notification attempts per recipient.
type recordingSender struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recordingSender) Send(ctx context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[to]++
	return nil
}

// failingEvaluator always errors.
type failingEvaluator struct{}

func (failingEvaluator) Evaluate(ctx context.Context, schoolID int64, device *database.Device, eventType string, act events.Activity) ([]alerts.AlertRequest, error) {
	return nil, errors.New("rules unavailable")
}

var _ identity.Store = (*memStore)(nil)
