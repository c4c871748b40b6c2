// Package ingest runs inbound events through parse, normalize, resolve,
// persist, evaluate and alert.
package ingest

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
)

var (
	// ErrInputMalformed means the request could not be processed at all.
	ErrInputMalformed = errors.New("malformed input")
	// ErrAuthFailed means the school/API key pair was rejected.
	ErrAuthFailed = errors.New("authentication failed")
)

// Store is the persistence the pipeline writes through.
type Store interface {
	ValidateAPIKey(ctx context.Context, schoolID int64, key string) (bool, error)
	InsertEvent(ctx context.Context, ev *events.NormalizedEvent, network *database.NetworkUpsert) error
	SyncInventoryDevice(ctx context.Context, rec database.InventoryRecord, ev *events.NormalizedEvent) (*database.Device, bool, error)
}

// Resolver correlates device hints with a known device.
type Resolver interface {
	ResolveWithMethod(ctx context.Context, schoolID int64, hints identity.Hints) (*database.Device, identity.Method, error)
}

// Evaluator matches an event against the school's policy rules.
type Evaluator interface {
	Evaluate(ctx context.Context, schoolID int64, device *database.Device, eventType string, act events.Activity) ([]alerts.AlertRequest, error)
}

// Raiser persists and notifies alerts.
type Raiser interface {
	RaiseAll(ctx context.Context, reqs []alerts.AlertRequest) ([]*database.Alert, error)
}

// Pipeline wires the ingestion stages together. Requests are independent and
// may be processed concurrently.
type Pipeline struct {
	store     Store
	resolver  Resolver
	evaluator Evaluator
	alerts    Raiser
	metrics   *metrics.Collector
	now       func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(store Store, resolver Resolver, evaluator Evaluator, raiser Raiser, collector *metrics.Collector) *Pipeline {
	return &Pipeline{
		store:     store,
		resolver:  resolver,
		evaluator: evaluator,
		alerts:    raiser,
		metrics:   collector,
		now:       time.Now,
	}
}

// Result describes what one event produced.
type Result struct {
	Event    *events.NormalizedEvent `json:"event"`
	DeviceID *int64                  `json:"device_id,omitempty"`
	Method   identity.Method         `json:"resolved_by,omitempty"`
	Alerts   []*database.Alert       `json:"alerts"`
}

// Authenticate checks the school's API key. A missing key or school is
// ErrInputMalformed and a wrong key is ErrAuthFailed.
func (p *Pipeline) Authenticate(ctx context.Context, schoolID int64, apiKey string) error {
	if schoolID <= 0 {
		return fmt.Errorf("%w: school_id is required", ErrInputMalformed)
	}
	if apiKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInputMalformed)
	}
	ok, err := p.store.ValidateAPIKey(ctx, schoolID, apiKey)
	if err != nil {
		return fmt.Errorf("failed to validate api key: %w", err)
	}
	if !ok {
		slog.Warn("Rejected API key", "school_id", schoolID)
		return ErrAuthFailed
	}
	return nil
}

// IngestWebhook processes a structured web-filter event.
func (p *Pipeline) IngestWebhook(ctx context.Context, req *events.IngestRequest) (*Result, error) {
	return p.ingestRequest(ctx, req, func(r *events.IngestRequest, now time.Time) (*events.NormalizedEvent, error) {
		return events.NormalizeWebhook("", r, now)
	})
}

// IngestGoGuardian processes a GoGuardian webhook.
func (p *Pipeline) IngestGoGuardian(ctx context.Context, req *events.IngestRequest) (*Result, error) {
	return p.ingestRequest(ctx, req, events.NormalizeGoGuardian)
}

func (p *Pipeline) ingestRequest(ctx context.Context, req *events.IngestRequest, normalize func(*events.IngestRequest, time.Time) (*events.NormalizedEvent, error)) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInputMalformed)
	}
	if err := p.Authenticate(ctx, req.SchoolID, req.APIKey); err != nil {
		return nil, err
	}
	p.metrics.RecordEventReceived()

	ev, err := normalize(req, p.now())
	if err != nil {
		p.metrics.RecordEventRejected()
		return nil, fmt.Errorf("%w: %v", ErrInputMalformed, err)
	}
	return p.process(ctx, ev)
}

// process resolves, persists, evaluates and alerts one web-activity event.
// Once the event is stored, evaluation and alerting errors are logged and
// never undo it.
func (p *Pipeline) process(ctx context.Context, ev *events.NormalizedEvent) (*Result, error) {
	start := time.Now()
	wa := ev.Payload.WebActivity
	if wa == nil {
		return nil, fmt.Errorf("%w: event has no web activity payload", ErrInputMalformed)
	}

	device, method, err := p.resolver.ResolveWithMethod(ctx, ev.SchoolID, identity.HintsFrom(wa.Device))
	if err != nil {
		p.metrics.RecordError()
		return nil, fmt.Errorf("failed to resolve device: %w", err)
	}

	var network *database.NetworkUpsert
	if device != nil {
		ev.DeviceID = &device.ID
		if wa.Device.HasNetwork() {
			network = &database.NetworkUpsert{
				DeviceID: device.ID,
				MAC:      wa.Device.MAC,
				IP:       wa.Device.IP,
				Hostname: wa.Device.Hostname,
				SeenAt:   p.now().UTC(),
			}
		}
	} else {
		slog.Debug("Event not matched to a device", "school_id", ev.SchoolID, "source", ev.Source)
	}

	if err := p.store.InsertEvent(ctx, ev, network); err != nil {
		p.metrics.RecordError()
		return nil, fmt.Errorf("failed to store event: %w", err)
	}
	p.metrics.RecordEventStored(time.Since(start))

	result := &Result{Event: ev, DeviceID: ev.DeviceID, Method: method, Alerts: []*database.Alert{}}

	reqs, err := p.evaluator.Evaluate(ctx, ev.SchoolID, device, ev.EventType, events.ActivityFrom(wa.Event))
	if err != nil {
		p.metrics.RecordError()
		slog.Error("Policy evaluation failed", "event_id", ev.ID, "school_id", ev.SchoolID, "error", err)
		return result, nil
	}
	if len(reqs) == 0 {
		return result, nil
	}

	raised, err := p.alerts.RaiseAll(ctx, reqs)
	result.Alerts = append(result.Alerts, raised...)
	if err != nil {
		slog.Error("Failed to raise alerts", "event_id", ev.ID, "school_id", ev.SchoolID, "error", err)
	}
	return result, nil
}
