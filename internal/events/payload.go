package events

import (
	"encoding/json"
	"fmt"

	"github.com/schoolguard/device-guardian/internal/syslog"
)

// PayloadKind tags the variant held by a Payload.
type PayloadKind string

// Payload kinds.
const (
	KindWebActivity PayloadKind = "web_activity"
	KindInventory   PayloadKind = "inventory"
	KindTelemetry   PayloadKind = "telemetry"
)

// WebActivity is the lossless hint bundle of a web-filter event.
type WebActivity struct {
	Source string         `json:"source"`
	Device DeviceHints    `json:"device"`
	User   UserHints      `json:"user"`
	Event  ActivityHints  `json:"event"`
	Raw    string         `json:"raw,omitempty"`
	Syslog *syslog.Fields `json:"syslog,omitempty"`
}

// Inventory is one device record produced by an inventory sync.
type Inventory struct {
	ExternalID   string `json:"external_id"`
	SerialNumber string `json:"serial_number"`
	AssetTag     string `json:"asset_tag"`
	Model        string `json:"model"`
	OSVersion    string `json:"os_version"`
	OrgUnitPath  string `json:"org_unit"`
	LastSync     string `json:"last_sync"`
}

// Telemetry is a device heartbeat.
type Telemetry struct {
	Device         DeviceHints `json:"device"`
	BatteryPercent *int        `json:"battery_percent,omitempty"`
	ReportedAt     string      `json:"reported_at,omitempty"`
}

// Payload is a tagged union. Exactly one variant pointer is set and matches Kind.
// It encodes as {"kind": ..., "data": {...}}.
type Payload struct {
	Kind        PayloadKind
	WebActivity *WebActivity
	Inventory   *Inventory
	Telemetry   *Telemetry
}

type envelope struct {
	Kind PayloadKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// WebActivityPayload wraps w.
func WebActivityPayload(w WebActivity) Payload {
	return Payload{Kind: KindWebActivity, WebActivity: &w}
}

// InventoryPayload wraps inv.
func InventoryPayload(inv Inventory) Payload {
	return Payload{Kind: KindInventory, Inventory: &inv}
}

// TelemetryPayload wraps t.
func TelemetryPayload(t Telemetry) Payload {
	return Payload{Kind: KindTelemetry, Telemetry: &t}
}

// Validate checks that the variant matching Kind is present.
func (p Payload) Validate() error {
	switch p.Kind {
	case KindWebActivity:
		if p.WebActivity == nil {
			return fmt.Errorf("payload kind %s has no data", p.Kind)
		}
	case KindInventory:
		if p.Inventory == nil {
			return fmt.Errorf("payload kind %s has no data", p.Kind)
		}
	case KindTelemetry:
		if p.Telemetry == nil {
			return fmt.Errorf("payload kind %s has no data", p.Kind)
		}
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	return nil
}

// MarshalJSON encodes the envelope form.
func (p Payload) MarshalJSON() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var data any
	switch p.Kind {
	case KindWebActivity:
		data = p.WebActivity
	case KindInventory:
		data = p.Inventory
	case KindTelemetry:
		data = p.Telemetry
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", p.Kind, err)
	}
	return json.Marshal(envelope{Kind: p.Kind, Data: raw})
}

// UnmarshalJSON decodes the envelope form, rejecting unknown kinds.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("failed to decode payload envelope: %w", err)
	}

	out := Payload{Kind: env.Kind}
	var target any
	switch env.Kind {
	case KindWebActivity:
		out.WebActivity = &WebActivity{}
		target = out.WebActivity
	case KindInventory:
		out.Inventory = &Inventory{}
		target = out.Inventory
	case KindTelemetry:
		out.Telemetry = &Telemetry{}
		target = out.Telemetry
	default:
		return fmt.Errorf("unknown payload kind %q", env.Kind)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", env.Kind, err)
		}
	}
	*p = out
	return nil
}
