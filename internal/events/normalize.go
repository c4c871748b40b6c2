package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/schoolguard/device-guardian/internal/syslog"
)

// ErrNilRequest is returned when there is nothing to normalize.
var ErrNilRequest = errors.New("nil ingest request")

// Severity derives an event severity from its normalized action.
// Only "blocked" is noteworthy; everything else is informational.
func Severity(action string) string {
	if action == "blocked" {
		return SeverityMedium
	}
	return SeverityInfo
}

// Message builds the audit summary "<label> <action>: <target>".
func Message(label, action, target string) string {
	return fmt.Sprintf("%s %s: %s", label, action, target)
}

// EventTime returns the RFC3339 timestamp when it parses, else now.
func EventTime(timestamp string, now time.Time) time.Time {
	if timestamp != "" {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(timestamp)); err == nil {
			return t.UTC()
		}
	}
	return now.UTC()
}

// CleanDeviceHints trims every hint.
func CleanDeviceHints(h DeviceHints) DeviceHints {
	return DeviceHints{
		AssetTag:     strings.TrimSpace(h.AssetTag),
		SerialNumber: strings.TrimSpace(h.SerialNumber),
		Hostname:     strings.TrimSpace(h.Hostname),
		IP:           strings.TrimSpace(h.IP),
		MAC:          strings.TrimSpace(h.MAC),
	}
}

// CleanActivityHints trims the hints, lower-cases the action and defaults the type.
func CleanActivityHints(a ActivityHints) ActivityHints {
	out := ActivityHints{
		Type:      strings.TrimSpace(a.Type),
		URL:       strings.TrimSpace(a.URL),
		Domain:    strings.TrimSpace(a.Domain),
		Action:    strings.ToLower(strings.TrimSpace(a.Action)),
		Category:  strings.TrimSpace(a.Category),
		Rule:      strings.TrimSpace(a.Rule),
		Timestamp: strings.TrimSpace(a.Timestamp),
	}
	if out.Type == "" {
		out.Type = TypeWebAccess
	}
	return out
}

// NormalizeWebhook converts a structured ingest body into a NormalizedEvent.
// source overrides req.Source when non-empty. DeviceID is left unset.
func NormalizeWebhook(source string, req *IngestRequest, now time.Time) (*NormalizedEvent, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if source == "" {
		source = strings.TrimSpace(req.Source)
	}
	if source == "" {
		source = SourceUnknown
	}

	device := CleanDeviceHints(req.Device)
	activity := CleanActivityHints(req.Event)

	return &NormalizedEvent{
		SchoolID:  req.SchoolID,
		EventType: activity.Type,
		Severity:  Severity(activity.Action),
		Source:    source,
		Message:   Message(activity.Type, activity.Action, activity.Target()),
		Payload: WebActivityPayload(WebActivity{
			Source: source,
			Device: device,
			User:   UserHints{Email: strings.TrimSpace(req.User.Email)},
			Event:  activity,
		}),
		CreatedAt: EventTime(activity.Timestamp, now),
	}, nil
}

// NormalizeGoGuardian is NormalizeWebhook with the GoGuardian conventions:
// the source is fixed, every event is web_access and the message is labelled
// with the product name.
func NormalizeGoGuardian(req *IngestRequest, now time.Time) (*NormalizedEvent, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	fixed := *req
	fixed.Event.Type = TypeWebAccess

	ev, err := NormalizeWebhook(SourceGoGuardian, &fixed, now)
	if err != nil {
		return nil, err
	}
	act := ev.Payload.WebActivity.Event
	ev.Message = Message("GoGuardian", act.Action, act.Target())
	return ev, nil
}

// NormalizeSyslog converts parser output into a NormalizedEvent. The raw line
// and the extracted fields are both kept in the payload.
func NormalizeSyslog(schoolID int64, source, line string, f *syslog.Fields, now time.Time) *NormalizedEvent {
	if source == "" {
		source = SourceSonicWall
	}
	if f == nil {
		f = &syslog.Fields{}
	}

	activity := ActivityHints{
		Type:     TypeWebAccess,
		URL:      f.URL,
		Domain:   f.Domain,
		Action:   f.Action,
		Category: f.Category,
	}
	// f.Host is the firewall that emitted the line, not the client device.
	device := DeviceHints{IP: f.IP}

	return &NormalizedEvent{
		SchoolID:  schoolID,
		EventType: activity.Type,
		Severity:  Severity(activity.Action),
		Source:    source,
		Message:   Message(activity.Type, activity.Action, activity.Target()),
		Payload: WebActivityPayload(WebActivity{
			Source: source,
			Device: device,
			User:   UserHints{Email: f.User},
			Event:  activity,
			Raw:    line,
			Syslog: f,
		}),
		CreatedAt: now.UTC(),
	}
}

// NormalizeInventory converts one inventory record into an inventory_sync event.
func NormalizeInventory(schoolID int64, source string, inv Inventory, now time.Time) *NormalizedEvent {
	if source == "" {
		source = SourceGoogle
	}
	return &NormalizedEvent{
		SchoolID:  schoolID,
		EventType: TypeInventorySync,
		Severity:  SeverityInfo,
		Source:    source,
		Message:   "Synced Chromebook " + inv.AssetTag,
		Payload:   InventoryPayload(inv),
		CreatedAt: now.UTC(),
	}
}

// NormalizeTelemetry records a heartbeat as a telemetry event.
func NormalizeTelemetry(schoolID int64, t Telemetry, now time.Time) *NormalizedEvent {
	msg := "Heartbeat received"
	if t.BatteryPercent != nil {
		msg = fmt.Sprintf("Heartbeat received (battery %d%%)", *t.BatteryPercent)
	}
	return &NormalizedEvent{
		SchoolID:  schoolID,
		EventType: TypeTelemetry,
		Severity:  SeverityInfo,
		Source:    SourceHeartbeat,
		Message:   msg,
		Payload:   TelemetryPayload(t),
		CreatedAt: EventTime(t.ReportedAt, now),
	}
}
