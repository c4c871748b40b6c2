// Package events defines the canonical event shape shared by every ingestion
// source and the functions that normalize source payloads into it.
package events

import "time"

// Event types.
const (
	TypeWebAccess     = "web_access"
	TypeDNSQuery      = "dns_query"
	TypeInventorySync = "inventory_sync"
	TypeTelemetry     = "telemetry"
)

// Severities, shared with alerts and policy rules.
const (
	SeverityInfo   = "info"
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Well-known sources.
const (
	SourceUnknown    = "unknown"
	SourceGoGuardian = "goguardian"
	SourceSonicWall  = "sonicwall"
	SourceGoogle     = "google"
	SourceHeartbeat  = "heartbeat"
)

// ValidSeverity reports whether s is one of the known severities.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// NormalizedEvent is one append-only row of the event log.
type NormalizedEvent struct {
	ID        int64     `json:"id"`
	SchoolID  int64     `json:"school_id"`
	DeviceID  *int64    `json:"device_id,omitempty"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// DeviceHints are the identifying fields an event may carry.
type DeviceHints struct {
	AssetTag     string `json:"asset_tag"`
	SerialNumber string `json:"serial_number"`
	Hostname     string `json:"hostname"`
	IP           string `json:"ip"`
	MAC          string `json:"mac"`
}

// HasNetwork reports whether the hints carry anything worth recording as a network identity.
func (h DeviceHints) HasNetwork() bool {
	return h.MAC != "" || h.IP != "" || h.Hostname != ""
}

// UserHints identify the person behind an event.
type UserHints struct {
	Email string `json:"email"`
}

// ActivityHints describe what happened.
type ActivityHints struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	Action    string `json:"action"`
	Category  string `json:"category"`
	Rule      string `json:"rule,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Target returns the domain when present, otherwise the URL.
func (a ActivityHints) Target() string {
	if a.Domain != "" {
		return a.Domain
	}
	return a.URL
}

// IngestRequest is the source-agnostic webhook body.
type IngestRequest struct {
	APIKey   string        `json:"api_key"`
	SchoolID int64         `json:"school_id"`
	Source   string        `json:"source"`
	Device   DeviceHints   `json:"device"`
	User     UserHints     `json:"user"`
	Event    ActivityHints `json:"event"`
}

// Activity is the subset of an event that policy rules inspect.
type Activity struct {
	URL      string
	Domain   string
	Action   string
	Category string
}

// ActivityFrom projects activity hints onto the policy view.
func ActivityFrom(a ActivityHints) Activity {
	return Activity{
		URL:      a.URL,
		Domain:   a.Domain,
		Action:   a.Action,
		Category: a.Category,
	}
}
