package database

import (
	"encoding/json"
	"time"
)

// Device statuses.
const (
	StatusUnknown = "unknown"
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Alert types.
const (
	AlertTypeThreshold  = "threshold"
	AlertTypeSecurity   = "security"
	AlertTypeCompliance = "compliance"
)

// Delivery statuses.
const (
	DeliverySent   = "SENT"
	DeliveryFailed = "FAILED"
)

// Device represents a device record in the database.
type Device struct {
	ID             int64      `json:"id"`
	SchoolID       int64      `json:"school_id"`
	SerialNumber   string     `json:"serial_number"`
	AssetTag       string     `json:"asset_tag"`
	DeviceName     string     `json:"device_name,omitempty"`
	DeviceType     string     `json:"device_type,omitempty"`
	Status         string     `json:"status"`
	BatteryPercent *int       `json:"battery_percent,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NetworkUpsert is the enrichment written alongside an event for a resolved device.
type NetworkUpsert struct {
	DeviceID int64
	MAC      string
	IP       string
	Hostname string
	SeenAt   time.Time
}

// PolicyRule represents a policy rule record. Params are decoded per RuleType by the policy engine.
type PolicyRule struct {
	ID        int64           `json:"id"`
	SchoolID  int64           `json:"school_id"`
	Name      string          `json:"name"`
	Enabled   bool            `json:"enabled"`
	RuleType  string          `json:"rule_type"`
	Params    json.RawMessage `json:"params"`
	Severity  string          `json:"severity"`
	CreatedAt time.Time       `json:"created_at"`
}

// Alert represents an alert record in the database.
type Alert struct {
	ID           int64     `json:"id"`
	SchoolID     int64     `json:"school_id"`
	DeviceID     *int64    `json:"device_id,omitempty"`
	AlertType    string    `json:"alert_type"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}

// AlertDelivery records the outcome of notifying one recipient about one alert.
type AlertDelivery struct {
	AlertID   int64     `json:"alert_id"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlertListResult contains paginated alert results.
type AlertListResult struct {
	Alerts []*Alert `json:"alerts"`
	Total  int64    `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}
