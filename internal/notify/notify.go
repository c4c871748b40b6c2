// Package notify defines the AlertCreated message handed from guardian-api to
// the notifier, encoded as a protobuf Struct.
package notify

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/schoolguard/device-guardian/internal/database"
)

// SchemaVersion is written into every message and checked on decode.
const SchemaVersion = 1

// AlertCreated announces a persisted alert that still needs notification fan-out.
type AlertCreated struct {
	SchemaVersion int
	MessageID     string
	AlertID       int64
	SchoolID      int64
	DeviceID      *int64
	AlertType     string
	Severity      string
	Message       string
	CreatedAt     time.Time
}

// FromAlert builds the message for a persisted alert.
func FromAlert(a *database.Alert, messageID string) *AlertCreated {
	return &AlertCreated{
		SchemaVersion: SchemaVersion,
		MessageID:     messageID,
		AlertID:       a.ID,
		SchoolID:      a.SchoolID,
		DeviceID:      a.DeviceID,
		AlertType:     a.AlertType,
		Severity:      a.Severity,
		Message:       a.Message,
		CreatedAt:     a.CreatedAt,
	}
}

// Encode serializes m.
func Encode(m *AlertCreated) ([]byte, error) {
	fields := map[string]any{
		"schema_version": m.SchemaVersion,
		"message_id":     m.MessageID,
		"alert_id":       m.AlertID,
		"school_id":      m.SchoolID,
		"alert_type":     m.AlertType,
		"severity":       m.Severity,
		"message":        m.Message,
		"created_at":     m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.DeviceID != nil {
		fields["device_id"] = *m.DeviceID
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build alert message: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert message: %w", err)
	}
	return data, nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*AlertCreated, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert message: %w", err)
	}
	f := s.GetFields()

	m := &AlertCreated{
		SchemaVersion: int(f["schema_version"].GetNumberValue()),
		MessageID:     f["message_id"].GetStringValue(),
		AlertType:     f["alert_type"].GetStringValue(),
		Severity:      f["severity"].GetStringValue(),
		Message:       f["message"].GetStringValue(),
	}
	if m.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema_version %d", m.SchemaVersion)
	}

	var err error
	if m.AlertID, err = intField(f, "alert_id"); err != nil {
		return nil, err
	}
	if m.SchoolID, err = intField(f, "school_id"); err != nil {
		return nil, err
	}
	if m.AlertID <= 0 || m.SchoolID <= 0 {
		return nil, fmt.Errorf("alert_id and school_id must be positive")
	}
	if _, ok := f["device_id"]; ok {
		id, err := intField(f, "device_id")
		if err != nil {
			return nil, err
		}
		m.DeviceID = &id
	}
	if ts := f["created_at"].GetStringValue(); ts != "" {
		m.CreatedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at: %w", err)
		}
	}
	return m, nil
}

func intField(f map[string]*structpb.Value, name string) (int64, error) {
	v, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("missing %s", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s is not a number", name)
	}
	if n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("%s is not an integer", name)
	}
	return int64(n.NumberValue), nil
}
