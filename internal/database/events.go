package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/schoolguard/device-guardian/internal/events"
)

func insertEvent(ctx context.Context, q queryer, ev *events.NormalizedEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO events (school_id, device_id, event_type, severity, source, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = q.QueryRowContext(ctx, query,
		ev.SchoolID,
		nullInt64(ev.DeviceID),
		ev.EventType,
		ev.Severity,
		ev.Source,
		ev.Message,
		payload,
		ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// InsertEvent appends ev to the event log and, when network is non-nil,
// upserts the device's network identity in the same transaction. ev.ID is set
// on success; on failure nothing is written.
func (db *DB) InsertEvent(ctx context.Context, ev *events.NormalizedEvent, network *NetworkUpsert) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if network != nil {
			if err := upsertNetworkIdentity(ctx, tx, network); err != nil {
				return err
			}
		}
		return insertEvent(ctx, tx, ev)
	})
}

// ListDeviceEvents returns the newest events recorded for a device.
func (db *DB) ListDeviceEvents(ctx context.Context, deviceID int64, limit int) ([]*events.NormalizedEvent, error) {
	query := `
		SELECT id, school_id, device_id, event_type, severity, source, message, payload, created_at
		FROM events
		WHERE device_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var result []*events.NormalizedEvent
	for rows.Next() {
		var ev events.NormalizedEvent
		var dev sql.NullInt64
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.SchoolID, &dev, &ev.EventType, &ev.Severity, &ev.Source, &ev.Message, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if dev.Valid {
			id := dev.Int64
			ev.DeviceID = &id
		}
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of event %d: %w", ev.ID, err)
		}
		result = append(result, &ev)
	}
	return result, rows.Err()
}

// RecordTelemetry applies a heartbeat to a device (battery, last_seen,
// status=online) and appends the telemetry event, atomically. A nil battery
// keeps the stored value. Returns the updated device.
func (db *DB) RecordTelemetry(ctx context.Context, deviceID int64, battery *int, seenAt time.Time, ev *events.NormalizedEvent) (*Device, error) {
	var device *Device
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE devices
			SET battery_percent = COALESCE($2, battery_percent),
			    last_seen = $3,
			    status = 'online',
			    updated_at = NOW()
			WHERE id = $1
			RETURNING ` + deviceColumns
		d, err := scanDevice(tx.QueryRowContext(ctx, query, deviceID, nullInt(battery), seenAt))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("device not found: %d", deviceID)
		}
		if err != nil {
			return fmt.Errorf("failed to update device telemetry: %w", err)
		}
		device = d

		ev.DeviceID = &d.ID
		return insertEvent(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// InventoryRecord is one device from an inventory sync, already cleaned.
type InventoryRecord struct {
	SchoolID     int64
	Source       string
	ExternalID   string
	SerialNumber string
	AssetTag     string
	DeviceType   string
	LastSeen     *time.Time
}

// SyncInventoryDevice creates or updates the device keyed by (school, serial),
// links its external id and appends the inventory event, atomically. An
// existing device only takes a non-empty asset tag and a newer last_seen,
// which also marks it online. Returns the device and whether it was created.
func (db *DB) SyncInventoryDevice(ctx context.Context, rec InventoryRecord, ev *events.NormalizedEvent) (*Device, bool, error) {
	if strings.TrimSpace(rec.SerialNumber) == "" {
		return nil, false, fmt.Errorf("inventory record has no serial number")
	}

	var device *Device
	var created bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		status := StatusUnknown
		if rec.LastSeen != nil {
			status = StatusOnline
		}

		query := `
			INSERT INTO devices (school_id, serial_number, asset_tag, device_type, status, last_seen, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			ON CONFLICT (school_id, serial_number) WHERE serial_number <> '' DO UPDATE
			SET asset_tag = COALESCE(NULLIF(EXCLUDED.asset_tag, ''), devices.asset_tag),
			    last_seen = COALESCE(EXCLUDED.last_seen, devices.last_seen),
			    status = CASE WHEN EXCLUDED.last_seen IS NOT NULL THEN 'online' ELSE devices.status END,
			    updated_at = NOW()
			RETURNING ` + deviceColumns + `, (xmax = 0) AS created
		`
		var d Device
		var battery sql.NullInt64
		var lastSeen sql.NullTime
		err := tx.QueryRowContext(ctx, query,
			rec.SchoolID,
			rec.SerialNumber,
			rec.AssetTag,
			rec.DeviceType,
			status,
			nullTime(rec.LastSeen),
		).Scan(
			&d.ID, &d.SchoolID, &d.SerialNumber, &d.AssetTag, &d.DeviceName, &d.DeviceType,
			&d.Status, &battery, &lastSeen, &d.CreatedAt, &d.UpdatedAt, &created,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert inventory device: %w", err)
		}
		if battery.Valid {
			b := int(battery.Int64)
			d.BatteryPercent = &b
		}
		if lastSeen.Valid {
			t := lastSeen.Time
			d.LastSeen = &t
		}
		device = &d

		if rec.ExternalID != "" {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO external_device_ids (device_id, source, external_id, created_at)
				VALUES ($1, $2, $3, NOW())
				ON CONFLICT (source, external_id) DO NOTHING
			`, d.ID, rec.Source, rec.ExternalID)
			if err != nil {
				return fmt.Errorf("failed to link external id: %w", err)
			}
		}

		ev.DeviceID = &d.ID
		return insertEvent(ctx, tx, ev)
	})
	if err != nil {
		return nil, false, err
	}
	return device, created, nil
}
