package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const deviceColumns = `id, school_id, serial_number, asset_tag, device_name, device_type, status, battery_percent, last_seen, created_at, updated_at`

// deviceColumnsD is deviceColumns qualified with the "d" alias.
const deviceColumnsD = `d.id, d.school_id, d.serial_number, d.asset_tag, d.device_name, d.device_type, d.status, d.battery_percent, d.last_seen, d.created_at, d.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var battery sql.NullInt64
	var lastSeen sql.NullTime
	if err := row.Scan(
		&d.ID,
		&d.SchoolID,
		&d.SerialNumber,
		&d.AssetTag,
		&d.DeviceName,
		&d.DeviceType,
		&d.Status,
		&battery,
		&lastSeen,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if battery.Valid {
		b := int(battery.Int64)
		d.BatteryPercent = &b
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeen = &t
	}
	return &d, nil
}

// queryDevice runs a single-row device query. A missing row is (nil, nil).
func (db *DB) queryDevice(ctx context.Context, op, query string, args ...any) (*Device, error) {
	d, err := scanDevice(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return d, nil
}

// GetDevice retrieves a device by ID.
func (db *DB) GetDevice(ctx context.Context, deviceID int64) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	d, err := db.queryDevice(ctx, "get device", query, deviceID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("device not found: %d", deviceID)
	}
	return d, nil
}

// FindDeviceBySerial returns the school's device with the given serial, or nil.
func (db *DB) FindDeviceBySerial(ctx context.Context, schoolID int64, serial string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE school_id = $1 AND serial_number = $2
		ORDER BY id
		LIMIT 1
	`
	return db.queryDevice(ctx, "find device by serial", query, schoolID, serial)
}

// FindDeviceByAssetTag returns the school's device with the given asset tag, or nil.
// When several share the tag the oldest record wins.
func (db *DB) FindDeviceByAssetTag(ctx context.Context, schoolID int64, assetTag string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE school_id = $1 AND asset_tag = $2
		ORDER BY id
		LIMIT 1
	`
	return db.queryDevice(ctx, "find device by asset tag", query, schoolID, assetTag)
}

// FindDeviceByMAC returns the device owning a network identity with this MAC.
// Identities are not tenant-scoped, so the lookup is global; devices of
// schoolID are preferred, then the most recently seen identity.
func (db *DB) FindDeviceByMAC(ctx context.Context, schoolID int64, mac string) (*Device, error) {
	query := `
		SELECT ` + deviceColumnsD + `
		FROM device_network_identities n
		JOIN devices d ON d.id = n.device_id
		WHERE n.mac = $1
		ORDER BY (d.school_id = $2) DESC, n.last_seen DESC NULLS LAST, n.id DESC
		LIMIT 1
	`
	return db.queryDevice(ctx, "find device by mac", query, NormalizeMAC(mac), schoolID)
}

// FindDeviceByIP returns the device whose network identity last reported this IP.
// Ordering matches FindDeviceByMAC.
func (db *DB) FindDeviceByIP(ctx context.Context, schoolID int64, ip string) (*Device, error) {
	query := `
		SELECT ` + deviceColumnsD + `
		FROM device_network_identities n
		JOIN devices d ON d.id = n.device_id
		WHERE n.last_ip = $1
		ORDER BY (d.school_id = $2) DESC, n.last_seen DESC NULLS LAST, n.id DESC
		LIMIT 1
	`
	return db.queryDevice(ctx, "find device by ip", query, strings.TrimSpace(ip), schoolID)
}

// NormalizeMAC lower-cases a MAC address and unifies separators to colons.
func NormalizeMAC(mac string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(mac)), "-", ":")
}

// upsertNetworkIdentity records the latest network hints for a device.
// Empty hostname/IP never overwrite known values.
func upsertNetworkIdentity(ctx context.Context, q queryer, n *NetworkUpsert) error {
	query := `
		INSERT INTO device_network_identities (device_id, mac, hostname, last_ip, last_seen, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (device_id, mac) DO UPDATE
		SET hostname = COALESCE(NULLIF(EXCLUDED.hostname, ''), device_network_identities.hostname),
		    last_ip = COALESCE(NULLIF(EXCLUDED.last_ip, ''), device_network_identities.last_ip),
		    last_seen = EXCLUDED.last_seen
	`
	_, err := q.ExecContext(ctx, query,
		n.DeviceID,
		NormalizeMAC(n.MAC),
		strings.TrimSpace(n.Hostname),
		strings.TrimSpace(n.IP),
		n.SeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert network identity: %w", err)
	}
	return nil
}

// OfflineSweep marks every device whose last_seen is before cutoff as offline,
// optionally limited to one school. The update is a single statement, so the
// batch commits atomically. Returns the number of devices changed.
func (db *DB) OfflineSweep(ctx context.Context, schoolID *int64, cutoff time.Time) (int, error) {
	query := `
		UPDATE devices
		SET status = 'offline', updated_at = NOW()
		WHERE last_seen IS NOT NULL
		  AND last_seen < $1
		  AND status <> 'offline'
		  AND ($2::BIGINT IS NULL OR school_id = $2)
	`
	result, err := db.conn.ExecContext(ctx, query, cutoff, nullInt64(schoolID))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep offline devices: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteDevice removes a device and everything that references it, in
// dependency order, inside one transaction.
func (db *DB) DeleteDevice(ctx context.Context, schoolID, deviceID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM devices WHERE id = $1 AND school_id = $2)`,
			deviceID, schoolID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check device: %w", err)
		}
		if !exists {
			return fmt.Errorf("device not found: %d", deviceID)
		}

		steps := []struct {
			what  string
			query string
		}{
			{"network identities", `DELETE FROM device_network_identities WHERE device_id = $1`},
			{"external ids", `DELETE FROM external_device_ids WHERE device_id = $1`},
			{"alert deliveries", `DELETE FROM alert_deliveries WHERE alert_id IN (SELECT id FROM alerts WHERE device_id = $1)`},
			{"alerts", `DELETE FROM alerts WHERE device_id = $1`},
			{"events", `DELETE FROM events WHERE device_id = $1`},
			{"device", `DELETE FROM devices WHERE id = $1`},
		}
		for _, s := range steps {
			if _, err := tx.ExecContext(ctx, s.query, deviceID); err != nil {
				return fmt.Errorf("failed to delete %s: %w", s.what, err)
			}
		}
		return nil
	})
}
