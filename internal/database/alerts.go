package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const alertColumns = `id, school_id, device_id, alert_type, severity, message, acknowledged, created_at`

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var dev sql.NullInt64
	if err := row.Scan(&a.ID, &a.SchoolID, &dev, &a.AlertType, &a.Severity, &a.Message, &a.Acknowledged, &a.CreatedAt); err != nil {
		return nil, err
	}
	if dev.Valid {
		id := dev.Int64
		a.DeviceID = &id
	}
	return &a, nil
}

// InsertAlert persists a new, unacknowledged alert and fills in its ID and CreatedAt.
func (db *DB) InsertAlert(ctx context.Context, a *Alert) error {
	query := `
		INSERT INTO alerts (school_id, device_id, alert_type, severity, message, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
		RETURNING id, created_at
	`
	err := db.conn.QueryRowContext(ctx, query,
		a.SchoolID,
		nullInt64(a.DeviceID),
		a.AlertType,
		a.Severity,
		a.Message,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	a.Acknowledged = false
	return nil
}

// GetAlert retrieves an alert by ID.
func (db *DB) GetAlert(ctx context.Context, alertID int64) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert not found: %d", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns a page of a school's alerts, newest first.
func (db *DB) ListAlerts(ctx context.Context, schoolID int64, limit, offset int) (*AlertListResult, error) {
	var total int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE school_id = $1`, schoolID).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE school_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := db.conn.QueryContext(ctx, query, schoolID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return &AlertListResult{
		Alerts: alerts,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// AcknowledgeAlert marks an alert of the school as acknowledged. Acknowledging
// twice is not an error.
func (db *DB) AcknowledgeAlert(ctx context.Context, schoolID, alertID int64) (*Alert, error) {
	query := `
		UPDATE alerts
		SET acknowledged = TRUE
		WHERE id = $1 AND school_id = $2
		RETURNING ` + alertColumns
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, alertID, schoolID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert not found: %d", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return a, nil
}

// RecordDelivery stores the outcome of notifying one recipient. A later
// attempt for the same recipient replaces the earlier outcome.
func (db *DB) RecordDelivery(ctx context.Context, d *AlertDelivery) error {
	query := `
		INSERT INTO alert_deliveries (alert_id, recipient, status, error, attempts, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (alert_id, recipient) DO UPDATE
		SET status = EXCLUDED.status,
		    error = EXCLUDED.error,
		    attempts = alert_deliveries.attempts + EXCLUDED.attempts,
		    updated_at = EXCLUDED.updated_at
	`
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, query, d.AlertID, d.Recipient, d.Status, d.Error, d.Attempts, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns every recorded delivery outcome of an alert.
func (db *DB) ListDeliveries(ctx context.Context, alertID int64) ([]*AlertDelivery, error) {
	query := `
		SELECT alert_id, recipient, status, error, attempts, updated_at
		FROM alert_deliveries
		WHERE alert_id = $1
		ORDER BY recipient
	`
	rows, err := db.conn.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make([]*AlertDelivery, 0)
	for rows.Next() {
		var d AlertDelivery
		if err := rows.Scan(&d.AlertID, &d.Recipient, &d.Status, &d.Error, &d.Attempts, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, &d)
	}
	return deliveries, rows.Err()
}
