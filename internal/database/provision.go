package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreateSchool inserts a school and returns its id.
func (db *DB) CreateSchool(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO schools (name, created_at) VALUES ($1, NOW()) RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create school: %w", err)
	}
	return id, nil
}

// CreateAPIKey issues a new random API key for the school.
func (db *DB) CreateAPIKey(ctx context.Context, schoolID int64, label string) (string, error) {
	key := uuid.NewString()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO school_api_keys (school_id, key, label, enabled, created_at) VALUES ($1, $2, $3, TRUE, NOW())`,
		schoolID, key, label,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create api key: %w", err)
	}
	return key, nil
}

// AddUser adds a user to the school. Admin users receive alert emails.
func (db *DB) AddUser(ctx context.Context, schoolID int64, email string, isAdmin bool) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (school_id, email, is_admin, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id`,
		schoolID, email, isAdmin,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to add user: %w", err)
	}
	return id, nil
}

// CreatePolicyRule inserts r and fills in its id and created_at. Rule names
// are unique per school.
func (db *DB) CreatePolicyRule(ctx context.Context, r *PolicyRule) error {
	params := r.Params
	if len(params) == 0 {
		params = []byte(`{}`)
	}
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO policy_rules (school_id, name, enabled, rule_type, params, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`, r.SchoolID, r.Name, r.Enabled, r.RuleType, []byte(params), r.Severity).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("policy rule already exists: %s", r.Name)
		}
		return fmt.Errorf("failed to create policy rule: %w", err)
	}
	return nil
}

// CreateDevice registers a device with status unknown and returns it.
func (db *DB) CreateDevice(ctx context.Context, schoolID int64, serial, assetTag, deviceType string) (*Device, error) {
	query := `
		INSERT INTO devices (school_id, serial_number, asset_tag, device_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'unknown', NOW(), NOW())
		RETURNING ` + deviceColumns
	device, err := scanDevice(db.conn.QueryRowContext(ctx, query, schoolID, serial, assetTag, deviceType))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("device already exists: %s", serial)
		}
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}
