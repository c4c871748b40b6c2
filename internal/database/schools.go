package database

import (
	"context"
	"fmt"
)

// ValidateAPIKey reports whether key is an enabled API key of the school.
func (db *DB) ValidateAPIKey(ctx context.Context, schoolID int64, key string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM school_api_keys
			WHERE school_id = $1 AND key = $2 AND enabled = TRUE
		)
	`
	var ok bool
	if err := db.conn.QueryRowContext(ctx, query, schoolID, key).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to validate api key: %w", err)
	}
	return ok, nil
}

// AdminEmails returns the email addresses of the school's admin users.
func (db *DB) AdminEmails(ctx context.Context, schoolID int64) ([]string, error) {
	query := `
		SELECT email
		FROM users
		WHERE school_id = $1 AND is_admin = TRUE AND email <> ''
		ORDER BY id
	`
	rows, err := db.conn.QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan admin email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
