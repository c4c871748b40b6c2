package database

import (
	"context"
	"fmt"
)

// ListEnabledRules returns every enabled policy rule of a school, oldest first.
func (db *DB) ListEnabledRules(ctx context.Context, schoolID int64) ([]*PolicyRule, error) {
	query := `
		SELECT id, school_id, name, enabled, rule_type, params, severity, created_at
		FROM policy_rules
		WHERE school_id = $1 AND enabled = TRUE
		ORDER BY id
	`
	rows, err := db.conn.QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*PolicyRule
	for rows.Next() {
		var r PolicyRule
		var params []byte
		if err := rows.Scan(&r.ID, &r.SchoolID, &r.Name, &r.Enabled, &r.RuleType, &params, &r.Severity, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.Params = params
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}
