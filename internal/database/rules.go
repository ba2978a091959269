package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const ruleColumns = `rule_id, name, data_type, device_id, conditions, severity, cooldown_seconds, is_active, created_at, updated_at`

// scanRule scans one alert_rules row.
func scanRule(row interface{ Scan(...any) error }) (*Rule, error) {
	var r Rule
	var deviceID sql.NullString
	err := row.Scan(
		&r.RuleID,
		&r.Name,
		&r.DataType,
		&deviceID,
		(*[]byte)(&r.Conditions),
		&r.Severity,
		&r.CooldownSeconds,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if deviceID.Valid {
		r.DeviceID = &deviceID.String
	}
	return &r, nil
}

// CreateRule inserts a new alert rule and returns it with the generated id.
func (db *DB) CreateRule(ctx context.Context, r *Rule) (*Rule, error) {
	query := `
		INSERT INTO alert_rules (rule_id, name, data_type, device_id, conditions, severity, cooldown_seconds, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW(), NOW())
		RETURNING ` + ruleColumns

	ruleID := uuid.NewString()
	created, err := scanRule(db.conn.QueryRowContext(ctx, query,
		ruleID, r.Name, r.DataType, r.DeviceID, []byte(r.Conditions), r.Severity, r.CooldownSeconds))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("rule already exists: %s", r.Name)
		}
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return created, nil
}

// GetRule retrieves a rule by ID.
func (db *DB) GetRule(ctx context.Context, ruleID string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE rule_id = $1`
	rule, err := scanRule(db.conn.QueryRowContext(ctx, query, ruleID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules retrieves rules with pagination, optionally filtered by device.
func (db *DB) ListRules(ctx context.Context, deviceID *string, limit, offset int) ([]*Rule, error) {
	var query string
	var args []any

	if deviceID != nil {
		query = `SELECT ` + ruleColumns + ` FROM alert_rules WHERE device_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = []any{*deviceID, limit, offset}
	} else {
		query = `SELECT ` + ruleColumns + ` FROM alert_rules ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = []any{limit, offset}
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListActiveRules retrieves every active rule. The evaluator's rule cache
// loads these in bulk and filters candidates in memory.
func (db *DB) ListActiveRules(ctx context.Context) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE is_active = TRUE ORDER BY created_at ASC`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// UpdateRule updates a rule's mutable fields and returns the updated row.
func (db *DB) UpdateRule(ctx context.Context, ruleID string, name string, conditions []byte, severity string, cooldownSeconds int) (*Rule, error) {
	query := `
		UPDATE alert_rules
		SET name = $2,
		    conditions = $3,
		    severity = $4,
		    cooldown_seconds = $5,
		    updated_at = NOW()
		WHERE rule_id = $1
		RETURNING ` + ruleColumns

	rule, err := scanRule(db.conn.QueryRowContext(ctx, query, ruleID, name, conditions, severity, cooldownSeconds))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return rule, nil
}

// SetRuleActive enables or disables a rule. Used both by the operator API
// and by the evaluator's self-healing auto-disable path.
func (db *DB) SetRuleActive(ctx context.Context, ruleID string, active bool) (*Rule, error) {
	query := `
		UPDATE alert_rules
		SET is_active = $2, updated_at = NOW()
		WHERE rule_id = $1
		RETURNING ` + ruleColumns

	rule, err := scanRule(db.conn.QueryRowContext(ctx, query, ruleID, active))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle rule: %w", err)
	}
	return rule, nil
}

// DeleteRule removes a rule by ID.
func (db *DB) DeleteRule(ctx context.Context, ruleID string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM alert_rules WHERE rule_id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}
