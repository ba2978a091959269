package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

const alertColumns = `alert_id, rule_id, device_id, severity, status, description, data, resolution, resolved_by, resolved_at, created_at, updated_at`

// scanAlert scans one alerts row.
func scanAlert(row interface{ Scan(...any) error }) (*Alert, error) {
	var a Alert
	var ruleID, resolution, resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	var data []byte

	err := row.Scan(
		&a.AlertID,
		&ruleID,
		&a.DeviceID,
		&a.Severity,
		&a.Status,
		&a.Description,
		&data,
		&resolution,
		&resolvedBy,
		&resolvedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ruleID.Valid {
		a.RuleID = &ruleID.String
	}
	if resolution.Valid {
		a.Resolution = &resolution.String
	}
	if resolvedBy.Valid {
		a.ResolvedBy = &resolvedBy.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &a.Data); err != nil {
			slog.Warn("Failed to unmarshal alert data snapshot", "alert_id", a.AlertID, "error", err)
			a.Data = nil
		}
	}
	return &a, nil
}

// CreateAlert inserts a new alert row with status active.
func (db *DB) CreateAlert(ctx context.Context, a *Alert) (*Alert, error) {
	data, err := json.Marshal(a.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert data: %w", err)
	}

	query := `
		INSERT INTO alerts (alert_id, rule_id, device_id, severity, status, description, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', $5, $6, NOW(), NOW())
		RETURNING ` + alertColumns

	created, err := scanAlert(db.conn.QueryRowContext(ctx, query,
		a.AlertID, a.RuleID, a.DeviceID, a.Severity, a.Description, data))
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	return created, nil
}

// GetAlert retrieves an alert by ID.
func (db *DB) GetAlert(ctx context.Context, alertID string) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE alert_id = $1`
	alert, err := scanAlert(db.conn.QueryRowContext(ctx, query, alertID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// GetOpenAlert returns the unresolved alert for a (rule, device) pair, or
// nil if there is none. Acknowledged alerts still count as open for the
// dedup invariant; only resolved closes the pair.
func (db *DB) GetOpenAlert(ctx context.Context, ruleID, deviceID string) (*Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE rule_id = $1 AND device_id = $2 AND status != 'resolved'
		ORDER BY created_at DESC
		LIMIT 1
	`
	alert, err := scanAlert(db.conn.QueryRowContext(ctx, query, ruleID, deviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open alert: %w", err)
	}
	return alert, nil
}

// GetLatestAlert returns the most recent alert of any status for a
// (rule, device) pair, or nil if the pair never alerted. The evaluator uses
// it for the cooldown window check.
func (db *DB) GetLatestAlert(ctx context.Context, ruleID, deviceID string) (*Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE rule_id = $1 AND device_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	alert, err := scanAlert(db.conn.QueryRowContext(ctx, query, ruleID, deviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest alert: %w", err)
	}
	return alert, nil
}

// RefreshAlertData updates the triggering snapshot of a still-breaching
// alert without creating a duplicate.
func (db *DB) RefreshAlertData(ctx context.Context, alertID string, snapshot map[string]any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal alert data: %w", err)
	}

	query := `UPDATE alerts SET data = $2, updated_at = NOW() WHERE alert_id = $1`
	if _, err := db.conn.ExecContext(ctx, query, alertID, data); err != nil {
		return fmt.Errorf("failed to refresh alert data: %w", err)
	}
	return nil
}

// AcknowledgeAlert transitions an active alert to acknowledged. Returns
// ErrNotFound if the alert does not exist and ErrInvalidTransition if it is
// not currently active.
func (db *DB) AcknowledgeAlert(ctx context.Context, alertID string) (*Alert, error) {
	query := `
		UPDATE alerts
		SET status = 'acknowledged', updated_at = NOW()
		WHERE alert_id = $1 AND status = 'active'
		RETURNING ` + alertColumns

	alert, err := scanAlert(db.conn.QueryRowContext(ctx, query, alertID))
	if err == sql.ErrNoRows {
		return nil, db.classifyTransitionFailure(ctx, alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return alert, nil
}

// ResolveAlert transitions an active or acknowledged alert to resolved,
// stamping resolution, resolved_by, and resolved_at. Resolved is terminal:
// resolving twice returns ErrInvalidTransition.
func (db *DB) ResolveAlert(ctx context.Context, alertID, resolvedBy, resolution string) (*Alert, error) {
	query := `
		UPDATE alerts
		SET status = 'resolved',
		    resolution = $2,
		    resolved_by = $3,
		    resolved_at = NOW(),
		    updated_at = NOW()
		WHERE alert_id = $1 AND status IN ('active', 'acknowledged')
		RETURNING ` + alertColumns

	alert, err := scanAlert(db.conn.QueryRowContext(ctx, query, alertID, resolution, resolvedBy))
	if err == sql.ErrNoRows {
		return nil, db.classifyTransitionFailure(ctx, alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}
	return alert, nil
}

// classifyTransitionFailure distinguishes a missing alert from one in a
// state that forbids the requested transition.
func (db *DB) classifyTransitionFailure(ctx context.Context, alertID string) error {
	var exists bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM alerts WHERE alert_id = $1)`
	if err := db.conn.QueryRowContext(ctx, checkQuery, alertID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check alert existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return fmt.Errorf("alert %s: %w", alertID, ErrInvalidTransition)
}

// ListAlerts retrieves alerts matching the filter, newest first.
func (db *DB) ListAlerts(ctx context.Context, filter AlertFilter, limit, offset int) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Severity != nil {
		args = append(args, *filter.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.DeviceID != nil {
		args = append(args, *filter.DeviceID)
		query += fmt.Sprintf(" AND device_id = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}
