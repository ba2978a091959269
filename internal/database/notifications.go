package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// scanPreference scans one notification_preferences row.
func scanPreference(row interface{ Scan(...any) error }) (*NotificationPreference, error) {
	var p NotificationPreference
	var channels []byte
	if err := row.Scan(&p.UserID, &channels, pq.Array(&p.SeverityFilters)); err != nil {
		return nil, err
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &p.Channels); err != nil {
			slog.Warn("Failed to unmarshal channel map", "user_id", p.UserID, "error", err)
			p.Channels = map[string]string{}
		}
	} else {
		p.Channels = map[string]string{}
	}
	return &p, nil
}

// GetPreference retrieves one user's notification preference.
func (db *DB) GetPreference(ctx context.Context, userID string) (*NotificationPreference, error) {
	query := `SELECT user_id, channels, severity_filters FROM notification_preferences WHERE user_id = $1`
	pref, err := scanPreference(db.conn.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("preference for user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preference: %w", err)
	}
	return pref, nil
}

// ListPreferences retrieves every notification preference. The dispatcher
// filters them by severity and device authorization per alert event.
func (db *DB) ListPreferences(ctx context.Context) ([]*NotificationPreference, error) {
	query := `SELECT user_id, channels, severity_filters FROM notification_preferences ORDER BY user_id ASC`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*NotificationPreference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification preference: %w", err)
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

// AppendNotificationLog records one delivery attempt. The log is append-only:
// rows are never updated or deleted by this service.
func (db *DB) AppendNotificationLog(ctx context.Context, l *NotificationLog) error {
	if l.LogID == "" {
		l.LogID = uuid.NewString()
	}
	query := `
		INSERT INTO notification_logs (log_id, alert_id, user_id, channel, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if _, err := db.conn.ExecContext(ctx, query, l.LogID, l.AlertID, l.UserID, l.Channel, l.Status, l.Error); err != nil {
		return fmt.Errorf("failed to append notification log: %w", err)
	}
	return nil
}

// ListNotificationLogs retrieves the delivery audit trail for an alert,
// oldest first.
func (db *DB) ListNotificationLogs(ctx context.Context, alertID string) ([]*NotificationLog, error) {
	query := `
		SELECT log_id, alert_id, user_id, channel, status, error, created_at
		FROM notification_logs
		WHERE alert_id = $1
		ORDER BY created_at ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	defer rows.Close()

	var logs []*NotificationLog
	for rows.Next() {
		var l NotificationLog
		var errText sql.NullString
		if err := rows.Scan(&l.LogID, &l.AlertID, &l.UserID, &l.Channel, &l.Status, &errText, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		if errText.Valid {
			l.Error = &errText.String
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
