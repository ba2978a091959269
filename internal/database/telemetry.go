package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// UpsertPoint stores a normalized telemetry point. A duplicate delivery of
// the same (device_id, category, ts) key replaces the stored fields rather
// than inserting a second row, which makes persistence idempotent under
// at-least-once transport semantics.
func (db *DB) UpsertPoint(ctx context.Context, p *TelemetryPoint) error {
	fields, err := json.Marshal(p.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry fields: %w", err)
	}

	query := `
		INSERT INTO telemetry_points (device_id, category, ts, fields, received_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (device_id, category, ts)
		DO UPDATE SET fields = EXCLUDED.fields, received_at = NOW()
	`
	if _, err := db.conn.ExecContext(ctx, query, p.DeviceID, p.Category, p.Timestamp, fields); err != nil {
		return fmt.Errorf("failed to upsert telemetry point: %w", err)
	}
	return nil
}

// TouchDevice updates the device's last-communication timestamp. Called
// unconditionally for every processed record, including duplicates, so the
// external offline-detection collaborator always sees recent contact.
func (db *DB) TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error {
	query := `
		INSERT INTO devices (device_id, last_seen_at)
		VALUES ($1, $2)
		ON CONFLICT (device_id)
		DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
	`
	if _, err := db.conn.ExecContext(ctx, query, deviceID, seenAt); err != nil {
		return fmt.Errorf("failed to update device heartbeat: %w", err)
	}
	return nil
}

// ListStaleDevices returns devices whose last contact is older than cutoff.
func (db *DB) ListStaleDevices(ctx context.Context, cutoff time.Time) ([]*DeviceHeartbeat, error) {
	query := `
		SELECT device_id, last_seen_at
		FROM devices
		WHERE last_seen_at < $1
		ORDER BY last_seen_at ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale devices: %w", err)
	}
	defer rows.Close()

	var devices []*DeviceHeartbeat
	for rows.Next() {
		var d DeviceHeartbeat
		if err := rows.Scan(&d.DeviceID, &d.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan device heartbeat: %w", err)
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}
