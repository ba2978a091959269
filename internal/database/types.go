package database

import (
	"encoding/json"
	"time"
)

// Rule represents a row in the alert_rules table. Conditions is the raw
// JSONB blob; the evaluator parses it once at rule load.
type Rule struct {
	RuleID          string          `json:"rule_id"`
	Name            string          `json:"name"`
	DataType        string          `json:"data_type"`
	DeviceID        *string         `json:"device_id"` // nil = global rule
	Conditions      json.RawMessage `json:"conditions"`
	Severity        string          `json:"severity"`
	CooldownSeconds int             `json:"cooldown_seconds"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Alert represents a row in the alerts table. RuleID is nil for synthetic
// DATA_FORMAT_ERROR alerts raised by the schema validator.
type Alert struct {
	AlertID     string         `json:"alert_id"`
	RuleID      *string        `json:"rule_id"`
	DeviceID    string         `json:"device_id"`
	Severity    string         `json:"severity"`
	Status      string         `json:"status"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Resolution  *string        `json:"resolution,omitempty"`
	ResolvedBy  *string        `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TelemetryPoint is a normalized reading keyed by (device_id, category, ts).
type TelemetryPoint struct {
	DeviceID  string         `json:"device_id"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"ts"`
	Fields    map[string]any `json:"fields"`
}

// DeviceHeartbeat is the last-communication timestamp of a device, read by
// the external offline-detection collaborator.
type DeviceHeartbeat struct {
	DeviceID   string    `json:"device_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// NotificationPreference describes which channels and severities a user
// subscribes to. Channels maps channel name to its delivery target (email
// address, phone number, or webhook URL). Owned by the user-settings
// collaborator; read-only here.
type NotificationPreference struct {
	UserID          string            `json:"user_id"`
	Channels        map[string]string `json:"channels"`
	SeverityFilters []string          `json:"severity_filters"`
}

// WantsSeverity reports whether the preference subscribes to alerts of the
// given severity, either explicitly or via the "all" filter.
func (p *NotificationPreference) WantsSeverity(severity string) bool {
	for _, f := range p.SeverityFilters {
		if f == "all" || f == severity {
			return true
		}
	}
	return false
}

// Notification delivery outcomes recorded in notification_logs.
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// NotificationLog is an append-only audit row for one delivery attempt.
type NotificationLog struct {
	LogID     string    `json:"log_id"`
	AlertID   string    `json:"alert_id"`
	UserID    string    `json:"user_id"`
	Channel   string    `json:"channel"`
	Status    string    `json:"status"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertFilter narrows ListAlerts results. Nil fields are ignored.
type AlertFilter struct {
	Status   *string
	Severity *string
	DeviceID *string
}
