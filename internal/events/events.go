// Package events defines the record and event structures passed between
// pipeline stages.
package events

import (
	"fmt"
	"time"
)

// Telemetry categories routed by the ingestion gateway.
const (
	CategoryEnergy = "energy"
	CategoryCarbon = "carbon"
	CategoryStatus = "status"
)

// Alert severities, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert statuses.
const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Alert event types published to the dispatcher and the export topic.
const (
	EventAlertCreated      = "alert.created"
	EventAlertAcknowledged = "alert.acknowledged"
	EventAlertResolved     = "alert.resolved"
	EventAlertAutoResolved = "alert.auto_resolved"
)

// IsValidCategory reports whether c is a known telemetry category.
func IsValidCategory(c string) bool {
	return c == CategoryEnergy || c == CategoryCarbon || c == CategoryStatus
}

// IsValidSeverity reports whether s is a known alert severity.
func IsValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// TelemetryRecord is a decoded wire message from the telemetry transport.
// Fields holds the raw scalar payload values; the schema validator produces
// the normalized form consumed by persistence and evaluation.
type TelemetryRecord struct {
	DeviceID  string         `json:"device_id"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// Validate checks the structural invariants of a record before it enters the
// per-device queue.
func (r *TelemetryRecord) Validate() error {
	if r.DeviceID == "" {
		return fmt.Errorf("device_id cannot be empty")
	}
	if !IsValidCategory(r.Category) {
		return fmt.Errorf("unknown category: %q", r.Category)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}
	return nil
}

// AlertEvent describes an alert creation or state transition. It is the unit
// handed to the notification dispatcher and the export producer.
type AlertEvent struct {
	Type        string         `json:"type"`
	AlertID     string         `json:"alert_id"`
	RuleID      *string        `json:"rule_id,omitempty"`
	RuleName    string         `json:"rule_name,omitempty"`
	DeviceID    string         `json:"device_id"`
	Severity    string         `json:"severity"`
	Status      string         `json:"status"`
	Description string         `json:"description"`
	Snapshot    map[string]any `json:"snapshot,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}
