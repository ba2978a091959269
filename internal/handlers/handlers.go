// Package handlers provides the HTTP handlers for the gridpulse API.
package handlers

import (
	"context"
	"time"

	"gridpulse/internal/database"
	"gridpulse/internal/metrics"
)

// Repository is the database surface the handlers need.
type Repository interface {
	CreateRule(ctx context.Context, r *database.Rule) (*database.Rule, error)
	GetRule(ctx context.Context, ruleID string) (*database.Rule, error)
	ListRules(ctx context.Context, deviceID *string, limit, offset int) ([]*database.Rule, error)
	UpdateRule(ctx context.Context, ruleID string, name string, conditions []byte, severity string, cooldownSeconds int) (*database.Rule, error)
	SetRuleActive(ctx context.Context, ruleID string, active bool) (*database.Rule, error)
	DeleteRule(ctx context.Context, ruleID string) error

	GetAlert(ctx context.Context, alertID string) (*database.Alert, error)
	ListAlerts(ctx context.Context, filter database.AlertFilter, limit, offset int) ([]*database.Alert, error)
	ListNotificationLogs(ctx context.Context, alertID string) ([]*database.NotificationLog, error)

	GetPreference(ctx context.Context, userID string) (*database.NotificationPreference, error)
	ListPreferences(ctx context.Context) ([]*database.NotificationPreference, error)

	ListStaleDevices(ctx context.Context, cutoff time.Time) ([]*database.DeviceHeartbeat, error)
}

// AlertLifecycle is the surface of the lifecycle manager used by the API.
type AlertLifecycle interface {
	Acknowledge(ctx context.Context, alertID, userID string) (*database.Alert, error)
	Resolve(ctx context.Context, alertID, userID, resolution string) (*database.Alert, error)
}

// RuleReloader refreshes the evaluator's in-memory rule index after a rule
// changes through the API.
type RuleReloader interface {
	Reload(ctx context.Context) error
}

// Handlers wraps dependencies for HTTP handlers.
type Handlers struct {
	db        Repository
	lifecycle AlertLifecycle
	reloader  RuleReloader
	metrics   *metrics.Collector
}

// NewHandlers creates a new handlers instance.
func NewHandlers(db Repository, lc AlertLifecycle, reloader RuleReloader, collector *metrics.Collector) *Handlers {
	return &Handlers{
		db:        db,
		lifecycle: lc,
		reloader:  reloader,
		metrics:   collector,
	}
}
