// Package lifecycle implements the user-driven alert state transitions and
// the synthetic alerts raised for malformed device payloads.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gridpulse/internal/database"
	"gridpulse/internal/events"
	"gridpulse/internal/metrics"
)

// DataFormatDescription prefixes synthetic alerts raised when a device sends
// a payload that fails schema validation.
const DataFormatDescription = "DATA_FORMAT_ERROR"

// Store is the subset of database operations the lifecycle manager needs.
type Store interface {
	AcknowledgeAlert(ctx context.Context, alertID string) (*database.Alert, error)
	ResolveAlert(ctx context.Context, alertID, resolvedBy, resolution string) (*database.Alert, error)
	CreateAlert(ctx context.Context, alert *database.Alert) (*database.Alert, error)
}

// Manager applies alert state transitions and publishes lifecycle events.
type Manager struct {
	store   Store
	sink    events.Sink
	metrics *metrics.Collector
}

// NewManager creates a lifecycle manager.
func NewManager(store Store, sink events.Sink, collector *metrics.Collector) *Manager {
	return &Manager{store: store, sink: sink, metrics: collector}
}

// Acknowledge moves an active alert to acknowledged on behalf of a user.
// Returns database.ErrInvalidTransition if the alert is not active.
func (m *Manager) Acknowledge(ctx context.Context, alertID, userID string) (*database.Alert, error) {
	alert, err := m.store.AcknowledgeAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	slog.Info("Alert acknowledged", "alert_id", alertID, "user_id", userID)
	m.sink.Publish(ctx, &events.AlertEvent{
		Type:        events.EventAlertAcknowledged,
		AlertID:     alert.AlertID,
		RuleID:      alert.RuleID,
		DeviceID:    alert.DeviceID,
		Severity:    alert.Severity,
		Status:      events.StatusAcknowledged,
		Description: alert.Description,
		OccurredAt:  time.Now().UTC(),
	})
	return alert, nil
}

// Resolve closes an open alert on behalf of a user. Returns
// database.ErrInvalidTransition if the alert is already resolved.
func (m *Manager) Resolve(ctx context.Context, alertID, userID, resolution string) (*database.Alert, error) {
	alert, err := m.store.ResolveAlert(ctx, alertID, userID, resolution)
	if err != nil {
		return nil, err
	}

	slog.Info("Alert resolved", "alert_id", alertID, "user_id", userID)
	m.sink.Publish(ctx, &events.AlertEvent{
		Type:        events.EventAlertResolved,
		AlertID:     alert.AlertID,
		RuleID:      alert.RuleID,
		DeviceID:    alert.DeviceID,
		Severity:    alert.Severity,
		Status:      events.StatusResolved,
		Description: alert.Description,
		OccurredAt:  time.Now().UTC(),
	})
	return alert, nil
}

// RaiseDataFormatAlert records a high-severity alert for a payload that
// failed schema validation. The alert carries no rule and snapshots the
// offending payload so operators can see what the device actually sent.
func (m *Manager) RaiseDataFormatAlert(ctx context.Context, deviceID string, issues []string, payload map[string]any) (*database.Alert, error) {
	alert, err := m.store.CreateAlert(ctx, &database.Alert{
		AlertID:     uuid.NewString(),
		DeviceID:    deviceID,
		Severity:    events.SeverityHigh,
		Description: fmt.Sprintf("%s: %s", DataFormatDescription, strings.Join(issues, "; ")),
		Data:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to raise data format alert: %w", err)
	}

	slog.Warn("Data format alert raised", "alert_id", alert.AlertID, "device_id", deviceID)
	m.metrics.Increment(metrics.CounterAlertsCreated)
	m.sink.Publish(ctx, &events.AlertEvent{
		Type:        events.EventAlertCreated,
		AlertID:     alert.AlertID,
		DeviceID:    deviceID,
		Severity:    events.SeverityHigh,
		Status:      events.StatusActive,
		Description: alert.Description,
		Snapshot:    payload,
		OccurredAt:  time.Now().UTC(),
	})
	return alert, nil
}
