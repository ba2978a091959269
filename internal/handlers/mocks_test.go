// Package handlers provides test mocks for handler dependencies.
package handlers

import (
	"context"
	"time"

	"gridpulse/internal/database"
)

// mockRepository implements Repository for testing. Set the callback for a
// method to control its behavior; unset callbacks return sensible defaults.
type mockRepository struct {
	CreateRuleFn           func(ctx context.Context, r *database.Rule) (*database.Rule, error)
	GetRuleFn              func(ctx context.Context, ruleID string) (*database.Rule, error)
	ListRulesFn            func(ctx context.Context, deviceID *string, limit, offset int) ([]*database.Rule, error)
	UpdateRuleFn           func(ctx context.Context, ruleID string, name string, conditions []byte, severity string, cooldownSeconds int) (*database.Rule, error)
	SetRuleActiveFn        func(ctx context.Context, ruleID string, active bool) (*database.Rule, error)
	DeleteRuleFn           func(ctx context.Context, ruleID string) error
	GetAlertFn             func(ctx context.Context, alertID string) (*database.Alert, error)
	ListAlertsFn           func(ctx context.Context, filter database.AlertFilter, limit, offset int) ([]*database.Alert, error)
	ListNotificationLogsFn func(ctx context.Context, alertID string) ([]*database.NotificationLog, error)
	GetPreferenceFn        func(ctx context.Context, userID string) (*database.NotificationPreference, error)
	ListPreferencesFn      func(ctx context.Context) ([]*database.NotificationPreference, error)
	ListStaleDevicesFn     func(ctx context.Context, cutoff time.Time) ([]*database.DeviceHeartbeat, error)
}

func (m *mockRepository) CreateRule(ctx context.Context, r *database.Rule) (*database.Rule, error) {
	if m.CreateRuleFn != nil {
		return m.CreateRuleFn(ctx, r)
	}
	created := *r
	created.RuleID = "rule-1"
	created.IsActive = true
	return &created, nil
}

func (m *mockRepository) GetRule(ctx context.Context, ruleID string) (*database.Rule, error) {
	if m.GetRuleFn != nil {
		return m.GetRuleFn(ctx, ruleID)
	}
	return &database.Rule{RuleID: ruleID, Name: "High power", DataType: "energy", Severity: "high", IsActive: true}, nil
}

func (m *mockRepository) ListRules(ctx context.Context, deviceID *string, limit, offset int) ([]*database.Rule, error) {
	if m.ListRulesFn != nil {
		return m.ListRulesFn(ctx, deviceID, limit, offset)
	}
	return []*database.Rule{}, nil
}

func (m *mockRepository) UpdateRule(ctx context.Context, ruleID string, name string, conditions []byte, severity string, cooldownSeconds int) (*database.Rule, error) {
	if m.UpdateRuleFn != nil {
		return m.UpdateRuleFn(ctx, ruleID, name, conditions, severity, cooldownSeconds)
	}
	return &database.Rule{RuleID: ruleID, Name: name, Conditions: conditions, Severity: severity, CooldownSeconds: cooldownSeconds}, nil
}

func (m *mockRepository) SetRuleActive(ctx context.Context, ruleID string, active bool) (*database.Rule, error) {
	if m.SetRuleActiveFn != nil {
		return m.SetRuleActiveFn(ctx, ruleID, active)
	}
	return &database.Rule{RuleID: ruleID, IsActive: active}, nil
}

func (m *mockRepository) DeleteRule(ctx context.Context, ruleID string) error {
	if m.DeleteRuleFn != nil {
		return m.DeleteRuleFn(ctx, ruleID)
	}
	return nil
}

func (m *mockRepository) GetAlert(ctx context.Context, alertID string) (*database.Alert, error) {
	if m.GetAlertFn != nil {
		return m.GetAlertFn(ctx, alertID)
	}
	return &database.Alert{AlertID: alertID, DeviceID: "meter-1", Severity: "high", Status: "active"}, nil
}

func (m *mockRepository) ListAlerts(ctx context.Context, filter database.AlertFilter, limit, offset int) ([]*database.Alert, error) {
	if m.ListAlertsFn != nil {
		return m.ListAlertsFn(ctx, filter, limit, offset)
	}
	return []*database.Alert{}, nil
}

func (m *mockRepository) ListNotificationLogs(ctx context.Context, alertID string) ([]*database.NotificationLog, error) {
	if m.ListNotificationLogsFn != nil {
		return m.ListNotificationLogsFn(ctx, alertID)
	}
	return []*database.NotificationLog{}, nil
}

func (m *mockRepository) GetPreference(ctx context.Context, userID string) (*database.NotificationPreference, error) {
	if m.GetPreferenceFn != nil {
		return m.GetPreferenceFn(ctx, userID)
	}
	return &database.NotificationPreference{UserID: userID, Channels: map[string]string{"email": "a@b.com"}}, nil
}

func (m *mockRepository) ListPreferences(ctx context.Context) ([]*database.NotificationPreference, error) {
	if m.ListPreferencesFn != nil {
		return m.ListPreferencesFn(ctx)
	}
	return []*database.NotificationPreference{}, nil
}

func (m *mockRepository) ListStaleDevices(ctx context.Context, cutoff time.Time) ([]*database.DeviceHeartbeat, error) {
	if m.ListStaleDevicesFn != nil {
		return m.ListStaleDevicesFn(ctx, cutoff)
	}
	return []*database.DeviceHeartbeat{}, nil
}

// mockLifecycle implements AlertLifecycle for testing.
type mockLifecycle struct {
	AcknowledgeFn func(ctx context.Context, alertID, userID string) (*database.Alert, error)
	ResolveFn     func(ctx context.Context, alertID, userID, resolution string) (*database.Alert, error)
}

func (m *mockLifecycle) Acknowledge(ctx context.Context, alertID, userID string) (*database.Alert, error) {
	if m.AcknowledgeFn != nil {
		return m.AcknowledgeFn(ctx, alertID, userID)
	}
	return &database.Alert{AlertID: alertID, Status: "acknowledged"}, nil
}

func (m *mockLifecycle) Resolve(ctx context.Context, alertID, userID, resolution string) (*database.Alert, error) {
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, alertID, userID, resolution)
	}
	return &database.Alert{AlertID: alertID, Status: "resolved", Resolution: &resolution}, nil
}

// mockReloader implements RuleReloader and records reload calls.
type mockReloader struct {
	ReloadFn func(ctx context.Context) error
	Reloads  int
}

func (m *mockReloader) Reload(ctx context.Context) error {
	m.Reloads++
	if m.ReloadFn != nil {
		return m.ReloadFn(ctx)
	}
	return nil
}
