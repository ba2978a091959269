// Package router provides tests for HTTP routing configuration.
package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gridpulse/internal/database"
	"gridpulse/internal/handlers"
	"gridpulse/internal/metrics"
)

// stubRepo implements handlers.Repository with empty success responses so
// the tests can exercise routing without a database.
type stubRepo struct{}

func (stubRepo) CreateRule(ctx context.Context, r *database.Rule) (*database.Rule, error) {
	return r, nil
}

func (stubRepo) GetRule(ctx context.Context, ruleID string) (*database.Rule, error) {
	return &database.Rule{RuleID: ruleID}, nil
}

func (stubRepo) ListRules(ctx context.Context, deviceID *string, limit, offset int) ([]*database.Rule, error) {
	return nil, nil
}

func (stubRepo) UpdateRule(ctx context.Context, ruleID string, name string, conditions []byte, severity string, cooldownSeconds int) (*database.Rule, error) {
	return &database.Rule{RuleID: ruleID}, nil
}

func (stubRepo) SetRuleActive(ctx context.Context, ruleID string, active bool) (*database.Rule, error) {
	return &database.Rule{RuleID: ruleID, IsActive: active}, nil
}

func (stubRepo) DeleteRule(ctx context.Context, ruleID string) error { return nil }

func (stubRepo) GetAlert(ctx context.Context, alertID string) (*database.Alert, error) {
	return &database.Alert{AlertID: alertID}, nil
}

func (stubRepo) ListAlerts(ctx context.Context, filter database.AlertFilter, limit, offset int) ([]*database.Alert, error) {
	return nil, nil
}

func (stubRepo) ListNotificationLogs(ctx context.Context, alertID string) ([]*database.NotificationLog, error) {
	return nil, nil
}

func (stubRepo) GetPreference(ctx context.Context, userID string) (*database.NotificationPreference, error) {
	return &database.NotificationPreference{UserID: userID}, nil
}

func (stubRepo) ListPreferences(ctx context.Context) ([]*database.NotificationPreference, error) {
	return nil, nil
}

func (stubRepo) ListStaleDevices(ctx context.Context, cutoff time.Time) ([]*database.DeviceHeartbeat, error) {
	return nil, nil
}

// stubLifecycle implements handlers.AlertLifecycle.
type stubLifecycle struct{}

func (stubLifecycle) Acknowledge(ctx context.Context, alertID, userID string) (*database.Alert, error) {
	return &database.Alert{AlertID: alertID}, nil
}

func (stubLifecycle) Resolve(ctx context.Context, alertID, userID, resolution string) (*database.Alert, error) {
	return &database.Alert{AlertID: alertID}, nil
}

// stubReloader implements handlers.RuleReloader.
type stubReloader struct{}

func (stubReloader) Reload(ctx context.Context) error { return nil }

func newTestHandlers() *handlers.Handlers {
	return handlers.NewHandlers(stubRepo{}, stubLifecycle{}, stubReloader{}, metrics.NewCollector("test", nil))
}

// TestNewRouter tests the NewRouter constructor.
func TestNewRouter(t *testing.T) {
	h := newTestHandlers()

	router := NewRouter(h)
	if router == nil {
		t.Fatal("NewRouter() returned nil")
	}
	if router.mux == nil {
		t.Error("NewRouter() mux is nil")
	}
	if router.handlers != h {
		t.Error("NewRouter() handlers mismatch")
	}
}

// TestRouter_Handler tests that the router returns a handler with CORS middleware.
func TestRouter_Handler(t *testing.T) {
	router := NewRouter(newTestHandlers())
	handler := router.Handler()
	if handler == nil {
		t.Fatal("Handler() returned nil")
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rules", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("CORS OPTIONS request status = %v, want %v", w.Code, http.StatusOK)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header Access-Control-Allow-Origin not set")
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("CORS header Access-Control-Allow-Methods not set")
	}
}

// TestRouter_HealthCheck tests the health check endpoint.
func TestRouter_HealthCheck(t *testing.T) {
	router := NewRouter(newTestHandlers())
	handler := router.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health check status = %v, want %v", w.Code, http.StatusOK)
	}
}

// TestNewServer tests the NewServer constructor.
func TestNewServer(t *testing.T) {
	server := NewServer("8081", newTestHandlers())
	if server == nil {
		t.Fatal("NewServer() returned nil")
	}
	if server.Addr != ":8081" {
		t.Errorf("NewServer() Addr = %v, want :8081", server.Addr)
	}
	if server.Handler == nil {
		t.Error("NewServer() Handler is nil")
	}
}

// TestRouter_Routes verifies routes are registered by checking that no
// configured path returns 404.
func TestRouter_Routes(t *testing.T) {
	router := NewRouter(newTestHandlers())
	handler := router.Handler()

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"rules POST", http.MethodPost, "/api/v1/rules"},
		{"rules GET", http.MethodGet, "/api/v1/rules?rule_id=test"},
		{"rules list GET", http.MethodGet, "/api/v1/rules"},
		{"rules UPDATE", http.MethodPut, "/api/v1/rules/update?rule_id=test"},
		{"rules TOGGLE", http.MethodPost, "/api/v1/rules/toggle?rule_id=test"},
		{"rules DELETE", http.MethodDelete, "/api/v1/rules/delete?rule_id=test"},
		{"alerts GET", http.MethodGet, "/api/v1/alerts?alert_id=test"},
		{"alerts list GET", http.MethodGet, "/api/v1/alerts"},
		{"alerts ACK", http.MethodPost, "/api/v1/alerts/acknowledge"},
		{"alerts RESOLVE", http.MethodPost, "/api/v1/alerts/resolve"},
		{"preferences GET", http.MethodGet, "/api/v1/preferences?user_id=test"},
		{"preferences list GET", http.MethodGet, "/api/v1/preferences"},
		{"stale devices GET", http.MethodGet, "/api/v1/devices/stale"},
		{"metrics GET", http.MethodGet, "/api/v1/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code == http.StatusNotFound {
				t.Errorf("Route %s %s returned 404, route may not be registered", tt.method, tt.path)
			}
		})
	}
}

// TestRouter_MethodNotAllowed verifies unsupported methods are rejected.
func TestRouter_MethodNotAllowed(t *testing.T) {
	router := NewRouter(newTestHandlers())
	handler := router.Handler()

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"rules DELETE on collection", http.MethodDelete, "/api/v1/rules"},
		{"alerts POST on collection", http.MethodPost, "/api/v1/alerts"},
		{"toggle GET", http.MethodGet, "/api/v1/rules/toggle"},
		{"acknowledge GET", http.MethodGet, "/api/v1/alerts/acknowledge"},
		{"metrics POST", http.MethodPost, "/api/v1/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s %s status = %v, want %v", tt.method, tt.path, w.Code, http.StatusMethodNotAllowed)
			}
		})
	}
}
