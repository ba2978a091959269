// Package router provides HTTP routing configuration for the gridpulse API.
// It sets up routes and applies middleware like CORS.
package router

import (
	"net/http"

	"gridpulse/internal/handlers"
)

// Router wraps the HTTP mux and provides route configuration.
type Router struct {
	mux      *http.ServeMux
	handlers *handlers.Handlers
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *handlers.Handlers) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		handlers: h,
	}
	r.setupRoutes()
	return r
}

// setupRoutes configures all HTTP routes for the API.
func (r *Router) setupRoutes() {
	// Rule endpoints
	r.mux.HandleFunc("/api/v1/rules", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			r.handlers.CreateRule(w, req)
		case http.MethodGet:
			if req.URL.Query().Get("rule_id") != "" {
				r.handlers.GetRule(w, req)
			} else {
				r.handlers.ListRules(w, req)
			}
		default:
			handlers.MethodNotAllowed(w, req)
		}
	})

	r.mux.HandleFunc("/api/v1/rules/update", func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPut {
			r.handlers.UpdateRule(w, req)
		} else {
			handlers.MethodNotAllowed(w, req)
		}
	})

	r.mux.HandleFunc("/api/v1/rules/toggle", func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPost {
			r.handlers.ToggleRule(w, req)
		} else {
			handlers.MethodNotAllowed(w, req)
		}
	})

	r.mux.HandleFunc("/api/v1/rules/delete", func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodDelete {
			r.handlers.DeleteRule(w, req)
		} else {
			handlers.MethodNotAllowed(w, req)
		}
	})

	// Alert endpoints
	r.mux.HandleFunc("/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			handlers.MethodNotAllowed(w, req)
			return
		}
		if req.URL.Query().Get("alert_id") != "" {
			r.handlers.GetAlert(w, req)
		} else {
			r.handlers.ListAlerts(w, req)
		}
	})

	r.mux.HandleFunc("/api/v1/alerts/acknowledge", func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPost {
			r.handlers.AcknowledgeAlert(w, req)
		} else {
			handlers.MethodNotAllowed(w, req)
		}
	})

	r.mux.HandleFunc("/api/v1/alerts/resolve", func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPost {
			r.handlers.ResolveAlert(w, req)
		} else {
			handlers.MethodNotAllowed(w, req)
		}
	})

	// Preference endpoints
	r.mux.HandleFunc("/api/v1/preferences", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			handlers.MethodNotAllowed(w, req)
			return
		}
		if req.URL.Query().Get("user_id") != "" {
			r.handlers.GetPreference(w, req)
		} else {
			r.handlers.ListPreferences(w, req)
		}
	})

	// Device endpoints
	r.mux.HandleFunc("/api/v1/devices/stale", func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodGet {
			r.handlers.ListStaleDevices(w, req)
		} else {
			handlers.MethodNotAllowed(w, req)
		}
	})

	// System endpoints
	r.mux.HandleFunc("/api/v1/metrics", func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodGet {
			r.handlers.GetMetrics(w, req)
		} else {
			handlers.MethodNotAllowed(w, req)
		}
	})

	r.mux.HandleFunc("/health", r.handlers.Health)
}

// Handler returns the configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	return corsMiddleware(r.mux)
}
