package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"gridpulse/internal/conditions"
	"gridpulse/internal/database"
	"gridpulse/internal/events"
)

// CreateRuleRequest represents a request to create a rule.
type CreateRuleRequest struct {
	Name            string          `json:"name"`
	DataType        string          `json:"data_type"`
	DeviceID        *string         `json:"device_id,omitempty"`
	Conditions      json.RawMessage `json:"conditions"`
	Severity        string          `json:"severity"`
	CooldownSeconds int             `json:"cooldown_seconds"`
}

// UpdateRuleRequest represents a request to update a rule.
type UpdateRuleRequest struct {
	Name            string          `json:"name"`
	Conditions      json.RawMessage `json:"conditions"`
	Severity        string          `json:"severity"`
	CooldownSeconds int             `json:"cooldown_seconds"`
}

// ToggleRuleRequest represents a request to enable or disable a rule.
type ToggleRuleRequest struct {
	Active bool `json:"active"`
}

// validateRuleFields checks the shared rule fields.
// Returns true if valid, false otherwise (and writes error response).
func validateRuleFields(w http.ResponseWriter, name string, condRaw json.RawMessage, severity string, cooldownSeconds int) bool {
	if name == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "name is required")
		return false
	}
	if !events.IsValidSeverity(severity) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "severity must be one of: low, medium, high, critical")
		return false
	}
	if cooldownSeconds < 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "cooldown_seconds cannot be negative")
		return false
	}
	if _, err := conditions.Parse(condRaw); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid conditions: "+err.Error())
		return false
	}
	return true
}

// CreateRule creates a new alert rule.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.DataType != events.CategoryEnergy && req.DataType != events.CategoryCarbon {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "data_type must be energy or carbon")
		return
	}
	if !validateRuleFields(w, req.Name, req.Conditions, req.Severity, req.CooldownSeconds) {
		return
	}

	ctx := r.Context()
	rule, err := h.db.CreateRule(ctx, &database.Rule{
		Name:            req.Name,
		DataType:        req.DataType,
		DeviceID:        req.DeviceID,
		Conditions:      []byte(req.Conditions),
		Severity:        req.Severity,
		CooldownSeconds: req.CooldownSeconds,
	})
	if handleStoreError(w, err, "rule") {
		return
	}

	h.reloadRules(ctx)
	writeJSON(w, http.StatusCreated, rule)
}

// GetRule retrieves a rule by ID.
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := requireQueryParam(w, r, "rule_id")
	if !ok {
		return
	}

	rule, err := h.db.GetRule(r.Context(), ruleID)
	if handleStoreError(w, err, "rule") {
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// ListRules retrieves rules with pagination, optionally filtered by device.
// Query params: device_id, limit (default 50, max 200), offset (default 0).
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	var deviceID *string
	if d := r.URL.Query().Get("device_id"); d != "" {
		deviceID = &d
	}

	p := parsePagination(r)
	rules, err := h.db.ListRules(r.Context(), deviceID, p.Limit, p.Offset)
	if handleStoreError(w, err, "rule") {
		return
	}
	if rules == nil {
		rules = []*database.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// UpdateRule updates a rule's mutable fields.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := requireQueryParam(w, r, "rule_id")
	if !ok {
		return
	}

	var req UpdateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRuleFields(w, req.Name, req.Conditions, req.Severity, req.CooldownSeconds) {
		return
	}

	ctx := r.Context()
	rule, err := h.db.UpdateRule(ctx, ruleID, req.Name, []byte(req.Conditions), req.Severity, req.CooldownSeconds)
	if handleStoreError(w, err, "rule") {
		return
	}

	h.reloadRules(ctx)
	writeJSON(w, http.StatusOK, rule)
}

// ToggleRule enables or disables a rule.
func (h *Handlers) ToggleRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := requireQueryParam(w, r, "rule_id")
	if !ok {
		return
	}

	var req ToggleRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	rule, err := h.db.SetRuleActive(ctx, ruleID, req.Active)
	if handleStoreError(w, err, "rule") {
		return
	}

	h.reloadRules(ctx)
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule removes a rule.
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := requireQueryParam(w, r, "rule_id")
	if !ok {
		return
	}

	ctx := r.Context()
	if handleStoreError(w, h.db.DeleteRule(ctx, ruleID), "rule") {
		return
	}

	h.reloadRules(ctx)
	w.WriteHeader(http.StatusNoContent)
}

// reloadRules refreshes the evaluator's rule index so API changes take
// effect without waiting for the periodic reload.
func (h *Handlers) reloadRules(ctx context.Context) {
	if h.reloader == nil {
		return
	}
	if err := h.reloader.Reload(ctx); err != nil {
		slog.Error("Failed to reload rule cache after change", "error", err)
	}
}
