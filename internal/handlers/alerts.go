package handlers

import (
	"net/http"

	"gridpulse/internal/database"
	"gridpulse/internal/events"
)

// AcknowledgeAlertRequest represents a request to acknowledge an alert.
type AcknowledgeAlertRequest struct {
	AlertID string `json:"alert_id"`
	UserID  string `json:"user_id"`
}

// ResolveAlertRequest represents a request to resolve an alert.
type ResolveAlertRequest struct {
	AlertID    string `json:"alert_id"`
	UserID     string `json:"user_id"`
	Resolution string `json:"resolution"`
}

// AlertDetail is an alert with its notification audit trail.
type AlertDetail struct {
	*database.Alert
	NotificationLogs []*database.NotificationLog `json:"notification_logs"`
}

// GetAlert retrieves one alert with its notification logs.
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	alertID, ok := requireQueryParam(w, r, "alert_id")
	if !ok {
		return
	}

	ctx := r.Context()
	alert, err := h.db.GetAlert(ctx, alertID)
	if handleStoreError(w, err, "alert") {
		return
	}

	logs, err := h.db.ListNotificationLogs(ctx, alertID)
	if handleStoreError(w, err, "notification logs") {
		return
	}
	if logs == nil {
		logs = []*database.NotificationLog{}
	}
	writeJSON(w, http.StatusOK, &AlertDetail{Alert: alert, NotificationLogs: logs})
}

// ListAlerts retrieves alerts with pagination.
// Query params: status, severity, device_id, limit, offset.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	var filter database.AlertFilter
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		if status != events.StatusActive && status != events.StatusAcknowledged && status != events.StatusResolved {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "status must be one of: active, acknowledged, resolved")
			return
		}
		filter.Status = &status
	}
	if severity := q.Get("severity"); severity != "" {
		if !events.IsValidSeverity(severity) {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "severity must be one of: low, medium, high, critical")
			return
		}
		filter.Severity = &severity
	}
	if deviceID := q.Get("device_id"); deviceID != "" {
		filter.DeviceID = &deviceID
	}

	p := parsePagination(r)
	alerts, err := h.db.ListAlerts(r.Context(), filter, p.Limit, p.Offset)
	if handleStoreError(w, err, "alert") {
		return
	}
	if alerts == nil {
		alerts = []*database.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// AcknowledgeAlert marks an active alert as acknowledged.
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeAlertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AlertID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "alert_id is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "user_id is required")
		return
	}

	alert, err := h.lifecycle.Acknowledge(r.Context(), req.AlertID, req.UserID)
	if handleStoreError(w, err, "alert") {
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// ResolveAlert closes an open alert.
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req ResolveAlertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AlertID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "alert_id is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "user_id is required")
		return
	}
	if req.Resolution == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "resolution is required")
		return
	}

	alert, err := h.lifecycle.Resolve(r.Context(), req.AlertID, req.UserID, req.Resolution)
	if handleStoreError(w, err, "alert") {
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
