package handlers

import (
	"net/http"
	"time"

	"gridpulse/internal/database"
)

// defaultStaleAfter is the cutoff for the stale devices listing when the
// caller does not pass one.
const defaultStaleAfter = 5 * time.Minute

// Health reports service liveness.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetMetrics returns the current pipeline counters.
// GET /api/v1/metrics
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.GetSnapshot())
}

// ListStaleDevices returns devices that have not been heard from recently.
// Query params: stale_after (duration, default 5m).
// GET /api/v1/devices/stale
func (h *Handlers) ListStaleDevices(w http.ResponseWriter, r *http.Request) {
	staleAfter := defaultStaleAfter
	if raw := r.URL.Query().Get("stale_after"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "stale_after must be a positive duration")
			return
		}
		staleAfter = d
	}

	devices, err := h.db.ListStaleDevices(r.Context(), time.Now().UTC().Add(-staleAfter))
	if handleStoreError(w, err, "device") {
		return
	}
	if devices == nil {
		devices = []*database.DeviceHeartbeat{}
	}
	writeJSON(w, http.StatusOK, devices)
}

// GetPreference retrieves one user's notification preference.
// GET /api/v1/preferences?user_id=...
func (h *Handlers) GetPreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireQueryParam(w, r, "user_id")
	if !ok {
		return
	}

	pref, err := h.db.GetPreference(r.Context(), userID)
	if handleStoreError(w, err, "preference") {
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// ListPreferences retrieves all notification preferences.
// GET /api/v1/preferences
func (h *Handlers) ListPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.db.ListPreferences(r.Context())
	if handleStoreError(w, err, "preference") {
		return
	}
	if prefs == nil {
		prefs = []*database.NotificationPreference{}
	}
	writeJSON(w, http.StatusOK, prefs)
}
