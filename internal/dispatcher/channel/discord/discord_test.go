package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gridpulse/internal/events"
)

func testEvent() *events.AlertEvent {
	return &events.AlertEvent{
		Type:        events.EventAlertCreated,
		AlertID:     "alert-1",
		DeviceID:    "meter-1",
		Severity:    events.SeverityCritical,
		Status:      events.StatusActive,
		Description: "power above threshold",
		OccurredAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSender_Send(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSender()
	if err := s.Send(context.Background(), srv.URL, testEvent()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(received.Embeds) != 1 {
		t.Fatalf("received %d embeds, want 1", len(received.Embeds))
	}
	e := received.Embeds[0]
	if e.Color != severityColors[events.SeverityCritical] {
		t.Errorf("embed color = %d, want critical color", e.Color)
	}
	if e.Fields[0].Value != "meter-1" {
		t.Errorf("device field = %q, want meter-1", e.Fields[0].Value)
	}
}

func TestSender_Send_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewSender()
	if err := s.Send(context.Background(), srv.URL, testEvent()); err == nil {
		t.Fatal("Send() expected error for non-2xx response")
	}
}

func TestSender_Send_InvalidTarget(t *testing.T) {
	s := NewSender()
	if err := s.Send(context.Background(), "", testEvent()); err == nil {
		t.Fatal("Send() expected error for empty webhook URL")
	}
	if err := s.Send(context.Background(), "general-channel", testEvent()); err == nil {
		t.Fatal("Send() expected error for non-URL target")
	}
}
