package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gridpulse/internal/events"
)

func testEvent(description string) *events.AlertEvent {
	return &events.AlertEvent{
		Type:        events.EventAlertCreated,
		AlertID:     "alert-1",
		DeviceID:    "meter-1",
		Severity:    events.SeverityHigh,
		Status:      events.StatusActive,
		Description: description,
		OccurredAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSender_Send(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL)
	if err := s.Send(context.Background(), "+15550100", testEvent("power above threshold")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if received["to"] != "+15550100" {
		t.Errorf("to = %q, want +15550100", received["to"])
	}
	if !strings.Contains(received["message"], "meter-1") {
		t.Errorf("message %q does not mention the device", received["message"])
	}
}

func TestSender_Send_TruncatesLongMessages(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	s := NewSender(srv.URL)
	long := strings.Repeat("voltage out of range ", 40)
	if err := s.Send(context.Background(), "+15550100", testEvent(long)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(received["message"]) > maxMessageLength {
		t.Errorf("message length = %d, want <= %d", len(received["message"]), maxMessageLength)
	}
	if !strings.HasSuffix(received["message"], "...") {
		t.Error("truncated message should end with ellipsis")
	}
}

func TestSender_Send_Validation(t *testing.T) {
	s := NewSender("")
	if err := s.Send(context.Background(), "+15550100", testEvent("x")); err == nil {
		t.Fatal("Send() expected error when gateway is not configured")
	}

	s = NewSender("http://gateway.local")
	if err := s.Send(context.Background(), "5550100", testEvent("x")); err == nil {
		t.Fatal("Send() expected error for non-E.164 number")
	}
}
