// Package sms delivers alert notifications through an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gridpulse/internal/events"
)

// maxMessageLength keeps messages inside a single SMS segment budget used by
// the gateway.
const maxMessageLength = 320

// Sender implements the sms channel.
type Sender struct {
	gatewayURL string
	httpClient *http.Client
}

// NewSender creates an sms sender posting to the given gateway endpoint.
func NewSender(gatewayURL string) *Sender {
	return &Sender{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Type returns the channel name.
func (s *Sender) Type() string {
	return "sms"
}

// Send posts the alert text to the gateway for the target phone number.
func (s *Sender) Send(ctx context.Context, target string, ev *events.AlertEvent) error {
	if s.gatewayURL == "" {
		return fmt.Errorf("sms gateway is not configured")
	}
	if !strings.HasPrefix(target, "+") {
		return fmt.Errorf("invalid phone number %q: must be in E.164 form", target)
	}

	message := fmt.Sprintf("[%s] %s on %s: %s",
		strings.ToUpper(ev.Severity), ev.Type, ev.DeviceID, ev.Description)
	if len(message) > maxMessageLength {
		message = message[:maxMessageLength-3] + "..."
	}

	body, err := json.Marshal(map[string]string{
		"to":      target,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
