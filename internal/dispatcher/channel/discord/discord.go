// Package discord delivers alert notifications to Discord via webhook.
package discord

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

// Embed colors per severity, Discord's decimal RGB encoding.
var severityColors = map[string]int{
	events.SeverityLow:      0x2ECC71,
	events.SeverityMedium:   0xF1C40F,
	events.SeverityHigh:     0xE67E22,
	events.SeverityCritical: 0xE74C3C,
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Timestamp   string       `json:"timestamp"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// Sender implements the discord channel.
type Sender struct {
	httpClient *http.Client
}

// NewSender creates a discord sender.
func NewSender() *Sender {
	return &Sender{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Type returns the channel name.
func (s *Sender) Type() string {
	return "discord"
}

// Send posts the alert to the target webhook URL.
func (s *Sender) Send(ctx context.Context, target string, ev *events.AlertEvent) error {
	if target == "" {
		return fmt.Errorf("discord webhook URL is required")
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return fmt.Errorf("invalid discord webhook URL: %q", target)
	}

	payload := webhookPayload{
		Embeds: []embed{{
			Title:       fmt.Sprintf("%s: %s", strings.ToUpper(ev.Severity), ev.Type),
			Description: ev.Description,
			Color:       severityColors[ev.Severity],
			Fields: []embedField{
				{Name: "Device", Value: ev.DeviceID, Inline: true},
				{Name: "Status", Value: ev.Status, Inline: true},
				{Name: "Alert ID", Value: ev.AlertID, Inline: false},
			},
			Timestamp: ev.OccurredAt.Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send discord notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}
