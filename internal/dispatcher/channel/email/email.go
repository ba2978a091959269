// Package email delivers alert notifications by email through a chain of
// providers.
package email

import (
	"context"
	"fmt"
	"strings"

	"gridpulse/internal/dispatcher/channel/email/provider"
	"gridpulse/internal/events"
)

// EmailSender is the subset of the provider chain the channel needs.
type EmailSender interface {
	Send(ctx context.Context, req *provider.EmailRequest) error
}

// Sender implements the email channel.
type Sender struct {
	chain EmailSender
	from  string
}

// NewSender creates the email channel with the default provider chain:
// Resend first, SES as fallback.
func NewSender(from string) *Sender {
	return NewSenderWithChain(provider.NewChain(
		provider.NewResendProvider(),
		provider.NewSESProvider(),
	), from)
}

// NewSenderWithChain creates the email channel over a custom provider chain.
func NewSenderWithChain(chain EmailSender, from string) *Sender {
	return &Sender{chain: chain, from: from}
}

// Type returns the channel name.
func (s *Sender) Type() string {
	return "email"
}

// Send emails the alert to the target address.
func (s *Sender) Send(ctx context.Context, target string, ev *events.AlertEvent) error {
	if target == "" {
		return fmt.Errorf("email recipient is required")
	}
	if !strings.Contains(target, "@") {
		return fmt.Errorf("invalid email address format: %q", target)
	}

	subject, body := buildMessage(ev)
	return s.chain.Send(ctx, &provider.EmailRequest{
		From:    s.from,
		To:      []string{target},
		Subject: subject,
		Body:    body,
	})
}

func buildMessage(ev *events.AlertEvent) (subject, body string) {
	subject = fmt.Sprintf("[%s] %s alert on device %s",
		strings.ToUpper(ev.Severity), eventVerb(ev.Type), ev.DeviceID)

	var b strings.Builder
	fmt.Fprintf(&b, "Alert %s %s.\n\n", ev.AlertID, eventVerb(ev.Type))
	fmt.Fprintf(&b, "Device:   %s\n", ev.DeviceID)
	fmt.Fprintf(&b, "Severity: %s\n", ev.Severity)
	fmt.Fprintf(&b, "Status:   %s\n", ev.Status)
	if ev.RuleName != "" {
		fmt.Fprintf(&b, "Rule:     %s\n", ev.RuleName)
	}
	fmt.Fprintf(&b, "Time:     %s\n\n%s\n", ev.OccurredAt.Format("2006-01-02 15:04:05 MST"), ev.Description)
	return subject, b.String()
}

func eventVerb(eventType string) string {
	switch eventType {
	case events.EventAlertCreated:
		return "created"
	case events.EventAlertAcknowledged:
		return "acknowledged"
	case events.EventAlertResolved:
		return "resolved"
	case events.EventAlertAutoResolved:
		return "auto-resolved"
	}
	return "updated"
}
