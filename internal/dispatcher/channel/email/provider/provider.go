// Package provider abstracts the email backends. Alerts go out through the
// first configured provider; on failure the remaining configured providers
// are tried in registration order.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// EmailRequest is an email ready for a backend to send.
type EmailRequest struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Provider is one email backend.
type Provider interface {
	// Name returns the provider name (e.g. "resend", "ses").
	Name() string

	// Send sends the email through this backend.
	Send(ctx context.Context, req *EmailRequest) error

	// IsConfigured reports whether the backend has usable credentials.
	IsConfigured() bool
}

// Chain sends through the first configured provider and falls back to the
// rest on failure.
type Chain struct {
	providers []Provider
}

// NewChain creates a provider chain. Order matters: earlier providers are
// preferred.
func NewChain(providers ...Provider) *Chain {
	for _, p := range providers {
		slog.Info("Registered email provider", "name", p.Name(), "configured", p.IsConfigured())
	}
	return &Chain{providers: providers}
}

// Send delivers the email through the chain. Returns the first provider's
// error when every configured provider fails.
func (c *Chain) Send(ctx context.Context, req *EmailRequest) error {
	var firstErr error
	for _, p := range c.providers {
		if !p.IsConfigured() {
			continue
		}
		err := p.Send(ctx, req)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		} else {
			slog.Warn("Fallback email provider failed", "provider", p.Name(), "error", err)
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return fmt.Errorf("no configured email provider available")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}
