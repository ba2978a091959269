// Package channel defines the interface for notification delivery channels.
// Each channel is a strategy keyed by the name users put in their
// notification preferences.
package channel

import (
	"context"

	"gridpulse/internal/events"
)

// Sender delivers an alert event to one target on one channel.
type Sender interface {
	// Send delivers the event to the target. The target format depends
	// on the channel:
	//   - email: recipient address
	//   - discord: webhook URL
	//   - sms: phone number in E.164 form
	Send(ctx context.Context, target string, ev *events.AlertEvent) error

	// Type returns the channel name this sender handles.
	Type() string
}

// Registry manages the available delivery channels.
type Registry struct {
	senders map[string]Sender
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Register adds a sender, replacing any previous one for the same type.
func (r *Registry) Register(sender Sender) {
	r.senders[sender.Type()] = sender
}

// Get retrieves a sender by channel name.
func (r *Registry) Get(channelType string) (Sender, bool) {
	sender, ok := r.senders[channelType]
	return sender, ok
}

// List returns all registered channel names.
func (r *Registry) List() []string {
	types := make([]string, 0, len(r.senders))
	for t := range r.senders {
		types = append(types, t)
	}
	return types
}
