package events

import "context"

// Sink receives alert events emitted by the evaluator and the lifecycle
// manager. Implementations must never block alert persistence on delivery.
type Sink interface {
	Publish(ctx context.Context, ev *AlertEvent)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

// Publish delivers the event to every sink.
func (m MultiSink) Publish(ctx context.Context, ev *AlertEvent) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}
