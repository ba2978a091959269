// Package gateway receives device telemetry over MQTT and turns raw messages
// into telemetry records for the pipeline. Malformed messages are dropped and
// counted; they never reach validation.
package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gridpulse/internal/events"
	"gridpulse/internal/metrics"
)

// Subscribed topic filters. The trailing wildcard is the device ID.
const (
	TopicEnergy = "telemetry/energy/+"
	TopicCarbon = "telemetry/carbon/+"
	TopicStatus = "device/status/+"
)

// millisEpochThreshold distinguishes unix-second from unix-millisecond
// timestamps. Values above it are read as milliseconds.
const millisEpochThreshold = 1e12

// Handler receives decoded telemetry records. It must not block: the
// pipeline behind it does its own queueing.
type Handler func(rec *events.TelemetryRecord)

// Gateway is the MQTT ingestion front end.
type Gateway struct {
	broker   string
	clientID string
	client   mqtt.Client
	handler  Handler
	metrics  *metrics.Collector
}

// NewGateway creates a gateway that forwards decoded records to handler.
func NewGateway(broker, clientID string, handler Handler, collector *metrics.Collector) *Gateway {
	return &Gateway{
		broker:   broker,
		clientID: clientID,
		handler:  handler,
		metrics:  collector,
	}
}

// Start connects to the broker and subscribes to the telemetry topics.
// Subscriptions are re-established on every reconnect.
func (g *Gateway) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(g.broker)
	opts.SetClientID(g.clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "broker", g.broker, "error", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		slog.Info("MQTT connected", "broker", g.broker)
		for _, topic := range []string{TopicEnergy, TopicCarbon, TopicStatus} {
			if token := client.Subscribe(topic, 1, g.onMessage); token.Wait() && token.Error() != nil {
				slog.Error("Failed to subscribe", "topic", topic, "error", token.Error())
			}
		}
	})

	g.client = mqtt.NewClient(opts)
	if token := g.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (g *Gateway) Close() {
	if g.client != nil {
		g.client.Disconnect(250)
	}
}

func (g *Gateway) onMessage(_ mqtt.Client, msg mqtt.Message) {
	g.metrics.RecordReceived()

	rec, err := decodeMessage(msg.Topic(), msg.Payload())
	if err != nil {
		slog.Warn("Dropping undecodable message", "topic", msg.Topic(), "error", err)
		g.metrics.Increment(metrics.CounterDecodeErrors)
		return
	}
	g.handler(rec)
}

// decodeMessage turns a raw MQTT message into a telemetry record. The device
// ID and category come from the topic, the fields from the JSON payload.
func decodeMessage(topic string, payload []byte) (*events.TelemetryRecord, error) {
	deviceID, category, err := parseTopic(topic)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	ts, err := extractTimestamp(fields)
	if err != nil {
		return nil, err
	}

	rec := &events.TelemetryRecord{
		DeviceID:  deviceID,
		Category:  category,
		Timestamp: ts,
		Fields:    fields,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// parseTopic maps a concrete topic to its device ID and data category.
func parseTopic(topic string) (deviceID, category string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[2] == "" {
		return "", "", fmt.Errorf("unexpected topic %q", topic)
	}

	switch {
	case parts[0] == "telemetry" && parts[1] == events.CategoryEnergy:
		return parts[2], events.CategoryEnergy, nil
	case parts[0] == "telemetry" && parts[1] == events.CategoryCarbon:
		return parts[2], events.CategoryCarbon, nil
	case parts[0] == "device" && parts[1] == "status":
		return parts[2], events.CategoryStatus, nil
	default:
		return "", "", fmt.Errorf("unexpected topic %q", topic)
	}
}

// extractTimestamp pops the "timestamp" field from the payload and parses it
// as unix seconds, unix milliseconds, or RFC 3339. A payload without a
// timestamp is stamped with the arrival time.
func extractTimestamp(fields map[string]any) (time.Time, error) {
	raw, ok := fields["timestamp"]
	if !ok {
		return time.Now().UTC(), nil
	}
	delete(fields, "timestamp")

	switch v := raw.(type) {
	case float64:
		if v > millisEpochThreshold {
			return time.UnixMilli(int64(v)).UTC(), nil
		}
		return time.Unix(int64(v), 0).UTC(), nil
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", v, err)
		}
		return ts.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("timestamp has unsupported type %T", raw)
	}
}
