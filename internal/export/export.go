// Package export publishes alert lifecycle events to Kafka for the dashboard
// and analytics consumers. Export is best effort: a failed publish is counted
// and logged but never blocks the pipeline or changes alert state.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"gridpulse/internal/events"
	"gridpulse/internal/metrics"
)

// writeTimeout is the maximum time to wait for a Kafka write operation.
const writeTimeout = 10 * time.Second

// Producer publishes alert events to the export topic. It implements
// events.Sink.
type Producer struct {
	writer  *kafka.Writer
	topic   string
	metrics *metrics.Collector
}

// NewProducer creates a Kafka producer for the export topic. Messages are
// keyed by device ID so one device's lifecycle stays ordered within a
// partition.
func NewProducer(brokers, topic string, collector *metrics.Collector) (*Producer, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	slog.Info("Initializing Kafka producer", "brokers", brokerList, "topic", topic)
	createTopicIfNotExists(brokerList[0], topic)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{writer: writer, topic: topic, metrics: collector}, nil
}

// Publish serializes the event to JSON and writes it to the export topic.
func (p *Producer) Publish(ctx context.Context, ev *events.AlertEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal alert event", "alert_id", ev.AlertID, "error", err)
		p.metrics.Increment(metrics.CounterExportErrors)
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.DeviceID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "alert_id", Value: []byte(ev.AlertID)},
		},
		Time: ev.OccurredAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("Failed to publish alert event",
			"alert_id", ev.AlertID,
			"topic", p.topic,
			"error", err,
		)
		p.metrics.Increment(metrics.CounterExportErrors)
		return
	}

	slog.Debug("Published alert event",
		"alert_id", ev.AlertID,
		"event_type", ev.Type,
		"topic", p.topic,
	)
}

// Close flushes and closes the Kafka writer.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// createTopicIfNotExists creates the topic with default settings. Best
// effort: in managed clusters topic creation is usually locked down, and the
// write path reports the real error anyway.
func createTopicIfNotExists(broker, topic string) {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		slog.Warn("Could not dial Kafka for topic creation", "broker", broker, "error", err)
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		slog.Warn("Could not resolve Kafka controller", "error", err)
		return
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		slog.Warn("Could not dial Kafka controller", "error", err)
		return
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		slog.Warn("Could not create topic", "topic", topic, "error", err)
		return
	}
	slog.Info("Ensured Kafka topic exists", "topic", topic)
}
