// Package metrics provides an in-process counter collector that is
// periodically reported to Redis for the dashboard collaborator. Counters are
// the only observability surface the pipeline depends on: every drop,
// suppression, and delivery failure is counted here.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MetricsKey is the Redis key the collector writes its snapshot to.
	MetricsKey = "metrics:gridpulse"
	// MetricsTTL is how long a snapshot stays in Redis if not refreshed.
	MetricsTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Counter names used across the pipeline.
const (
	CounterDecodeErrors       = "decode_errors"
	CounterQueueOverflow      = "queue_overflow_drops"
	CounterValidationFailures = "validation_failures"
	CounterRegistryErrors     = "registry_errors"
	CounterPersistenceDrops   = "persistence_drops"
	CounterAlertsCreated      = "alerts_created"
	CounterStillBreaching     = "alerts_still_breaching"
	CounterCooldownSuppressed = "alerts_cooldown_suppressed"
	CounterAutoResolved       = "alerts_auto_resolved"
	CounterRulesAutoDisabled  = "rules_auto_disabled"
	CounterEvaluationErrors   = "rule_evaluation_errors"
	CounterNotificationsSent  = "notifications_sent"
	CounterNotificationsFail  = "notifications_failed"
	CounterExportErrors       = "export_errors"
)

// Snapshot is the JSON document written to Redis and served by the API.
type Snapshot struct {
	ServiceName       string            `json:"service_name"`
	StartedAt         time.Time         `json:"started_at"`
	LastUpdated       time.Time         `json:"last_updated"`
	MessagesReceived  uint64            `json:"messages_received"`
	MessagesProcessed uint64            `json:"messages_processed"`
	ProcessingErrors  uint64            `json:"processing_errors"`
	Counters          map[string]uint64 `json:"counters,omitempty"`
}

// Collector collects pipeline counters and reports them to Redis.
// A nil Redis client disables reporting; counting still works, which keeps
// unit tests free of external dependencies.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	messagesReceived  atomic.Uint64
	messagesProcessed atomic.Uint64
	processingErrors  atomic.Uint64

	mu       sync.RWMutex
	counters map[string]*atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new collector. redisClient may be nil.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		counters:       make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing snapshots to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins periodic reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.write(context.Background()) // final write
				return
			case <-c.stopCh:
				c.write(context.Background()) // final write
				return
			case <-ticker.C:
				c.write(ctx)
			}
		}
	}()
}

// Stop stops the reporting loop after a final write.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// RecordReceived increments the messages received counter.
func (c *Collector) RecordReceived() {
	c.messagesReceived.Add(1)
}

// RecordProcessed increments the messages processed counter.
func (c *Collector) RecordProcessed() {
	c.messagesProcessed.Add(1)
}

// RecordError increments the processing errors counter.
func (c *Collector) RecordError() {
	c.processingErrors.Add(1)
}

// Increment increments a named counter.
func (c *Collector) Increment(name string) {
	c.mu.RLock()
	counter, exists := c.counters[name]
	c.mu.RUnlock()

	if !exists {
		c.mu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = c.counters[name]; !exists {
			counter = &atomic.Uint64{}
			c.counters[name] = counter
		}
		c.mu.Unlock()
	}
	counter.Add(1)
}

// Count returns the current value of a named counter.
func (c *Collector) Count(name string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if counter, ok := c.counters[name]; ok {
		return counter.Load()
	}
	return 0
}

// GetSnapshot returns the current counters without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	c.mu.RLock()
	counters := make(map[string]uint64, len(c.counters))
	for name, counter := range c.counters {
		counters[name] = counter.Load()
	}
	c.mu.RUnlock()

	return &Snapshot{
		ServiceName:       c.serviceName,
		StartedAt:         c.startedAt,
		LastUpdated:       time.Now().UTC(),
		MessagesReceived:  c.messagesReceived.Load(),
		MessagesProcessed: c.messagesProcessed.Load(),
		ProcessingErrors:  c.processingErrors.Load(),
		Counters:          counters,
	}
}

// write serializes the snapshot and stores it in Redis.
func (c *Collector) write(ctx context.Context) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(c.GetSnapshot())
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	if err := c.redis.Set(ctx, MetricsKey, data, MetricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", MetricsKey)
}
