// Package pipeline routes telemetry records through validation, persistence,
// and rule evaluation. Each device gets its own worker goroutine with a
// bounded queue, so readings from one device are processed in arrival order
// while devices proceed independently.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"gridpulse/internal/database"
	"gridpulse/internal/events"
	"gridpulse/internal/lifecycle"
	"gridpulse/internal/metrics"
	"gridpulse/internal/retry"
	"gridpulse/internal/schema"
)

// TelemetryStore is the subset of database operations the pipeline needs.
type TelemetryStore interface {
	UpsertPoint(ctx context.Context, p *database.TelemetryPoint) error
	TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error
}

// Evaluator runs a validated reading through the active rules.
type Evaluator interface {
	Process(ctx context.Context, rec *events.TelemetryRecord)
}

// Options tune the pipeline's concurrency behavior.
type Options struct {
	// QueueCapacity bounds each device queue; the oldest reading is
	// dropped when a queue is full.
	QueueCapacity int
	// WorkerLimit caps the number of live device workers.
	WorkerLimit int64
	// IdleTimeout is how long a device worker lingers without traffic
	// before it is reaped.
	IdleTimeout time.Duration
	// PersistRetry governs retries of telemetry writes.
	PersistRetry retry.Config
}

// Pipeline fans telemetry out to per-device workers.
type Pipeline struct {
	opts      Options
	validator *schema.Validator
	store     TelemetryStore
	evaluator Evaluator
	lifecycle *lifecycle.Manager
	metrics   *metrics.Collector

	ctx context.Context
	sem *semaphore.Weighted

	mu      sync.Mutex
	workers map[string]*deviceWorker
	wg      sync.WaitGroup
}

type deviceWorker struct {
	deviceID string
	queue    chan *events.TelemetryRecord
}

// NewPipeline wires the pipeline stages together.
func NewPipeline(opts Options, validator *schema.Validator, store TelemetryStore, ev Evaluator, lc *lifecycle.Manager, collector *metrics.Collector) *Pipeline {
	return &Pipeline{
		opts:      opts,
		validator: validator,
		store:     store,
		evaluator: ev,
		lifecycle: lc,
		metrics:   collector,
		sem:       semaphore.NewWeighted(opts.WorkerLimit),
		workers:   make(map[string]*deviceWorker),
	}
}

// Start binds the pipeline to its lifetime context. Must be called before
// the first Enqueue.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx = ctx
}

// Enqueue hands a record to its device's worker, spawning one if needed.
// Never blocks: when the device queue is full the oldest queued reading is
// dropped, and when the worker limit is reached the record itself is dropped.
func (p *Pipeline) Enqueue(rec *events.TelemetryRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[rec.DeviceID]
	if !ok {
		if !p.sem.TryAcquire(1) {
			slog.Warn("Worker limit reached, dropping reading", "device_id", rec.DeviceID)
			p.metrics.Increment(metrics.CounterQueueOverflow)
			return
		}
		w = &deviceWorker{
			deviceID: rec.DeviceID,
			queue:    make(chan *events.TelemetryRecord, p.opts.QueueCapacity),
		}
		p.workers[rec.DeviceID] = w
		p.wg.Add(1)
		go p.runWorker(w)
	}

	select {
	case w.queue <- rec:
		return
	default:
	}

	// Queue full: drop the oldest reading to make room for the newest. The
	// worker may have drained a slot in the meantime, in which case nothing
	// is dropped and the overflow counter stays untouched.
	select {
	case <-w.queue:
		p.metrics.Increment(metrics.CounterQueueOverflow)
	default:
	}
	select {
	case w.queue <- rec:
	default:
	}
}

// WorkerCount returns the number of live device workers.
func (p *Pipeline) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Shutdown waits for all device workers to drain. The pipeline context must
// already be cancelled.
func (p *Pipeline) Shutdown() {
	p.wg.Wait()
}

func (p *Pipeline) runWorker(w *deviceWorker) {
	defer p.wg.Done()
	defer p.sem.Release(1)

	idle := time.NewTimer(p.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.retire(w)
			return
		case rec := <-w.queue:
			p.process(rec)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.opts.IdleTimeout)
		case <-idle.C:
			if p.retire(w) {
				return
			}
			idle.Reset(p.opts.IdleTimeout)
		}
	}
}

// retire removes the worker from the routing table unless new readings
// arrived in the meantime. Returns true when the worker should exit.
func (p *Pipeline) retire(w *deviceWorker) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(w.queue) > 0 && p.ctx.Err() == nil {
		return false
	}
	delete(p.workers, w.deviceID)
	return true
}

// process runs one record through the stages. Stage failures are terminal
// for the record only; the worker keeps going.
func (p *Pipeline) process(rec *events.TelemetryRecord) {
	ctx := p.ctx

	// Status messages carry no telemetry fields; they only prove the
	// device is alive.
	if rec.Category == events.CategoryStatus {
		if err := p.touchDevice(ctx, rec); err != nil {
			slog.Error("Failed to record heartbeat", "device_id", rec.DeviceID, "error", err)
			p.metrics.RecordError()
			return
		}
		p.metrics.RecordProcessed()
		return
	}

	if err := p.validator.Validate(ctx, rec); err != nil {
		var vErr *schema.ValidationError
		if errors.As(err, &vErr) {
			p.metrics.Increment(metrics.CounterValidationFailures)
			if _, raiseErr := p.lifecycle.RaiseDataFormatAlert(ctx, rec.DeviceID, vErr.Issues, rec.Fields); raiseErr != nil {
				slog.Error("Failed to raise data format alert",
					"device_id", rec.DeviceID, "error", raiseErr)
				p.metrics.RecordError()
			}
			return
		}
		// Schema lookup failed: validity is unknown, so the reading is
		// dropped without raising an alert against the device.
		slog.Error("Dropping reading, schema unavailable",
			"device_id", rec.DeviceID, "error", err)
		p.metrics.Increment(metrics.CounterRegistryErrors)
		return
	}

	if err := p.persist(ctx, rec); err != nil {
		slog.Error("Failed to persist reading after retries",
			"device_id", rec.DeviceID, "error", err)
		p.metrics.Increment(metrics.CounterPersistenceDrops)
		// Evaluation still runs: alerting must not depend on storage
		// availability.
	}

	p.evaluator.Process(ctx, rec)
	p.metrics.RecordProcessed()
}

func (p *Pipeline) persist(ctx context.Context, rec *events.TelemetryRecord) error {
	point := &database.TelemetryPoint{
		DeviceID:  rec.DeviceID,
		Category:  rec.Category,
		Timestamp: rec.Timestamp,
		Fields:    rec.Fields,
	}
	return retry.Do(ctx, p.opts.PersistRetry, "persist telemetry", func(ctx context.Context) error {
		if err := p.store.UpsertPoint(ctx, point); err != nil {
			return err
		}
		return p.store.TouchDevice(ctx, rec.DeviceID, rec.Timestamp)
	})
}

func (p *Pipeline) touchDevice(ctx context.Context, rec *events.TelemetryRecord) error {
	return retry.Do(ctx, p.opts.PersistRetry, "record heartbeat", func(ctx context.Context) error {
		return p.store.TouchDevice(ctx, rec.DeviceID, rec.Timestamp)
	})
}
