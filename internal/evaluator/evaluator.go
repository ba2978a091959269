package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridpulse/internal/database"
	"gridpulse/internal/events"
	"gridpulse/internal/metrics"
)

// AlertStore is the subset of database operations the evaluator needs.
type AlertStore interface {
	GetOpenAlert(ctx context.Context, ruleID, deviceID string) (*database.Alert, error)
	GetLatestAlert(ctx context.Context, ruleID, deviceID string) (*database.Alert, error)
	CreateAlert(ctx context.Context, alert *database.Alert) (*database.Alert, error)
	RefreshAlertData(ctx context.Context, alertID string, data map[string]any) error
	ResolveAlert(ctx context.Context, alertID, resolvedBy, resolution string) (*database.Alert, error)
	SetRuleActive(ctx context.Context, ruleID string, active bool) (*database.Rule, error)
}

// pairState tracks per-(rule, device) evaluation state. The embedded mutex
// serializes the check-then-create window, which keeps at most one open alert
// per pair without a database constraint.
type pairState struct {
	mu         sync.Mutex
	missStreak int
}

// Evaluator runs validated readings through the active rules.
type Evaluator struct {
	cache   *RuleCache
	store   AlertStore
	sink    events.Sink
	metrics *metrics.Collector

	// recoveryMisses is the number of consecutive non-matching readings
	// before an open alert auto-resolves.
	recoveryMisses int
	// failureLimit is the number of consecutive evaluation failures before
	// a rule is disabled.
	failureLimit int

	pairs sync.Map // "ruleID|deviceID" -> *pairState

	failMu      sync.Mutex
	failStreaks map[string]int
}

// NewEvaluator creates an evaluator over the given rule cache and store.
func NewEvaluator(cache *RuleCache, store AlertStore, sink events.Sink, collector *metrics.Collector, recoveryMisses, failureLimit int) *Evaluator {
	return &Evaluator{
		cache:          cache,
		store:          store,
		sink:           sink,
		metrics:        collector,
		recoveryMisses: recoveryMisses,
		failureLimit:   failureLimit,
		failStreaks:    make(map[string]int),
	}
}

// Process evaluates one validated reading against every applicable rule.
// Rule evaluation failures and alert store failures affect only the rule they
// occur on; the remaining candidates still run.
func (e *Evaluator) Process(ctx context.Context, rec *events.TelemetryRecord) {
	for _, cr := range e.cache.Candidates(rec.Category, rec.DeviceID) {
		matched, err := cr.Expr.Evaluate(rec.Fields)
		if err != nil {
			e.recordEvaluationFailure(ctx, cr.Rule, err)
			continue
		}
		e.resetFailStreak(cr.Rule.RuleID)

		if matched {
			e.handleMatch(ctx, cr.Rule, rec)
		} else {
			e.handleMiss(ctx, cr.Rule, rec)
		}
	}
}

// handleMatch creates an alert for the pair, refreshes the open one, or
// suppresses within the cooldown window.
func (e *Evaluator) handleMatch(ctx context.Context, rule *database.Rule, rec *events.TelemetryRecord) {
	state := e.pairState(rule.RuleID, rec.DeviceID)
	state.mu.Lock()
	defer state.mu.Unlock()

	state.missStreak = 0

	open, err := e.store.GetOpenAlert(ctx, rule.RuleID, rec.DeviceID)
	if err != nil {
		slog.Error("Failed to look up open alert",
			"rule_id", rule.RuleID, "device_id", rec.DeviceID, "error", err)
		e.metrics.RecordError()
		return
	}
	if open != nil {
		if err := e.store.RefreshAlertData(ctx, open.AlertID, rec.Fields); err != nil {
			slog.Error("Failed to refresh alert snapshot",
				"alert_id", open.AlertID, "error", err)
			e.metrics.RecordError()
			return
		}
		e.metrics.Increment(metrics.CounterStillBreaching)
		return
	}

	if e.inCooldown(ctx, rule, rec.DeviceID) {
		e.metrics.Increment(metrics.CounterCooldownSuppressed)
		return
	}

	ruleID := rule.RuleID
	alert, err := e.store.CreateAlert(ctx, &database.Alert{
		AlertID:     uuid.NewString(),
		RuleID:      &ruleID,
		DeviceID:    rec.DeviceID,
		Severity:    rule.Severity,
		Description: fmt.Sprintf("%s: condition met for device %s", rule.Name, rec.DeviceID),
		Data:        rec.Fields,
	})
	if err != nil {
		slog.Error("Failed to create alert",
			"rule_id", rule.RuleID, "device_id", rec.DeviceID, "error", err)
		e.metrics.RecordError()
		return
	}

	slog.Info("Alert created",
		"alert_id", alert.AlertID,
		"rule_id", rule.RuleID,
		"device_id", rec.DeviceID,
		"severity", rule.Severity,
	)
	e.metrics.Increment(metrics.CounterAlertsCreated)
	e.sink.Publish(ctx, &events.AlertEvent{
		Type:        events.EventAlertCreated,
		AlertID:     alert.AlertID,
		RuleID:      &ruleID,
		RuleName:    rule.Name,
		DeviceID:    rec.DeviceID,
		Severity:    rule.Severity,
		Status:      events.StatusActive,
		Description: alert.Description,
		Snapshot:    rec.Fields,
		OccurredAt:  time.Now().UTC(),
	})
}

// handleMiss advances the recovery streak and auto-resolves the pair's open
// alert once enough consecutive readings stop matching.
func (e *Evaluator) handleMiss(ctx context.Context, rule *database.Rule, rec *events.TelemetryRecord) {
	state := e.pairState(rule.RuleID, rec.DeviceID)
	state.mu.Lock()
	defer state.mu.Unlock()

	state.missStreak++
	// Check the store only when the streak first reaches the threshold;
	// further misses cannot change the outcome until the next match.
	if state.missStreak != e.recoveryMisses {
		return
	}

	open, err := e.store.GetOpenAlert(ctx, rule.RuleID, rec.DeviceID)
	if err != nil {
		slog.Error("Failed to look up open alert for recovery",
			"rule_id", rule.RuleID, "device_id", rec.DeviceID, "error", err)
		e.metrics.RecordError()
		state.missStreak--
		return
	}
	if open == nil {
		return
	}

	resolved, err := e.store.ResolveAlert(ctx, open.AlertID, "system", "auto-recovered")
	if err != nil {
		if errors.Is(err, database.ErrInvalidTransition) || errors.Is(err, database.ErrNotFound) {
			// Resolved by a user between the lookup and here.
			return
		}
		slog.Error("Failed to auto-resolve alert", "alert_id", open.AlertID, "error", err)
		e.metrics.RecordError()
		state.missStreak--
		return
	}

	slog.Info("Alert auto-resolved",
		"alert_id", resolved.AlertID,
		"rule_id", rule.RuleID,
		"device_id", rec.DeviceID,
	)
	e.metrics.Increment(metrics.CounterAutoResolved)
	ruleID := rule.RuleID
	e.sink.Publish(ctx, &events.AlertEvent{
		Type:        events.EventAlertAutoResolved,
		AlertID:     resolved.AlertID,
		RuleID:      &ruleID,
		RuleName:    rule.Name,
		DeviceID:    rec.DeviceID,
		Severity:    resolved.Severity,
		Status:      events.StatusResolved,
		Description: resolved.Description,
		OccurredAt:  time.Now().UTC(),
	})
}

// inCooldown reports whether the most recent resolved alert for the pair is
// still inside the rule's cooldown window. The window is anchored at the
// resolution time, falling back to creation time.
func (e *Evaluator) inCooldown(ctx context.Context, rule *database.Rule, deviceID string) bool {
	if rule.CooldownSeconds <= 0 {
		return false
	}

	latest, err := e.store.GetLatestAlert(ctx, rule.RuleID, deviceID)
	if err != nil {
		slog.Error("Failed to look up latest alert for cooldown",
			"rule_id", rule.RuleID, "device_id", deviceID, "error", err)
		e.metrics.RecordError()
		// Fail open: a missed alert is worse than a duplicate one.
		return false
	}
	if latest == nil {
		return false
	}

	anchor := latest.CreatedAt
	if latest.ResolvedAt != nil {
		anchor = *latest.ResolvedAt
	}
	return time.Since(anchor) < time.Duration(rule.CooldownSeconds)*time.Second
}

// recordEvaluationFailure advances the rule's failure streak and disables the
// rule once it keeps failing. A disabled rule is removed from the cache
// immediately so it stops matching before the next reload.
func (e *Evaluator) recordEvaluationFailure(ctx context.Context, rule *database.Rule, evalErr error) {
	e.metrics.Increment(metrics.CounterEvaluationErrors)

	e.failMu.Lock()
	e.failStreaks[rule.RuleID]++
	streak := e.failStreaks[rule.RuleID]
	e.failMu.Unlock()

	slog.Warn("Rule evaluation failed",
		"rule_id", rule.RuleID,
		"streak", streak,
		"error", evalErr,
	)
	if streak < e.failureLimit {
		return
	}

	if _, err := e.store.SetRuleActive(ctx, rule.RuleID, false); err != nil {
		slog.Error("Failed to disable failing rule", "rule_id", rule.RuleID, "error", err)
		e.metrics.RecordError()
		return
	}
	e.cache.Remove(rule.RuleID)
	e.resetFailStreak(rule.RuleID)
	e.metrics.Increment(metrics.CounterRulesAutoDisabled)
	slog.Warn("Rule disabled after repeated evaluation failures",
		"rule_id", rule.RuleID,
		"failures", streak,
	)
}

func (e *Evaluator) resetFailStreak(ruleID string) {
	e.failMu.Lock()
	delete(e.failStreaks, ruleID)
	e.failMu.Unlock()
}

func (e *Evaluator) pairState(ruleID, deviceID string) *pairState {
	key := ruleID + "|" + deviceID
	if state, ok := e.pairs.Load(key); ok {
		return state.(*pairState)
	}
	state, _ := e.pairs.LoadOrStore(key, &pairState{})
	return state.(*pairState)
}
