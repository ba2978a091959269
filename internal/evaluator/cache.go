// Package evaluator matches validated telemetry readings against the active
// alert rules and drives the automatic side of the alert lifecycle: creation,
// snapshot refresh, cooldown suppression, auto-resolution, and disabling of
// rules that keep failing to evaluate.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gridpulse/internal/conditions"
	"gridpulse/internal/database"
)

// CompiledRule is an active rule with its condition expression parsed once at
// load time, so the hot path never touches JSON.
type CompiledRule struct {
	Rule *database.Rule
	Expr *conditions.Expression
}

// RuleStore is the subset of database operations the cache needs.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]*database.Rule, error)
}

// RuleCache holds the compiled active rules indexed by data type. The index
// is rebuilt from the database and atomically swapped, so readers never see
// a partial reload.
type RuleCache struct {
	store RuleStore

	mu         sync.RWMutex
	byCategory map[string][]*CompiledRule
}

// NewRuleCache creates an empty cache over the given store. Call Reload
// before first use.
func NewRuleCache(store RuleStore) *RuleCache {
	return &RuleCache{
		store:      store,
		byCategory: make(map[string][]*CompiledRule),
	}
}

// Reload rebuilds the index from the database and swaps it in atomically.
// Rules whose stored conditions no longer parse are skipped with a warning
// rather than failing the whole reload.
func (c *RuleCache) Reload(ctx context.Context) error {
	rules, err := c.store.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload rules: %w", err)
	}

	byCategory := make(map[string][]*CompiledRule)
	for _, rule := range rules {
		expr, err := conditions.Parse(rule.Conditions)
		if err != nil {
			slog.Warn("Skipping rule with unparseable conditions",
				"rule_id", rule.RuleID, "error", err)
			continue
		}
		byCategory[rule.DataType] = append(byCategory[rule.DataType], &CompiledRule{
			Rule: rule,
			Expr: expr,
		})
	}

	c.mu.Lock()
	c.byCategory = byCategory
	c.mu.Unlock()

	slog.Debug("Rule cache reloaded", "rules", len(rules))
	return nil
}

// Candidates returns the compiled rules that apply to a reading: rules for
// the reading's data type that are either global or scoped to its device.
func (c *RuleCache) Candidates(category, deviceID string) []*CompiledRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*CompiledRule
	for _, cr := range c.byCategory[category] {
		if cr.Rule.DeviceID == nil || *cr.Rule.DeviceID == deviceID {
			out = append(out, cr)
		}
	}
	return out
}

// Remove drops a rule from the index without a database round trip. Used
// when a rule is auto-disabled so it stops matching immediately.
func (c *RuleCache) Remove(ruleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for category, rules := range c.byCategory {
		filtered := rules[:0]
		for _, cr := range rules {
			if cr.Rule.RuleID != ruleID {
				filtered = append(filtered, cr)
			}
		}
		c.byCategory[category] = filtered
	}
}

// Count returns the number of rules currently in the index.
func (c *RuleCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, rules := range c.byCategory {
		n += len(rules)
	}
	return n
}

// StartReloading reloads the cache on the given interval until ctx is
// cancelled. Reload failures are logged and retried on the next tick; the
// previous index stays in place.
func (c *RuleCache) StartReloading(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Reload(ctx); err != nil {
					slog.Error("Rule cache reload failed", "error", err)
				}
			}
		}
	}()
}
