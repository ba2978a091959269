// Package retry provides a bounded exponential backoff executor shared by
// the persistence writer and the notification dispatcher.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config defines retry behavior as a single policy value.
type Config struct {
	MaxAttempts       int           // Total attempts including the first (1 = no retries)
	BaseDelay         time.Duration // Backoff before the first retry
	MaxDelay          time.Duration // Cap on a single backoff interval
	Multiplier        float64       // Exponential backoff multiplier
	PerAttemptTimeout time.Duration // Deadline applied to each attempt's context (0 = none)
	MaxElapsed        time.Duration // Wall-clock budget for all attempts (0 = none)
}

// DefaultConfig returns sensible defaults for notification delivery.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       4,
		BaseDelay:         200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		Multiplier:        2.0,
		PerAttemptTimeout: 10 * time.Second,
		MaxElapsed:        time.Minute,
	}
}

// PersistenceConfig returns defaults for storage writes: fewer attempts and a
// tighter budget so a storage outage never blocks a device queue for long.
func PersistenceConfig() Config {
	return Config{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		Multiplier:        2.0,
		PerAttemptTimeout: 5 * time.Second,
		MaxElapsed:        15 * time.Second,
	}
}

// Do executes fn with retry and exponential backoff until it succeeds, the
// attempt budget is exhausted, the wall-clock budget elapses, or the context
// is cancelled. The last error is returned on failure.
func Do(ctx context.Context, cfg Config, operation string, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := func() {}
		if cfg.PerAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.PerAttemptTimeout)
		}

		err := fn(attemptCtx)
		cancel()
		if err == nil {
			if attempt > 1 {
				slog.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt,
				)
			}
			return nil
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts {
			slog.Warn("Max attempts exceeded",
				"operation", operation,
				"attempts", attempt,
				"error", err,
			)
			return lastErr
		}

		backoff := backoffFor(cfg, attempt)

		if cfg.MaxElapsed > 0 && time.Since(start)+backoff > cfg.MaxElapsed {
			slog.Warn("Retry wall-clock budget exhausted",
				"operation", operation,
				"attempts", attempt,
				"elapsed", time.Since(start),
				"error", err,
			)
			return lastErr
		}

		slog.Warn("Operation failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return lastErr
}

// backoffFor calculates the backoff duration before retry number attempt,
// with ±25% jitter to avoid thundering herds.
func backoffFor(cfg Config, attempt int) time.Duration {
	backoff := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && backoff > float64(cfg.MaxDelay) {
		backoff = float64(cfg.MaxDelay)
	}
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}
