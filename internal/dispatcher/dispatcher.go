// Package dispatcher fans alert events out to the users authorized for the
// alerting device, over each user's preferred channels. Delivery is fully
// decoupled from alert state: a failed notification is logged and counted
// but never changes the alert.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"gridpulse/internal/database"
	"gridpulse/internal/dispatcher/channel"
	"gridpulse/internal/events"
	"gridpulse/internal/metrics"
	"gridpulse/internal/registry"
	"gridpulse/internal/retry"
)

// Store is the subset of database operations the dispatcher needs.
type Store interface {
	ListPreferences(ctx context.Context) ([]*database.NotificationPreference, error)
	AppendNotificationLog(ctx context.Context, l *database.NotificationLog) error
}

// Dispatcher delivers alert events as notifications. It implements
// events.Sink and can be registered directly on the evaluator and the
// lifecycle manager.
type Dispatcher struct {
	store    Store
	auth     registry.Authorization
	channels *channel.Registry
	metrics  *metrics.Collector
	retryCfg retry.Config

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given channel registry.
func NewDispatcher(store Store, auth registry.Authorization, channels *channel.Registry, collector *metrics.Collector, retryCfg retry.Config) *Dispatcher {
	return &Dispatcher{
		store:    store,
		auth:     auth,
		channels: channels,
		metrics:  collector,
		retryCfg: retryCfg,
	}
}

// Publish queues delivery of the event and returns immediately. Only alert
// creation is fanned out to users; state transitions stay on the export
// topic for dashboards.
func (d *Dispatcher) Publish(ctx context.Context, ev *events.AlertEvent) {
	if ev.Type != events.EventAlertCreated {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.dispatch(ctx, ev)
	}()
}

// Close waits for in-flight deliveries to finish.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, ev *events.AlertEvent) {
	users, err := d.auth.GetAuthorizedUsers(ctx, ev.DeviceID)
	if err != nil {
		slog.Error("Failed to resolve authorized users, notification skipped",
			"alert_id", ev.AlertID, "device_id", ev.DeviceID, "error", err)
		d.metrics.RecordError()
		return
	}
	if len(users) == 0 {
		slog.Debug("No users authorized for device", "device_id", ev.DeviceID)
		return
	}

	prefs, err := d.store.ListPreferences(ctx)
	if err != nil {
		slog.Error("Failed to load notification preferences, notification skipped",
			"alert_id", ev.AlertID, "error", err)
		d.metrics.RecordError()
		return
	}

	authorized := make(map[string]bool, len(users))
	for _, u := range users {
		authorized[u] = true
	}

	var wg sync.WaitGroup
	for _, pref := range prefs {
		if !authorized[pref.UserID] || !pref.WantsSeverity(ev.Severity) {
			continue
		}
		for channelType, target := range pref.Channels {
			wg.Add(1)
			go func(userID, channelType, target string) {
				defer wg.Done()
				d.deliver(ctx, ev, userID, channelType, target)
			}(pref.UserID, channelType, target)
		}
	}
	wg.Wait()
}

// deliver sends the event to one (user, channel, target) triple, writing an
// audit log row for every attempt.
func (d *Dispatcher) deliver(ctx context.Context, ev *events.AlertEvent, userID, channelType, target string) {
	sender, ok := d.channels.Get(channelType)
	if !ok {
		slog.Warn("Unknown notification channel, skipping",
			"channel", channelType, "user_id", userID)
		d.logAttempt(ev.AlertID, userID, channelType, "unknown channel")
		d.metrics.Increment(metrics.CounterNotificationsFail)
		return
	}

	err := retry.Do(ctx, d.retryCfg, "send "+channelType, func(ctx context.Context) error {
		sendErr := sender.Send(ctx, target, ev)
		if sendErr != nil {
			d.logAttempt(ev.AlertID, userID, channelType, sendErr.Error())
		} else {
			d.logAttempt(ev.AlertID, userID, channelType, "")
		}
		return sendErr
	})
	if err != nil {
		slog.Error("Notification delivery failed",
			"alert_id", ev.AlertID,
			"user_id", userID,
			"channel", channelType,
			"error", err,
		)
		d.metrics.Increment(metrics.CounterNotificationsFail)
		return
	}

	slog.Info("Notification delivered",
		"alert_id", ev.AlertID,
		"user_id", userID,
		"channel", channelType,
	)
	d.metrics.Increment(metrics.CounterNotificationsSent)
}

// logAttempt appends one delivery attempt to the audit trail. Uses a
// background context so the trail survives pipeline shutdown mid-delivery.
func (d *Dispatcher) logAttempt(alertID, userID, channelType, errText string) {
	l := &database.NotificationLog{
		AlertID: alertID,
		UserID:  userID,
		Channel: channelType,
		Status:  database.NotificationSent,
	}
	if errText != "" {
		l.Status = database.NotificationFailed
		l.Error = &errText
	}
	if err := d.store.AppendNotificationLog(context.Background(), l); err != nil {
		slog.Error("Failed to write notification log", "alert_id", alertID, "error", err)
	}
}
