package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/income-clarity/healthwatch/internal/alerting/adapters/channels"
	"github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/repository"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
	"github.com/income-clarity/healthwatch/internal/platform/metrics"
	"github.com/income-clarity/healthwatch/internal/shared/events"
)

// rateWindow tracks alert counts for one (category, severity) key.
type rateWindow struct {
	start time.Time
	count int
}

// AlertManager owns the alert pipeline: rate limiting, quiet-hour
// suppression, channel dispatch, capped history, resolution and
// escalation. Send is the single entry point for raising alerts.
type AlertManager struct {
	logger  logger.Logger
	metrics *metrics.Metrics
	bus     *events.Bus
	repo    repository.HistoryRepository

	mu          sync.Mutex
	cfg         config.AlertingConfig
	channels    []channels.Channel
	history     []*model.Alert // newest first
	rateWindows map[string]*rateWindow
	generated   int

	// now is a clock hook for tests.
	now func() time.Time
}

// NewAlertManager wires the pipeline over the configured channels.
func NewAlertManager(
	cfg config.AlertingConfig,
	chs []channels.Channel,
	repo repository.HistoryRepository,
	bus *events.Bus,
	log logger.Logger,
	m *metrics.Metrics,
) *AlertManager {
	return &AlertManager{
		logger:      log,
		metrics:     m,
		bus:         bus,
		repo:        repo,
		cfg:         cfg,
		channels:    chs,
		rateWindows: make(map[string]*rateWindow),
		now:         time.Now,
	}
}

// LoadHistory restores persisted alerts. Failures are logged, never fatal:
// the monitor starts with an empty history instead.
func (am *AlertManager) LoadHistory(ctx context.Context) {
	alerts, err := am.repo.LoadAlerts(ctx)
	if err != nil {
		am.logger.Warn("Could not reload alert history", "error", err)
		return
	}

	am.mu.Lock()
	defer am.mu.Unlock()
	if len(alerts) > am.cfg.HistoryLimit {
		alerts = alerts[:am.cfg.HistoryLimit]
	}
	am.history = alerts
	am.metrics.HistorySize.WithLabelValues("alerts").Set(float64(len(am.history)))
}

// Flush persists the current alert history snapshot.
func (am *AlertManager) Flush(ctx context.Context) error {
	am.mu.Lock()
	snapshot := make([]*model.Alert, len(am.history))
	copy(snapshot, am.history)
	am.mu.Unlock()

	return am.repo.SaveAlerts(ctx, snapshot)
}

// Send runs one alert through the pipeline. The order is fixed: globally
// disabled is a no-op, then the rate limiter may drop the alert silently,
// then quiet hours may record it suppressed without dispatching, and only
// then is it delivered to every channel whose severity filter matches.
// Every alert that survives the rate limiter lands in history, suppressed
// or not. Returns true when the alert was recorded.
func (am *AlertManager) Send(ctx context.Context, alert *model.Alert) bool {
	am.mu.Lock()

	if !am.cfg.Enabled {
		am.mu.Unlock()
		return false
	}

	if am.cfg.RateLimit.Enabled && !am.allowLocked(alert.RateLimitKey()) {
		am.mu.Unlock()
		am.metrics.AlertsRateLimited.Inc()
		am.logger.Debug("Alert rate limited", "key", alert.RateLimitKey(), "title", alert.Title)
		return false
	}

	var suppressed bool
	if am.cfg.QuietHours.Enabled {
		if until := quietWindowEnd(am.now(), am.cfg.QuietHours.Windows); until != nil {
			alert.SuppressUntil = until
			suppressed = true
		}
	}

	am.recordLocked(alert)
	dispatchTo := am.dispatchTargetsLocked(alert)
	am.mu.Unlock()

	if suppressed {
		am.metrics.AlertsSuppressed.Inc()
		am.logger.Info("Alert suppressed by quiet hours",
			"alert_id", alert.ID, "suppress_until", alert.SuppressUntil)
		am.bus.Publish(events.New(events.AlertSuppressed, alert.Source, map[string]interface{}{
			"alertId":  alert.ID,
			"severity": string(alert.Severity),
		}))
		return true
	}

	am.dispatch(ctx, alert, dispatchTo)
	am.bus.Publish(events.New(events.AlertTriggered, alert.Source, map[string]interface{}{
		"alertId":  alert.ID,
		"severity": string(alert.Severity),
		"category": string(alert.Category),
		"title":    alert.Title,
	}))
	return true
}

// allowLocked consumes one slot in the alert's rate window. Windows reset
// lazily when the first alert after expiry arrives.
func (am *AlertManager) allowLocked(key string) bool {
	now := am.now()
	w, ok := am.rateWindows[key]
	if !ok || now.Sub(w.start) >= am.cfg.RateLimit.Window {
		am.rateWindows[key] = &rateWindow{start: now, count: 1}
		return true
	}
	if w.count >= am.cfg.RateLimit.MaxAlerts {
		w.count++
		return false
	}
	w.count++
	return true
}

// recordLocked unshifts the alert into the capped newest-first history.
func (am *AlertManager) recordLocked(alert *model.Alert) {
	am.history = append([]*model.Alert{alert}, am.history...)
	if len(am.history) > am.cfg.HistoryLimit {
		am.history = am.history[:am.cfg.HistoryLimit]
	}
	am.generated++
	am.metrics.HistorySize.WithLabelValues("alerts").Set(float64(len(am.history)))
}

// dispatchTargetsLocked snapshots the channels matching the alert severity.
func (am *AlertManager) dispatchTargetsLocked(alert *model.Alert) []channels.Channel {
	out := make([]channels.Channel, 0, len(am.channels))
	for _, ch := range am.channels {
		if ch.Accepts(alert.Severity) {
			out = append(out, ch)
		}
	}
	return out
}

// dispatch delivers to each channel, isolating failures per channel.
func (am *AlertManager) dispatch(ctx context.Context, alert *model.Alert, targets []channels.Channel) {
	for _, ch := range targets {
		if err := ch.Send(ctx, alert); err != nil {
			am.logger.Error("Alert channel delivery failed",
				"channel", ch.Name(), "alert_id", alert.ID, "error", err)
			continue
		}
		am.metrics.AlertsDispatched.WithLabelValues(ch.Name(), string(alert.Severity)).Inc()
	}
}

// Resolve marks the alert resolved. Unknown ids and already-resolved
// alerts return false without side effects.
func (am *AlertManager) Resolve(id string) bool {
	am.mu.Lock()
	var target *model.Alert
	for _, a := range am.history {
		if a.ID == id {
			target = a
			break
		}
	}
	resolved := target != nil && target.Resolve()
	am.mu.Unlock()

	if !resolved {
		return false
	}
	am.bus.Publish(events.New(events.AlertResolved, target.Source, map[string]interface{}{
		"alertId": id,
	}))
	return true
}

// EscalateSweep promotes unresolved error and critical alerts older than
// the escalation delay. Each alert escalates at most once: it is marked,
// re-dispatched to the escalation channels and announced on the bus.
func (am *AlertManager) EscalateSweep(ctx context.Context) int {
	am.mu.Lock()
	if !am.cfg.Escalation.Enabled {
		am.mu.Unlock()
		return 0
	}

	now := am.now()
	escalationChannels := am.escalationChannelsLocked()

	var due []*model.Alert
	for _, a := range am.history {
		if a.Resolved || a.Escalated || a.Suppressed(now) {
			continue
		}
		if a.Severity != model.SeverityError && a.Severity != model.SeverityCritical {
			continue
		}
		if now.Sub(a.Timestamp) < am.cfg.Escalation.After {
			continue
		}
		if a.MarkEscalated() {
			due = append(due, a)
		}
	}
	am.mu.Unlock()

	for _, a := range due {
		am.metrics.AlertsEscalated.Inc()
		am.logger.Warn("Alert escalated", "alert_id", a.ID, "severity", a.Severity, "age", now.Sub(a.Timestamp))
		for _, ch := range escalationChannels {
			if err := ch.Send(ctx, a); err != nil {
				am.logger.Error("Escalation delivery failed", "channel", ch.Name(), "alert_id", a.ID, "error", err)
			}
		}
		am.bus.Publish(events.New(events.AlertEscalated, a.Source, map[string]interface{}{
			"alertId":  a.ID,
			"severity": string(a.Severity),
		}))
	}
	return len(due)
}

// escalationChannelsLocked resolves the configured escalation channel
// names; with none configured every channel participates.
func (am *AlertManager) escalationChannelsLocked() []channels.Channel {
	if len(am.cfg.Escalation.Channels) == 0 {
		out := make([]channels.Channel, len(am.channels))
		copy(out, am.channels)
		return out
	}
	names := make(map[string]bool, len(am.cfg.Escalation.Channels))
	for _, n := range am.cfg.Escalation.Channels {
		names[n] = true
	}
	var out []channels.Channel
	for _, ch := range am.channels {
		if names[ch.Name()] {
			out = append(out, ch)
		}
	}
	return out
}

// History returns up to limit alerts, newest first, as a copy.
func (am *AlertManager) History(limit int) []*model.Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	if limit <= 0 || limit > len(am.history) {
		limit = len(am.history)
	}
	out := make([]*model.Alert, limit)
	copy(out, am.history[:limit])
	return out
}

// ActiveCount reports unresolved alerts currently in history.
func (am *AlertManager) ActiveCount() int {
	am.mu.Lock()
	defer am.mu.Unlock()

	n := 0
	for _, a := range am.history {
		if !a.Resolved {
			n++
		}
	}
	return n
}

// Generated reports the total alerts recorded since start.
func (am *AlertManager) Generated() int {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.generated
}

// UpdateConfig swaps the alerting policy at runtime. Channels are fixed at
// construction; only limits, quiet hours and escalation change here.
func (am *AlertManager) UpdateConfig(cfg config.AlertingConfig) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.cfg = cfg
}

// TestAlerts raises one synthetic alert per severity through the full
// pipeline so operators can verify channel wiring end to end.
func (am *AlertManager) TestAlerts(ctx context.Context) []string {
	severities := []model.Severity{
		model.SeverityInfo,
		model.SeverityWarning,
		model.SeverityError,
		model.SeverityCritical,
	}

	ids := make([]string, 0, len(severities))
	for _, s := range severities {
		alert := model.NewAlert(
			s,
			model.CategoryTest,
			fmt.Sprintf("Test alert (%s)", s),
			"Synthetic alert raised by the test-alerts operation",
			"alert-manager",
		)
		if am.Send(ctx, alert) {
			ids = append(ids, alert.ID)
		}
	}
	return ids
}

// quietWindowEnd returns the end of the quiet window containing now, or
// nil when now is outside every window. Overnight windows (start later
// than end) wrap past midnight. With overlapping windows the nearest end
// wins.
func quietWindowEnd(now time.Time, windows []config.QuietWindow) *time.Time {
	var best *time.Time
	for _, w := range windows {
		end, ok := windowEnd(now, w)
		if !ok {
			continue
		}
		if best == nil || end.Before(*best) {
			best = &end
		}
	}
	return best
}

// windowEnd reports whether now is inside the window and, if so, the
// window's end as an absolute timestamp.
func windowEnd(now time.Time, w config.QuietWindow) (time.Time, bool) {
	startMin, err := parseClock(w.Start)
	if err != nil {
		return time.Time{}, false
	}
	endMin, err := parseClock(w.End)
	if err != nil {
		return time.Time{}, false
	}

	nowMin := now.Hour()*60 + now.Minute()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if startMin <= endMin {
		// Same-day window.
		if nowMin < startMin || nowMin >= endMin {
			return time.Time{}, false
		}
		return midnight.Add(time.Duration(endMin) * time.Minute), true
	}

	// Overnight window: covers [start, midnight) and [midnight, end).
	switch {
	case nowMin >= startMin:
		return midnight.AddDate(0, 0, 1).Add(time.Duration(endMin) * time.Minute), true
	case nowMin < endMin:
		return midnight.Add(time.Duration(endMin) * time.Minute), true
	default:
		return time.Time{}, false
	}
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(v string) (int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock value %q is not HH:MM", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clock value %q has invalid hour", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q has invalid minute", v)
	}
	return h*60 + m, nil
}
