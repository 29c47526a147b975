package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/income-clarity/healthwatch/internal/alerting/adapters/channels"
	"github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	filerepo "github.com/income-clarity/healthwatch/internal/monitoring/adapters/repository/file"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
	"github.com/income-clarity/healthwatch/internal/platform/metrics"
	"github.com/income-clarity/healthwatch/internal/shared/events"
)

// stubChannel records deliveries and can be told to fail.
type stubChannel struct {
	name string
	fail bool

	mu   sync.Mutex
	sent []*model.Alert
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Accepts(severity model.Severity) bool { return true }

func (c *stubChannel) Send(ctx context.Context, alert *model.Alert) error {
	if c.fail {
		return errors.New("delivery failed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, alert)
	return nil
}

func (c *stubChannel) delivered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func testAlertingConfig() config.AlertingConfig {
	return config.AlertingConfig{
		Enabled:      true,
		HistoryLimit: 500,
		RateLimit:    config.RateLimitConfig{Enabled: true, Window: 5 * time.Minute, MaxAlerts: 5},
	}
}

func newTestManager(t *testing.T, cfg config.AlertingConfig, chs ...channels.Channel) *AlertManager {
	t.Helper()
	repo, err := filerepo.NewHistoryRepository(t.TempDir())
	require.NoError(t, err)
	return NewAlertManager(cfg, chs, repo, events.NewBus(8), logger.NewNop(), metrics.New("test"))
}

func newAlert(severity model.Severity) *model.Alert {
	return model.NewAlert(severity, model.CategoryThreshold, "test alert", "message", "test")
}

func TestSendDispatchesToMatchingChannels(t *testing.T) {
	ch := &stubChannel{name: "main"}
	am := newTestManager(t, testAlertingConfig(), ch)

	assert.True(t, am.Send(context.Background(), newAlert(model.SeverityWarning)))
	assert.Equal(t, 1, ch.delivered())
	assert.Len(t, am.History(0), 1)
	assert.Equal(t, 1, am.Generated())
}

func TestSendIsNoOpWhenAlertingDisabled(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.Enabled = false
	ch := &stubChannel{name: "main"}
	am := newTestManager(t, cfg, ch)

	assert.False(t, am.Send(context.Background(), newAlert(model.SeverityCritical)))
	assert.Equal(t, 0, ch.delivered())
	assert.Empty(t, am.History(0))
}

func TestRateLimitAllowsExactlyMaxPerWindow(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.RateLimit.MaxAlerts = 3
	ch := &stubChannel{name: "main"}
	am := newTestManager(t, cfg, ch)

	for i := 0; i < 10; i++ {
		am.Send(context.Background(), newAlert(model.SeverityError))
	}

	assert.Equal(t, 3, ch.delivered())
	assert.Len(t, am.History(0), 3)
}

func TestRateLimitKeysByCategoryAndSeverity(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.RateLimit.MaxAlerts = 1
	ch := &stubChannel{name: "main"}
	am := newTestManager(t, cfg, ch)

	am.Send(context.Background(), newAlert(model.SeverityError))
	am.Send(context.Background(), newAlert(model.SeverityError))
	am.Send(context.Background(), newAlert(model.SeverityWarning))

	assert.Equal(t, 2, ch.delivered())
}

func TestRateLimitWindowResets(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.RateLimit.MaxAlerts = 1
	ch := &stubChannel{name: "main"}
	am := newTestManager(t, cfg, ch)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	am.now = func() time.Time { return now }

	am.Send(context.Background(), newAlert(model.SeverityError))
	am.Send(context.Background(), newAlert(model.SeverityError))
	assert.Equal(t, 1, ch.delivered())

	now = now.Add(6 * time.Minute)
	am.Send(context.Background(), newAlert(model.SeverityError))
	assert.Equal(t, 2, ch.delivered())
}

func TestQuietHoursSuppressWithoutDispatch(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.QuietHours = config.QuietHoursConfig{
		Enabled: true,
		Windows: []config.QuietWindow{{Start: "09:00", End: "17:00"}},
	}
	ch := &stubChannel{name: "main"}
	am := newTestManager(t, cfg, ch)

	now := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	am.now = func() time.Time { return now }

	assert.True(t, am.Send(context.Background(), newAlert(model.SeverityCritical)))
	assert.Equal(t, 0, ch.delivered())

	history := am.History(0)
	require.Len(t, history, 1)
	assert.False(t, history[0].Resolved)
	require.NotNil(t, history[0].SuppressUntil)
	assert.Equal(t, time.Date(2025, 6, 1, 17, 0, 0, 0, time.UTC), *history[0].SuppressUntil)
}

func TestQuietHoursOvernightWindowWrapsMidnight(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.QuietHours = config.QuietHoursConfig{
		Enabled: true,
		Windows: []config.QuietWindow{{Start: "22:00", End: "07:00"}},
	}
	ch := &stubChannel{name: "main"}
	am := newTestManager(t, cfg, ch)

	// Before midnight: suppressUntil lands on the next day.
	now := time.Date(2025, 6, 1, 23, 15, 0, 0, time.UTC)
	am.now = func() time.Time { return now }
	am.Send(context.Background(), newAlert(model.SeverityError))

	history := am.History(1)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].SuppressUntil)
	assert.Equal(t, time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC), *history[0].SuppressUntil)

	// After midnight: suppressUntil is the same day's window end.
	now = time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	am.Send(context.Background(), newAlert(model.SeverityWarning))

	history = am.History(1)
	require.NotNil(t, history[0].SuppressUntil)
	assert.Equal(t, time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC), *history[0].SuppressUntil)

	// Daytime: outside the window, dispatch goes through.
	now = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	am.Send(context.Background(), newAlert(model.SeverityInfo))
	assert.Equal(t, 1, ch.delivered())
}

func TestChannelFailuresAreIsolated(t *testing.T) {
	bad := &stubChannel{name: "bad", fail: true}
	good := &stubChannel{name: "good"}
	am := newTestManager(t, testAlertingConfig(), bad, good)

	assert.True(t, am.Send(context.Background(), newAlert(model.SeverityError)))
	assert.Equal(t, 1, good.delivered())
}

func TestResolveIsIdempotent(t *testing.T) {
	am := newTestManager(t, testAlertingConfig(), &stubChannel{name: "main"})

	alert := newAlert(model.SeverityError)
	am.Send(context.Background(), alert)

	assert.False(t, am.Resolve("no-such-id"))
	assert.True(t, am.Resolve(alert.ID))
	assert.False(t, am.Resolve(alert.ID))

	history := am.History(0)
	require.Len(t, history, 1)
	assert.True(t, history[0].Resolved)
	assert.NotNil(t, history[0].ResolvedAt)
}

func TestHistoryIsCappedNewestFirst(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.HistoryLimit = 3
	cfg.RateLimit.Enabled = false
	am := newTestManager(t, cfg, &stubChannel{name: "main"})

	var last *model.Alert
	for i := 0; i < 5; i++ {
		last = newAlert(model.SeverityInfo)
		am.Send(context.Background(), last)
	}

	history := am.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, last.ID, history[0].ID)
}

func TestEscalateSweepPromotesOnce(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.Escalation = config.EscalationConfig{
		Enabled:  true,
		After:    15 * time.Minute,
		Channels: []string{"esc"},
	}
	main := &stubChannel{name: "main"}
	esc := &stubChannel{name: "esc"}
	am := newTestManager(t, cfg, main, esc)

	old := newAlert(model.SeverityCritical)
	old.Timestamp = time.Now().Add(-20 * time.Minute)
	am.Send(context.Background(), old)

	fresh := newAlert(model.SeverityCritical)
	am.Send(context.Background(), fresh)

	info := newAlert(model.SeverityInfo)
	info.Timestamp = time.Now().Add(-20 * time.Minute)
	am.Send(context.Background(), info)

	assert.Equal(t, 1, am.EscalateSweep(context.Background()))
	assert.Equal(t, 0, am.EscalateSweep(context.Background()))

	// Initial dispatch for three alerts plus one escalation re-dispatch.
	assert.Equal(t, 4, esc.delivered())
	assert.Equal(t, 3, main.delivered())

	history := am.History(0)
	escalated := 0
	for _, a := range history {
		if a.Escalated {
			escalated++
		}
	}
	assert.Equal(t, 1, escalated)
}

func TestEscalateSweepSkipsResolvedAlerts(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.Escalation = config.EscalationConfig{Enabled: true, After: 15 * time.Minute}
	am := newTestManager(t, cfg, &stubChannel{name: "main"})

	alert := newAlert(model.SeverityCritical)
	alert.Timestamp = time.Now().Add(-20 * time.Minute)
	am.Send(context.Background(), alert)
	am.Resolve(alert.ID)

	assert.Equal(t, 0, am.EscalateSweep(context.Background()))
}

func TestTestAlertsRaisesOnePerSeverity(t *testing.T) {
	ch := &stubChannel{name: "main"}
	am := newTestManager(t, testAlertingConfig(), ch)

	ids := am.TestAlerts(context.Background())
	assert.Len(t, ids, 4)
	assert.Equal(t, 4, ch.delivered())
}

func TestFlushAndLoadHistoryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	repo, err := filerepo.NewHistoryRepository(dir)
	require.NoError(t, err)

	cfg := testAlertingConfig()
	am := NewAlertManager(cfg, []channels.Channel{&stubChannel{name: "main"}}, repo, events.NewBus(8), logger.NewNop(), metrics.New("test"))

	alert := newAlert(model.SeverityError)
	am.Send(context.Background(), alert)
	require.NoError(t, am.Flush(context.Background()))

	reloaded := NewAlertManager(cfg, nil, repo, events.NewBus(8), logger.NewNop(), metrics.New("test"))
	reloaded.LoadHistory(context.Background())

	history := reloaded.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, alert.ID, history[0].ID)
	assert.Equal(t, alert.Severity, history[0].Severity)
}
