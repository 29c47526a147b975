package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertservice "github.com/income-clarity/healthwatch/internal/alerting/app/service"
	alertmodel "github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	deployservice "github.com/income-clarity/healthwatch/internal/deployment/app/service"
	deploymodel "github.com/income-clarity/healthwatch/internal/deployment/domain/model"
	envservice "github.com/income-clarity/healthwatch/internal/environment/app/service"
	filerepo "github.com/income-clarity/healthwatch/internal/monitoring/adapters/repository/file"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
	"github.com/income-clarity/healthwatch/internal/platform/metrics"
	"github.com/income-clarity/healthwatch/internal/platform/resilience"
	"github.com/income-clarity/healthwatch/internal/shared/events"
)

func newTestMonitor(t *testing.T, srv *httptest.Server, targets []config.TargetConfig) *Monitor {
	t.Helper()

	repo, err := filerepo.NewHistoryRepository(t.TempDir())
	require.NoError(t, err)

	log := logger.NewNop()
	m := metrics.New("test")
	bus := events.NewBus(16)

	alertCfg := config.AlertingConfig{Enabled: true, HistoryLimit: 500}
	alerts := alertservice.NewAlertManager(alertCfg, nil, repo, bus, log, m)

	fingerprint := envservice.NewFingerprintService(
		config.EnvironmentConfig{LocalTTL: time.Minute, RemoteTTL: time.Minute, Targets: targets},
		envservice.BuildInfo{Version: "test"},
		nil,
		log,
	)
	verifier := deployservice.NewVerifier(targets, fingerprint, 5*time.Second, log)

	hour := time.Hour
	cfg := config.MonitoringConfig{
		Intervals: config.IntervalsConfig{
			Health:      hour,
			Performance: hour,
			Drift:       hour,
			Session:     hour,
			Database:    hour,
			Integration: hour,
		},
		Thresholds:   testThresholds(),
		HistoryLimit: 100,
	}

	return NewMonitor(MonitorDeps{
		Config:      cfg,
		Collector:   newTestCollector(t, srv),
		Alerts:      alerts,
		Fingerprint: fingerprint,
		Verifier:    verifier,
		History:     NewHistoryStore(cfg.HistoryLimit),
		Repo:        repo,
		Breakers:    resilience.NewRegistry(resilience.DefaultConfig()),
		Bus:         bus,
		Logger:      log,
		Metrics:     m,
		Targets:     targets,
		FlushEvery:  time.Hour,
	})
}

func TestMonitorStopWhenNotStartedIsNoOp(t *testing.T) {
	srv := newProbeTarget(t, true)
	m := newTestMonitor(t, srv, nil)

	assert.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.IsMonitoring())
}

func TestMonitorStartStopRoundTrip(t *testing.T) {
	srv := newProbeTarget(t, true)
	m := newTestMonitor(t, srv, nil)

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.IsMonitoring())

	// Second start is a logged no-op, not an error.
	require.NoError(t, m.Start(context.Background()))

	status := m.Status()
	assert.True(t, status.Monitoring)
	require.NotNil(t, status.Session)
	assert.Equal(t, model.SessionActive, status.Session.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	assert.False(t, m.IsMonitoring())

	// Second stop is a logged no-op as well.
	assert.NoError(t, m.Stop(ctx))
}

func TestTriggerHealthCheckProducesSnapshotAndScore(t *testing.T) {
	srv := newProbeTarget(t, true)
	m := newTestMonitor(t, srv, nil)

	snapshot, score, err := m.TriggerHealthCheck(context.Background())
	require.NoError(t, err)

	assert.False(t, snapshot.Timestamp.IsZero())
	assert.GreaterOrEqual(t, score.Overall, 0)
	assert.LessOrEqual(t, score.Overall, 100)

	status := m.Status()
	assert.Equal(t, 1, status.MetricsHistory)
	require.NotNil(t, status.LastHealthScore)
	assert.Equal(t, score.Overall, status.LastHealthScore.Overall)
}

func TestUpdateConfigAppliesThresholdsImmediately(t *testing.T) {
	srv := newProbeTarget(t, true)
	m := newTestMonitor(t, srv, nil)

	responseTimeAlerts := func() int {
		count := 0
		for _, a := range m.AlertHistory(0) {
			if a.Context.Threshold != nil && a.Context.Threshold.Metric == "api.averageResponseTime" {
				count++
			}
		}
		return count
	}

	_, _, err := m.TriggerHealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, responseTimeAlerts())

	tight := testThresholds()
	tight.APIResponseTimeMs = 0.0001
	m.UpdateConfig(&tight, nil)

	_, _, err = m.TriggerHealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, responseTimeAlerts())
}

func TestVerifyDeploymentRaisesAlertOnFailure(t *testing.T) {
	srv := newProbeTarget(t, true)

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	targets := []config.TargetConfig{{Name: "production", BaseURL: url, HealthURL: url + "/health"}}
	m := newTestMonitor(t, srv, targets)

	result, err := m.VerifyDeployment(context.Background(), "production")
	require.NoError(t, err)
	assert.Equal(t, deploymodel.VerificationFailed, result.OverallStatus)

	history := m.AlertHistory(0)
	require.NotEmpty(t, history)
	assert.Equal(t, alertmodel.CategoryDeployment, history[0].Category)
	assert.Equal(t, alertmodel.SeverityCritical, history[0].Severity)
	assert.Equal(t, "production", history[0].Target)
}

func TestDatabaseCycleTreatsProbeFailureAsUnhealthy(t *testing.T) {
	srv := newProbeTarget(t, false)
	m := newTestMonitor(t, srv, nil)

	// A failing probe downgrades the database reading instead of
	// surfacing as a task failure.
	require.NoError(t, m.databaseCycle(context.Background()))

	var dbAlerts, taskAlerts int
	for _, a := range m.AlertHistory(0) {
		switch a.Category {
		case alertmodel.CategorySystem:
			if a.Title == "Database unhealthy" {
				dbAlerts++
				assert.Equal(t, alertmodel.SeverityError, a.Severity)
			}
		case alertmodel.CategoryTask:
			taskAlerts++
		}
	}
	assert.Equal(t, 1, dbAlerts)
	assert.Zero(t, taskAlerts)
}

func TestRepeatedTaskFailuresDegradeSession(t *testing.T) {
	srv := newProbeTarget(t, true)
	m := newTestMonitor(t, srv, nil)
	require.NoError(t, m.Start(context.Background()))

	boom := func(context.Context) error { return errors.New("boom") }
	for i := 0; i < taskFailureLimit-1; i++ {
		m.runTask("flaky", boom)
	}
	require.NotNil(t, m.Status().Session)
	assert.Equal(t, model.SessionActive, m.Status().Session.Status)

	m.runTask("flaky", boom)
	assert.Equal(t, model.SessionError, m.Status().Session.Status)

	// The schedule keeps running in the degraded state and a stop still
	// closes the session cleanly.
	assert.True(t, m.IsMonitoring())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, model.SessionStopped, m.Status().Session.Status)
}

func TestVerifyDeploymentUnknownTarget(t *testing.T) {
	srv := newProbeTarget(t, true)
	m := newTestMonitor(t, srv, nil)

	_, err := m.VerifyDeployment(context.Background(), "nowhere")
	assert.ErrorIs(t, err, envservice.ErrUnknownTarget)
}
