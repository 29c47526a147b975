package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	envservice "github.com/income-clarity/healthwatch/internal/environment/app/service"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
	"github.com/income-clarity/healthwatch/internal/platform/metrics"
	"github.com/income-clarity/healthwatch/internal/platform/resilience"
)

// newProbeTarget serves every endpoint the collector probes, with an
// optional failing database health endpoint.
func newProbeTarget(t *testing.T, dbHealthy bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>dashboard</body></html>"))
	})
	mux.HandleFunc("/api/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/health/db", func(w http.ResponseWriter, r *http.Request) {
		if !dbHealthy {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"poolOccupancy": 0.4, "transactions": {"ok": 95, "failed": 5}}`))
	})
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"active": 12, "invalid": 1, "authFailures": 0}`))
	})
	mux.HandleFunc("/api/rollout", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"levels": [{"level": "beta", "successes": 9, "failures": 1}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestCollector(t *testing.T, srv *httptest.Server) *Collector {
	t.Helper()
	timeout := 5 * time.Second
	breakers := resilience.NewRegistry(resilience.DefaultConfig())

	fingerprint := envservice.NewFingerprintService(
		config.EnvironmentConfig{LocalTTL: time.Minute, RemoteTTL: time.Minute},
		envservice.BuildInfo{Version: "test"},
		nil,
		logger.NewNop(),
	)

	return NewCollector(CollectorDeps{
		System: NewSystemProbe(),
		API: NewAPIProbe(srv.URL, []config.EndpointConfig{
			{Method: http.MethodGet, Path: "/api/ok"},
			{Method: http.MethodGet, Path: "/api/broken"},
		}, timeout),
		Database: NewDatabaseProbe(srv.URL+"/api/health/db", 1000, 5000, timeout, breakers.Get("database")),
		Integration: NewIntegrationProbe([]config.IntegrationTarget{
			{Name: "polygon", URL: srv.URL + "/api/ok"},
			{Name: "email", URL: srv.URL + "/api/broken"},
		}, timeout, breakers),
		UI:           NewHTTPUIProbe(srv.URL+"/", timeout),
		Session:      NewHTTPSessionProvider(srv.URL+"/api/sessions", timeout),
		Progressive:  NewHTTPProgressiveProvider(srv.URL+"/api/rollout", timeout),
		Fingerprint:  fingerprint,
		ProbeTimeout: timeout,
		UITimeout:    timeout,
		Logger:       logger.NewNop(),
		Metrics:      metrics.New("test"),
		Tracer:       noop.NewTracerProvider().Tracer("test"),
	})
}

func TestCollectAssemblesFullSnapshot(t *testing.T) {
	srv := newProbeTarget(t, true)
	collector := newTestCollector(t, srv)

	snapshot := collector.Collect(context.Background())

	assert.False(t, snapshot.Timestamp.IsZero())
	assert.NotEmpty(t, snapshot.Environment)
	assert.Greater(t, snapshot.System.MemoryTotalMB, 0.0)

	require.Len(t, snapshot.API.Endpoints, 2)
	assert.Equal(t, 1, snapshot.API.ErrorCount)
	assert.Equal(t, 0.5, snapshot.API.ErrorRate)

	assert.Equal(t, model.DatabaseHealthy, snapshot.Database.Health)
	assert.InDelta(t, 0.05, snapshot.Database.FailureRate, 1e-9)

	require.Len(t, snapshot.Integration.Services, 2)
	byName := map[string]model.IntegrationStatus{}
	for _, svc := range snapshot.Integration.Services {
		byName[svc.Name] = svc
	}
	assert.Equal(t, model.IntegrationHealthy, byName["polygon"].Status)
	assert.Equal(t, model.IntegrationUnhealthy, byName["email"].Status)

	assert.Greater(t, snapshot.UI.PerformanceScore, 0.0)
	assert.Equal(t, 12, snapshot.Session.ActiveSessions)
	assert.InDelta(t, 0.9, snapshot.Progressive.SuccessRate, 1e-9)
}

func TestCollectIsolatesFailedProbes(t *testing.T) {
	srv := newProbeTarget(t, false)
	collector := newTestCollector(t, srv)

	snapshot := collector.Collect(context.Background())

	// The database probe failed, so its reading degrades to unhealthy while
	// every other subsystem is still populated.
	assert.Equal(t, model.DatabaseUnhealthy, snapshot.Database.Health)
	assert.Greater(t, snapshot.System.MemoryTotalMB, 0.0)
	assert.Len(t, snapshot.API.Endpoints, 2)
	assert.Equal(t, 12, snapshot.Session.ActiveSessions)
}

func TestCollectPerformanceReturnsAPIAndUI(t *testing.T) {
	srv := newProbeTarget(t, true)
	collector := newTestCollector(t, srv)

	api, ui, err := collector.CollectPerformance(context.Background())
	require.NoError(t, err)
	assert.Len(t, api.Endpoints, 2)
	assert.Greater(t, ui.LoadTimeMs, 0.0)
}

func TestIntegrationErrorRateUsesSlidingWindow(t *testing.T) {
	srv := newProbeTarget(t, true)
	breakers := resilience.NewRegistry(resilience.Config{MaxFailures: 100})
	probe := NewIntegrationProbe([]config.IntegrationTarget{
		{Name: "email", URL: srv.URL + "/api/broken"},
	}, 5*time.Second, breakers)

	var last model.IntegrationMetrics
	for i := 0; i < 3; i++ {
		out, err := probe.Collect(context.Background())
		require.NoError(t, err)
		last = out
	}

	require.Len(t, last.Services, 1)
	assert.Equal(t, model.IntegrationUnhealthy, last.Services[0].Status)
	assert.Equal(t, 1.0, last.Services[0].ErrorRate)
}
