package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	envservice "github.com/income-clarity/healthwatch/internal/environment/app/service"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
	"github.com/income-clarity/healthwatch/internal/platform/metrics"
)

// Collector fans out all subsystem probes and assembles one snapshot per
// cycle. A failed probe degrades its own subsystem reading and the rest of
// the snapshot is still produced.
type Collector struct {
	system      *SystemProbe
	api         *APIProbe
	database    *DatabaseProbe
	integration *IntegrationProbe
	ui          UIProbe
	session     SessionProvider
	progressive ProgressiveProvider
	fingerprint *envservice.FingerprintService

	probeTimeout time.Duration
	uiTimeout    time.Duration

	logger  logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// CollectorDeps wires the collector's probes and instrumentation.
type CollectorDeps struct {
	System       *SystemProbe
	API          *APIProbe
	Database     *DatabaseProbe
	Integration  *IntegrationProbe
	UI           UIProbe
	Session      SessionProvider
	Progressive  ProgressiveProvider
	Fingerprint  *envservice.FingerprintService
	ProbeTimeout time.Duration
	UITimeout    time.Duration
	Logger       logger.Logger
	Metrics      *metrics.Metrics
	Tracer       trace.Tracer
}

// NewCollector assembles the snapshot collector.
func NewCollector(deps CollectorDeps) *Collector {
	return &Collector{
		system:       deps.System,
		api:          deps.API,
		database:     deps.Database,
		integration:  deps.Integration,
		ui:           deps.UI,
		session:      deps.Session,
		progressive:  deps.Progressive,
		fingerprint:  deps.Fingerprint,
		probeTimeout: deps.ProbeTimeout,
		uiTimeout:    deps.UITimeout,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		tracer:       deps.Tracer,
	}
}

// Collect runs every probe concurrently under its own timeout and returns
// the assembled snapshot. It never returns an error: probe failures are
// logged, counted and reflected as degraded subsystem readings.
func (c *Collector) Collect(ctx context.Context) model.MonitoringMetrics {
	ctx, span := c.tracer.Start(ctx, "collect")
	defer span.End()

	snapshot := model.MonitoringMetrics{Timestamp: time.Now().UTC()}

	if fp, err := c.fingerprint.Current(ctx); err == nil {
		snapshot.Environment = fp.Name
	}

	var wg sync.WaitGroup
	run := func(name string, timeout time.Duration, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			probeCtx, probeSpan := c.tracer.Start(probeCtx, "probe."+name)
			defer probeSpan.End()

			start := time.Now()
			err := fn(probeCtx)
			c.metrics.ProbeDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			if err != nil {
				c.metrics.ProbeFailures.WithLabelValues(name).Inc()
				c.logger.Warn("Probe failed", "probe", name, "error", err)
			}
		}()
	}

	run("system", c.probeTimeout, func(ctx context.Context) error {
		m, err := c.system.Collect(ctx)
		snapshot.System = m
		return err
	})
	run("api", c.probeTimeout, func(ctx context.Context) error {
		m, err := c.api.Collect(ctx)
		snapshot.API = m
		return err
	})
	run("database", c.probeTimeout, func(ctx context.Context) error {
		m, err := c.database.Collect(ctx)
		snapshot.Database = m
		return err
	})
	run("integration", c.probeTimeout, func(ctx context.Context) error {
		m, err := c.integration.Collect(ctx)
		snapshot.Integration = m
		return err
	})
	run("ui", c.uiTimeout, func(ctx context.Context) error {
		m, err := c.ui.Collect(ctx)
		snapshot.UI = m
		return err
	})
	run("session", c.probeTimeout, func(ctx context.Context) error {
		m, err := c.session.Check(ctx)
		snapshot.Session = m
		return err
	})
	run("progressive", c.probeTimeout, func(ctx context.Context) error {
		m, err := c.progressive.Check(ctx)
		snapshot.Progressive = m
		return err
	})

	wg.Wait()
	return snapshot
}

// CollectPerformance runs only the probes the performance task needs.
func (c *Collector) CollectPerformance(ctx context.Context) (model.APIMetrics, model.UIMetrics, error) {
	ctx, span := c.tracer.Start(ctx, "collect.performance")
	defer span.End()

	apiCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	api, apiErr := c.api.Collect(apiCtx)

	uiCtx, cancelUI := context.WithTimeout(ctx, c.uiTimeout)
	defer cancelUI()
	ui, uiErr := c.ui.Collect(uiCtx)

	if apiErr != nil {
		return api, ui, apiErr
	}
	return api, ui, uiErr
}

// CollectDatabase runs only the database probe.
func (c *Collector) CollectDatabase(ctx context.Context) (model.DatabaseMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	return c.database.Collect(ctx)
}

// CollectIntegrations runs only the integration probe.
func (c *Collector) CollectIntegrations(ctx context.Context) (model.IntegrationMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	return c.integration.Collect(ctx)
}

// CollectSessions runs only the session provider.
func (c *Collector) CollectSessions(ctx context.Context) (model.SessionMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	return c.session.Check(ctx)
}
