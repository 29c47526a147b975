package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	alertservice "github.com/income-clarity/healthwatch/internal/alerting/app/service"
	alertmodel "github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	deployservice "github.com/income-clarity/healthwatch/internal/deployment/app/service"
	deploymodel "github.com/income-clarity/healthwatch/internal/deployment/domain/model"
	envservice "github.com/income-clarity/healthwatch/internal/environment/app/service"
	envmodel "github.com/income-clarity/healthwatch/internal/environment/domain/model"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/repository"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
	"github.com/income-clarity/healthwatch/internal/platform/metrics"
	"github.com/income-clarity/healthwatch/internal/platform/resilience"
	"github.com/income-clarity/healthwatch/internal/shared/events"
)

// Task names used in logs, metrics and task-failure alerts.
const (
	taskHealth      = "health"
	taskPerformance = "performance"
	taskDrift       = "drift"
	taskSession     = "session"
	taskDatabase    = "database"
	taskIntegration = "integration"
	taskPersist     = "persist"
)

// taskFailureLimit is how many consecutive failures of one task flip the
// session to the error state.
const taskFailureLimit = 3

// Status is the monitor's externally visible state.
type Status struct {
	Monitoring      bool                     `json:"monitoring"`
	Session         *model.MonitoringSession `json:"session,omitempty"`
	Environment     string                   `json:"environment"`
	ActiveAlerts    int                      `json:"activeAlerts"`
	MetricsHistory  int                      `json:"metricsHistory"`
	BreakerStates   map[string]string        `json:"breakerStates,omitempty"`
	LastHealthScore *model.HealthScore       `json:"lastHealthScore,omitempty"`
}

// Dashboard is the aggregate view served to operators: current snapshot,
// score, recent alerts and environment comparisons.
type Dashboard struct {
	Status        Status                    `json:"status"`
	Current       *model.MonitoringMetrics  `json:"current,omitempty"`
	HealthScore   *model.HealthScore        `json:"healthScore,omitempty"`
	RecentAlerts  []*alertmodel.Alert       `json:"recentAlerts"`
	RecentMetrics []model.MonitoringMetrics `json:"recentMetrics"`
	Comparisons   []*envmodel.Comparison    `json:"comparisons,omitempty"`
}

// Monitor is the engine: it owns the monitoring session, the periodic
// tasks, the analysis chain and the alert pipeline. One instance runs at
// most one session at a time.
type Monitor struct {
	cfg         config.MonitoringConfig
	collector   *Collector
	analyzer    *ThresholdAnalyzer
	detector    *ChangeDetector
	health      *HealthCalculator
	alerts      *alertservice.AlertManager
	fingerprint *envservice.FingerprintService
	verifier    *deployservice.Verifier
	history     *HistoryStore
	repo        repository.HistoryRepository
	breakers    *resilience.Registry
	bus         *events.Bus
	logger      logger.Logger
	metrics     *metrics.Metrics
	targets     []config.TargetConfig
	flushEvery  time.Duration

	mu           sync.Mutex
	cron         *cron.Cron
	session      *model.MonitoringSession
	lastScore    *model.HealthScore
	taskFailures map[string]int
}

// MonitorDeps wires the engine.
type MonitorDeps struct {
	Config      config.MonitoringConfig
	Collector   *Collector
	Alerts      *alertservice.AlertManager
	Fingerprint *envservice.FingerprintService
	Verifier    *deployservice.Verifier
	History     *HistoryStore
	Repo        repository.HistoryRepository
	Breakers    *resilience.Registry
	Bus         *events.Bus
	Logger      logger.Logger
	Metrics     *metrics.Metrics
	Targets     []config.TargetConfig
	FlushEvery  time.Duration
}

// NewMonitor assembles the engine. It does not start any task.
func NewMonitor(deps MonitorDeps) *Monitor {
	return &Monitor{
		cfg:          deps.Config,
		collector:    deps.Collector,
		analyzer:     NewThresholdAnalyzer(deps.Config.Thresholds),
		detector:     NewChangeDetector(deps.Config.Thresholds),
		health:       NewHealthCalculator(),
		alerts:       deps.Alerts,
		fingerprint:  deps.Fingerprint,
		verifier:     deps.Verifier,
		history:      deps.History,
		repo:         deps.Repo,
		breakers:     deps.Breakers,
		bus:          deps.Bus,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		targets:      deps.Targets,
		flushEvery:   deps.FlushEvery,
		taskFailures: make(map[string]int),
	}
}

// Start begins a monitoring session and schedules the periodic tasks.
// Calling Start while a session is active logs a warning and is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		m.logger.Warn("Monitoring already started; start ignored")
		return nil
	}

	m.restore(ctx)

	envs := make([]string, 0, len(m.targets)+1)
	if fp, err := m.fingerprint.Current(ctx); err == nil {
		envs = append(envs, fp.Name)
	}
	for _, t := range m.targets {
		envs = append(envs, t.Name)
	}
	m.session = model.NewMonitoringSession(envs)
	m.taskFailures = make(map[string]int)

	c := cron.New()
	schedule := func(name string, interval time.Duration, fn func(context.Context) error) error {
		_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
			m.runTask(name, fn)
		})
		if err != nil {
			return fmt.Errorf("schedule %s task: %w", name, err)
		}
		return nil
	}

	iv := m.cfg.Intervals
	for _, t := range []struct {
		name     string
		interval time.Duration
		fn       func(context.Context) error
	}{
		{taskHealth, iv.Health, m.healthCycle},
		{taskPerformance, iv.Performance, m.performanceCycle},
		{taskDrift, iv.Drift, m.driftCycle},
		{taskSession, iv.Session, m.sessionCycle},
		{taskDatabase, iv.Database, m.databaseCycle},
		{taskIntegration, iv.Integration, m.integrationCycle},
	} {
		if err := schedule(t.name, t.interval, t.fn); err != nil {
			return err
		}
	}

	if err := schedule(taskPersist, m.persistInterval(), m.persist); err != nil {
		return err
	}

	c.Start()
	m.cron = c

	m.logger.Info("Monitoring started",
		"session_id", m.session.ID,
		"environments", envs,
		"health_interval", iv.Health)
	m.bus.Publish(events.New(events.SessionStarted, "monitor", map[string]interface{}{
		"sessionId":    m.session.ID,
		"environments": envs,
	}))

	// Prime the pipeline so dashboards have data before the first tick.
	go m.runTask(taskHealth, m.healthCycle)
	return nil
}

// Stop cancels the schedule, waits for in-flight tasks, flushes history
// and closes the session. Calling Stop while stopped logs a warning and is
// a no-op.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	c := m.cron
	session := m.session
	m.cron = nil
	m.mu.Unlock()

	if c == nil {
		m.logger.Warn("Monitoring not running; stop ignored")
		return nil
	}

	// cron.Stop returns a context that is done once running jobs finish.
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		m.logger.Warn("Stop timed out waiting for in-flight tasks")
	}

	if err := m.persist(ctx); err != nil {
		m.logger.Error("Final history flush failed", "error", err)
	}

	session.Stop()
	m.logger.Info("Monitoring stopped",
		"session_id", session.ID,
		"checks_performed", session.ChecksPerformed,
		"alerts_generated", session.AlertsGenerated)
	m.bus.Publish(events.New(events.SessionStopped, "monitor", map[string]interface{}{
		"sessionId":       session.ID,
		"checksPerformed": session.ChecksPerformed,
		"alertsGenerated": session.AlertsGenerated,
	}))
	return nil
}

// IsMonitoring reports whether a session is active.
func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cron != nil
}

// TriggerHealthCheck runs one full cycle outside the schedule and returns
// the resulting snapshot and score.
func (m *Monitor) TriggerHealthCheck(ctx context.Context) (model.MonitoringMetrics, model.HealthScore, error) {
	snapshot, score := m.cycle(ctx)
	return snapshot, score, nil
}

// Status reports the monitor's current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Monitoring:      m.cron != nil,
		Session:         m.session,
		ActiveAlerts:    m.alerts.ActiveCount(),
		MetricsHistory:  m.history.Len(),
		BreakerStates:   m.breakers.States(),
		LastHealthScore: m.lastScore,
	}
	if latest, ok := m.history.Latest(); ok {
		st.Environment = latest.Environment
	}
	return st
}

// Dashboard assembles the operator view. Comparisons against unreachable
// targets are skipped rather than failing the whole dashboard.
func (m *Monitor) Dashboard(ctx context.Context) Dashboard {
	d := Dashboard{
		Status:        m.Status(),
		RecentAlerts:  m.alerts.History(20),
		RecentMetrics: m.history.Recent(20),
	}
	if latest, ok := m.history.Latest(); ok {
		d.Current = &latest
		score := m.health.Compute(latest, m.history)
		d.HealthScore = &score
	}
	for _, t := range m.targets {
		cmp, err := m.fingerprint.Compare(ctx, t.Name)
		if err != nil {
			m.logger.Debug("Dashboard comparison unavailable", "target", t.Name, "error", err)
			continue
		}
		d.Comparisons = append(d.Comparisons, cmp)
	}
	return d
}

// AlertHistory returns up to limit alerts, newest first.
func (m *Monitor) AlertHistory(limit int) []*alertmodel.Alert {
	return m.alerts.History(limit)
}

// MetricsHistory returns up to limit snapshots, newest last.
func (m *Monitor) MetricsHistory(limit int) []model.MonitoringMetrics {
	return m.history.Recent(limit)
}

// ResolveAlert resolves one alert by id; false for unknown or already
// resolved ids.
func (m *Monitor) ResolveAlert(id string) bool {
	return m.alerts.Resolve(id)
}

// VerifyDeployment runs the verification battery against a named target
// and raises a deployment alert when the run does not succeed.
func (m *Monitor) VerifyDeployment(ctx context.Context, targetName string) (*deploymodel.VerificationResult, error) {
	result, err := m.verifier.Verify(ctx, targetName)
	if err != nil {
		return nil, err
	}

	if result.OverallStatus != deploymodel.VerificationSuccess {
		severity := alertmodel.SeverityWarning
		if result.OverallStatus == deploymodel.VerificationFailed {
			severity = alertmodel.SeverityCritical
		}
		alert := alertmodel.NewAlert(
			severity,
			alertmodel.CategoryDeployment,
			fmt.Sprintf("Deployment verification %s: %s", result.OverallStatus, targetName),
			fmt.Sprintf("%d/%d checks passed (%.0f%%)", len(result.Checks)-len(result.FailedChecks()), len(result.Checks), result.SuccessRate*100),
			"deployment-verifier",
		)
		alert.Target = targetName
		alert.Context = alertmodel.Context{
			Kind: "deployment",
			Deployment: &alertmodel.DeploymentContext{
				Target:        targetName,
				OverallStatus: string(result.OverallStatus),
				SuccessRate:   result.SuccessRate,
				FailedChecks:  result.FailedChecks(),
			},
		}
		m.raise(ctx, alert)
	}
	return result, nil
}

// UpdateConfig applies a partial runtime update: intervals require a
// restart, but thresholds and alerting policy take effect immediately.
func (m *Monitor) UpdateConfig(thresholds *config.ThresholdsConfig, alerting *config.AlertingConfig) {
	if thresholds != nil {
		m.mu.Lock()
		m.cfg.Thresholds = *thresholds
		m.mu.Unlock()
		m.analyzer.UpdateThresholds(*thresholds)
		m.detector.UpdateThresholds(*thresholds)
	}
	if alerting != nil {
		m.alerts.UpdateConfig(*alerting)
	}
	m.logger.Info("Monitoring configuration updated",
		"thresholds_changed", thresholds != nil,
		"alerting_changed", alerting != nil)
	m.bus.Publish(events.New(events.ConfigUpdated, "monitor", nil))
}

// TestAlerts pushes one synthetic alert per severity through the pipeline.
func (m *Monitor) TestAlerts(ctx context.Context) []string {
	return m.alerts.TestAlerts(ctx)
}

// runTask wraps one scheduled task run with panic recovery, timing and a
// diagnostic alert on failure. A failing task never takes down the
// scheduler or its sibling tasks.
func (m *Monitor) runTask(name string, fn func(context.Context) error) {
	ctx := context.Background()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			m.metrics.CyclesTotal.WithLabelValues(name, "panic").Inc()
			m.taskFailed(ctx, name, fmt.Sprintf("panic: %v", r))
		}
	}()

	err := fn(ctx)
	m.metrics.CycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		m.metrics.CyclesTotal.WithLabelValues(name, "error").Inc()
		m.taskFailed(ctx, name, err.Error())
		return
	}
	m.metrics.CyclesTotal.WithLabelValues(name, "ok").Inc()

	m.mu.Lock()
	delete(m.taskFailures, name)
	m.mu.Unlock()
}

// taskFailed logs a task failure and raises the diagnostic alert. A task
// failing taskFailureLimit times in a row flips the session to the error
// state; the schedule keeps running so the task can recover.
func (m *Monitor) taskFailed(ctx context.Context, name, reason string) {
	m.mu.Lock()
	m.taskFailures[name]++
	failures := m.taskFailures[name]
	if failures >= taskFailureLimit && m.session != nil {
		m.session.Fail()
	}
	m.mu.Unlock()

	if failures >= taskFailureLimit {
		m.logger.Error("Monitoring session degraded", "task", name, "consecutive_failures", failures)
	}
	m.logger.Error("Monitoring task failed", "task", name, "reason", reason)
	m.bus.Publish(events.New(events.TaskFailed, "monitor", map[string]interface{}{
		"task":   name,
		"reason": reason,
	}))

	alert := alertmodel.NewAlert(
		alertmodel.SeverityError,
		alertmodel.CategoryTask,
		fmt.Sprintf("Monitoring task failed: %s", name),
		reason,
		"scheduler",
	)
	alert.Context = alertmodel.Context{
		Kind: "task",
		Task: &alertmodel.TaskFailureContext{Task: name, Reason: reason},
	}
	m.raise(ctx, alert)
}

// healthCycle is the main task: collect, score, analyze, alert.
func (m *Monitor) healthCycle(ctx context.Context) error {
	m.cycle(ctx)
	m.alerts.EscalateSweep(ctx)
	return nil
}

// cycle runs one full collection and analysis pass. The snapshot is fully
// assembled before anything scores or alerts on it.
func (m *Monitor) cycle(ctx context.Context) (model.MonitoringMetrics, model.HealthScore) {
	var prev *model.MonitoringMetrics
	if p, ok := m.history.Latest(); ok {
		prev = &p
	}

	snapshot := m.collector.Collect(ctx)
	m.history.Append(snapshot)
	m.metrics.HistorySize.WithLabelValues("metrics").Set(float64(m.history.Len()))

	score := m.health.Compute(snapshot, m.history)
	m.publishScore(score)

	for _, alert := range m.analyzer.Alerts(m.analyzer.Analyze(snapshot)) {
		m.raise(ctx, alert)
	}
	if alert := m.detector.Alert(m.detector.Detect(prev, snapshot)); alert != nil {
		m.raise(ctx, alert)
	}

	m.countCheck()
	m.bus.Publish(events.New(events.MetricsCollected, "monitor", map[string]interface{}{
		"environment": snapshot.Environment,
		"overall":     score.Overall,
		"trend":       string(score.Trend),
	}))
	return snapshot, score
}

// performanceCycle re-probes the API and UI between full cycles and alerts
// on threshold violations in the fresh readings.
func (m *Monitor) performanceCycle(ctx context.Context) error {
	api, ui, err := m.collector.CollectPerformance(ctx)
	if err != nil {
		return err
	}

	partial := model.MonitoringMetrics{Timestamp: time.Now().UTC(), API: api, UI: ui}
	for _, alert := range m.analyzer.Alerts(m.analyzer.Analyze(partial)) {
		m.raise(ctx, alert)
	}
	m.countCheck()
	return nil
}

// driftCycle compares the current environment against every configured
// target, runs the deployment verification battery as a black-box probe
// and raises drift alerts graded by the comparison risk.
func (m *Monitor) driftCycle(ctx context.Context) error {
	var firstErr error
	for _, t := range m.targets {
		if _, err := m.VerifyDeployment(ctx, t.Name); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("verify %s: %w", t.Name, err)
		}

		cmp, err := m.fingerprint.Compare(ctx, t.Name)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("compare %s: %w", t.Name, err)
			}
			continue
		}
		if cmp.SyncStatus == envmodel.SyncSynchronized {
			continue
		}

		fields := make([]string, 0, len(cmp.Differences))
		for _, d := range cmp.Differences {
			fields = append(fields, d.Field)
		}

		alert := alertmodel.NewAlert(
			driftSeverity(cmp.RiskLevel),
			alertmodel.CategoryDrift,
			fmt.Sprintf("Environment drift: %s vs %s", cmp.Source, cmp.Target),
			fmt.Sprintf("%s with %d differing field(s), risk %s", cmp.SyncStatus, len(cmp.Differences), cmp.RiskLevel),
			"drift-detector",
		)
		alert.Target = t.Name
		alert.Context = alertmodel.Context{
			Kind: "drift",
			Drift: &alertmodel.DriftContext{
				Source:     cmp.Source,
				Target:     cmp.Target,
				SyncStatus: string(cmp.SyncStatus),
				RiskLevel:  string(cmp.RiskLevel),
				Fields:     fields,
			},
		}
		m.raise(ctx, alert)
		m.bus.Publish(events.New(events.DriftDetected, "monitor", map[string]interface{}{
			"target":     t.Name,
			"syncStatus": string(cmp.SyncStatus),
			"riskLevel":  string(cmp.RiskLevel),
		}))
	}
	m.countCheck()
	return firstErr
}

// sessionCycle re-checks session validity between full cycles.
func (m *Monitor) sessionCycle(ctx context.Context) error {
	sess, err := m.collector.CollectSessions(ctx)
	if err != nil {
		return err
	}
	if total := sess.ActiveSessions + sess.InvalidSessions; total > 0 {
		invalidRate := float64(sess.InvalidSessions) / float64(total)
		if invalidRate > 0.25 {
			alert := alertmodel.NewAlert(
				alertmodel.SeverityWarning,
				alertmodel.CategorySystem,
				"Elevated invalid session rate",
				fmt.Sprintf("%.0f%% of sessions are invalid (%d of %d)", invalidRate*100, sess.InvalidSessions, total),
				"session-check",
			)
			m.raise(ctx, alert)
		}
	}
	m.countCheck()
	return nil
}

// databaseCycle re-probes the database between full cycles and alerts on
// degraded or unhealthy classifications. A failed probe already carries an
// unhealthy reading, so it feeds the same alert path instead of counting
// as a task failure.
func (m *Monitor) databaseCycle(ctx context.Context) error {
	db, err := m.collector.CollectDatabase(ctx)
	if err != nil {
		m.logger.Warn("Database probe failed", "error", err)
	}
	if db.Health != model.DatabaseHealthy {
		severity := alertmodel.SeverityWarning
		if db.Health == model.DatabaseUnhealthy {
			severity = alertmodel.SeverityError
		}
		alert := alertmodel.NewAlert(
			severity,
			alertmodel.CategorySystem,
			fmt.Sprintf("Database %s", db.Health),
			fmt.Sprintf("round trip %.0fms", db.QueryTimeMs),
			"database-check",
		)
		m.raise(ctx, alert)
	}
	m.countCheck()
	return nil
}

// integrationCycle re-probes external integrations between full cycles.
func (m *Monitor) integrationCycle(ctx context.Context) error {
	integrations, err := m.collector.CollectIntegrations(ctx)
	if err != nil {
		return err
	}
	for _, svc := range integrations.Services {
		if svc.Status == model.IntegrationHealthy {
			continue
		}
		severity := alertmodel.SeverityWarning
		if svc.Status == model.IntegrationUnhealthy {
			severity = alertmodel.SeverityError
		}
		alert := alertmodel.NewAlert(
			severity,
			alertmodel.CategoryIntegration,
			fmt.Sprintf("Integration %s is %s", svc.Name, svc.Status),
			svc.Error,
			"integration-check",
		)
		alert.Target = svc.Name
		m.raise(ctx, alert)
	}
	m.countCheck()
	return nil
}

// persist flushes both history buffers to disk. Persistence failures are
// logged and surfaced to the scheduler, never fatal.
func (m *Monitor) persist(ctx context.Context) error {
	if err := m.repo.SaveMetrics(ctx, m.history.Snapshot()); err != nil {
		return fmt.Errorf("persist metrics history: %w", err)
	}
	if err := m.alerts.Flush(ctx); err != nil {
		return fmt.Errorf("persist alert history: %w", err)
	}
	return nil
}

// restore reloads persisted history. Failures leave empty buffers.
func (m *Monitor) restore(ctx context.Context) {
	if snapshots, err := m.repo.LoadMetrics(ctx); err != nil {
		m.logger.Warn("Could not reload metrics history", "error", err)
	} else if len(snapshots) > 0 {
		m.history.Restore(snapshots)
		m.logger.Info("Metrics history reloaded", "snapshots", len(snapshots))
	}
	m.alerts.LoadHistory(ctx)
}

// raise pushes one alert through the pipeline and counts it against the
// active session.
func (m *Monitor) raise(ctx context.Context, alert *alertmodel.Alert) {
	if !m.alerts.Send(ctx, alert) {
		return
	}
	m.mu.Lock()
	if m.session != nil {
		m.session.AlertsGenerated++
	}
	m.mu.Unlock()
}

func (m *Monitor) countCheck() {
	m.mu.Lock()
	if m.session != nil {
		m.session.ChecksPerformed++
	}
	m.mu.Unlock()
}

func (m *Monitor) publishScore(score model.HealthScore) {
	m.mu.Lock()
	m.lastScore = &score
	m.mu.Unlock()

	g := m.metrics.HealthScore
	g.WithLabelValues("overall").Set(float64(score.Overall))
	g.WithLabelValues("system").Set(float64(score.Subsystems.System))
	g.WithLabelValues("api").Set(float64(score.Subsystems.API))
	g.WithLabelValues("database").Set(float64(score.Subsystems.Database))
	g.WithLabelValues("integration").Set(float64(score.Subsystems.Integration))
	g.WithLabelValues("ui").Set(float64(score.Subsystems.UI))
	g.WithLabelValues("session").Set(float64(score.Subsystems.Session))
	g.WithLabelValues("progressive").Set(float64(score.Subsystems.Progressive))
}

// persistInterval guards against a zero flush interval from a hand-edited
// config file.
func (m *Monitor) persistInterval() time.Duration {
	if m.flushEvery <= 0 {
		return 60 * time.Second
	}
	return m.flushEvery
}

// driftSeverity maps a comparison risk level onto an alert severity.
func driftSeverity(risk envmodel.RiskLevel) alertmodel.Severity {
	switch risk {
	case envmodel.RiskCritical:
		return alertmodel.SeverityCritical
	case envmodel.RiskHigh:
		return alertmodel.SeverityError
	case envmodel.RiskMedium:
		return alertmodel.SeverityWarning
	default:
		return alertmodel.SeverityInfo
	}
}
