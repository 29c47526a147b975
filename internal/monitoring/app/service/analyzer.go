package service

import (
	"fmt"
	"sync"

	alertmodel "github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/config"
)

// Violation is one metric reading over its configured threshold.
type Violation struct {
	Metric    string
	Value     float64
	Threshold float64
	Severity  alertmodel.Severity
}

// ThresholdAnalyzer evaluates a snapshot against static thresholds. Every
// violated metric yields its own violation; a reading more than twice its
// threshold is promoted to critical regardless of the metric's base
// severity.
type ThresholdAnalyzer struct {
	mu         sync.RWMutex
	thresholds config.ThresholdsConfig
}

// NewThresholdAnalyzer creates an analyzer over the configured thresholds.
func NewThresholdAnalyzer(thresholds config.ThresholdsConfig) *ThresholdAnalyzer {
	return &ThresholdAnalyzer{thresholds: thresholds}
}

// UpdateThresholds swaps the threshold set, used by runtime config updates.
// Safe to call while scheduled cycles are analyzing.
func (a *ThresholdAnalyzer) UpdateThresholds(thresholds config.ThresholdsConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thresholds = thresholds
}

// Analyze returns every threshold violation in the snapshot.
func (a *ThresholdAnalyzer) Analyze(m model.MonitoringMetrics) []Violation {
	var out []Violation

	check := func(metric string, value, threshold float64, base alertmodel.Severity) {
		if threshold <= 0 || value <= threshold {
			return
		}
		severity := base
		if value > 2*threshold {
			severity = alertmodel.SeverityCritical
		}
		out = append(out, Violation{Metric: metric, Value: value, Threshold: threshold, Severity: severity})
	}

	a.mu.RLock()
	t := a.thresholds
	a.mu.RUnlock()

	check("api.averageResponseTime", m.API.AverageResponseTimeMs, t.APIResponseTimeMs, alertmodel.SeverityWarning)
	check("api.errorRate", m.API.ErrorRate, t.APIErrorRate, alertmodel.SeverityError)
	check("system.memoryUsage.percentage", m.System.MemoryPercent, t.MemoryPercent, alertmodel.SeverityWarning)
	check("system.cpuUsage.percentage", m.System.CPUPercent, t.CPUPercent, alertmodel.SeverityWarning)
	check("system.diskUsage.percentage", m.System.DiskPercent, t.DiskPercent, alertmodel.SeverityError)
	check("database.queryPerformance.averageTime", m.Database.QueryTimeMs, t.DBQueryTimeMs, alertmodel.SeverityWarning)

	for _, svc := range m.Integration.Services {
		check(
			fmt.Sprintf("integration.%s.errorRate", svc.Name),
			svc.ErrorRate,
			t.IntegrationErrRate,
			alertmodel.SeverityError,
		)
	}

	return out
}

// Alerts converts violations into threshold alerts.
func (a *ThresholdAnalyzer) Alerts(violations []Violation) []*alertmodel.Alert {
	out := make([]*alertmodel.Alert, 0, len(violations))
	for _, v := range violations {
		alert := alertmodel.NewAlert(
			v.Severity,
			alertmodel.CategoryThreshold,
			fmt.Sprintf("Threshold exceeded: %s", v.Metric),
			fmt.Sprintf("%s is %.2f, threshold %.2f", v.Metric, v.Value, v.Threshold),
			"threshold-analyzer",
		)
		alert.Context = alertmodel.Context{
			Kind: "threshold",
			Threshold: &alertmodel.ThresholdContext{
				Metric:    v.Metric,
				Value:     v.Value,
				Threshold: v.Threshold,
			},
		}
		out = append(out, alert)
	}
	return out
}
