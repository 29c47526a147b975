package service

import (
	"fmt"
	"math"
	"sync"

	alertmodel "github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/config"
)

// ChangeDetector compares consecutive snapshots and reports significant
// swings. With no previous snapshot it reports nothing, so the first cycle
// after start never raises change alerts.
type ChangeDetector struct {
	mu         sync.RWMutex
	thresholds config.ThresholdsConfig
}

// NewChangeDetector creates a detector over the configured thresholds.
func NewChangeDetector(thresholds config.ThresholdsConfig) *ChangeDetector {
	return &ChangeDetector{thresholds: thresholds}
}

// UpdateThresholds swaps the threshold set, used by runtime config updates.
// Safe to call while scheduled cycles are detecting.
func (d *ChangeDetector) UpdateThresholds(thresholds config.ThresholdsConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.thresholds = thresholds
}

// Detect returns the significant deltas between prev and current. The
// response time delta is significant past 20% of its static threshold,
// error rate past 5 percentage points, memory past 10 percentage points.
func (d *ChangeDetector) Detect(prev *model.MonitoringMetrics, current model.MonitoringMetrics) []model.DetectedChange {
	if prev == nil {
		return nil
	}

	d.mu.RLock()
	t := d.thresholds
	d.mu.RUnlock()

	var out []model.DetectedChange

	record := func(metric string, previous, value, changeThreshold float64, recommendation string) {
		delta := value - previous
		if math.Abs(delta) < changeThreshold {
			return
		}
		out = append(out, model.DetectedChange{
			Metric:         metric,
			Previous:       previous,
			Current:        value,
			Delta:          delta,
			Impact:         classifyImpact(delta, changeThreshold),
			Recommendation: recommendation,
		})
	}

	record(
		"api.averageResponseTime",
		prev.API.AverageResponseTimeMs,
		current.API.AverageResponseTimeMs,
		t.APIResponseTimeMs*0.20,
		"Check recent deployments and database query plans",
	)
	record(
		"api.errorRate",
		prev.API.ErrorRate,
		current.API.ErrorRate,
		0.05,
		"Inspect API error logs for new failure modes",
	)
	record(
		"system.memoryUsage.percentage",
		prev.System.MemoryPercent,
		current.System.MemoryPercent,
		10,
		"Check for memory leaks or unusual workload",
	)

	return out
}

// classifyImpact grades a delta by how many times it exceeds the change
// threshold.
func classifyImpact(delta, changeThreshold float64) model.Impact {
	ratio := math.Abs(delta) / changeThreshold
	switch {
	case ratio >= 2.5:
		return model.ImpactHigh
	case ratio >= 1.2:
		return model.ImpactMedium
	default:
		return model.ImpactLow
	}
}

// Alert folds a batch of changes into one aggregated change alert, severity
// driven by the worst impact in the batch. Returns nil for an empty batch.
func (d *ChangeDetector) Alert(changes []model.DetectedChange) *alertmodel.Alert {
	if len(changes) == 0 {
		return nil
	}

	severity := alertmodel.SeverityInfo
	for _, c := range changes {
		switch c.Impact {
		case model.ImpactHigh:
			severity = alertmodel.SeverityWarning
		case model.ImpactMedium:
			if severity != alertmodel.SeverityWarning {
				severity = alertmodel.SeverityInfo
			}
		}
	}

	alert := alertmodel.NewAlert(
		severity,
		alertmodel.CategoryChange,
		"Significant metric changes detected",
		fmt.Sprintf("%d metric(s) moved significantly since the previous check", len(changes)),
		"change-detector",
	)
	alert.Context = alertmodel.Context{
		Kind:   "change",
		Change: &alertmodel.ChangeContext{Changes: changes},
	}
	return alert
}
