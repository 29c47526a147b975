package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertmodel "github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/config"
)

func testThresholds() config.ThresholdsConfig {
	return config.ThresholdsConfig{
		APIResponseTimeMs:  500,
		APIErrorRate:       0.05,
		MemoryPercent:      80,
		CPUPercent:         85,
		DiskPercent:        90,
		DBQueryTimeMs:      200,
		DBDegradedMs:       500,
		DBUnhealthyMs:      2000,
		IntegrationErrRate: 0.10,
	}
}

func TestAnalyzerEscalatesToCriticalPastDoubleThreshold(t *testing.T) {
	analyzer := NewThresholdAnalyzer(testThresholds())

	snapshot := model.MonitoringMetrics{
		API: model.APIMetrics{AverageResponseTimeMs: 1100},
	}

	violations := analyzer.Analyze(snapshot)
	require.Len(t, violations, 1)
	assert.Equal(t, "api.averageResponseTime", violations[0].Metric)
	assert.Equal(t, alertmodel.SeverityCritical, violations[0].Severity)
	assert.Equal(t, 1100.0, violations[0].Value)
	assert.Equal(t, 500.0, violations[0].Threshold)

	alerts := analyzer.Alerts(violations)
	require.Len(t, alerts, 1)
	assert.Equal(t, alertmodel.CategoryThreshold, alerts[0].Category)
	assert.Equal(t, alertmodel.SeverityCritical, alerts[0].Severity)
	require.NotNil(t, alerts[0].Context.Threshold)
	assert.Equal(t, "api.averageResponseTime", alerts[0].Context.Threshold.Metric)
}

func TestAnalyzerKeepsBaseSeverityBelowDoubleThreshold(t *testing.T) {
	analyzer := NewThresholdAnalyzer(testThresholds())

	snapshot := model.MonitoringMetrics{
		API: model.APIMetrics{AverageResponseTimeMs: 700},
	}

	violations := analyzer.Analyze(snapshot)
	require.Len(t, violations, 1)
	assert.Equal(t, alertmodel.SeverityWarning, violations[0].Severity)
}

func TestAnalyzerNoViolationsOnHealthySnapshot(t *testing.T) {
	analyzer := NewThresholdAnalyzer(testThresholds())

	snapshot := model.MonitoringMetrics{
		System:   model.SystemMetrics{MemoryPercent: 50, CPUPercent: 30, DiskPercent: 40},
		API:      model.APIMetrics{AverageResponseTimeMs: 120, ErrorRate: 0.0},
		Database: model.DatabaseMetrics{Health: model.DatabaseHealthy, QueryTimeMs: 40},
	}

	assert.Empty(t, analyzer.Analyze(snapshot))
}

func TestAnalyzerFlagsEachIntegrationSeparately(t *testing.T) {
	analyzer := NewThresholdAnalyzer(testThresholds())

	snapshot := model.MonitoringMetrics{
		Integration: model.IntegrationMetrics{
			Services: []model.IntegrationStatus{
				{Name: "polygon", ErrorRate: 0.5},
				{Name: "email", ErrorRate: 0.02},
			},
		},
	}

	violations := analyzer.Analyze(snapshot)
	require.Len(t, violations, 1)
	assert.Equal(t, "integration.polygon.errorRate", violations[0].Metric)
	// 0.5 > 2 * 0.10, so the violation is promoted.
	assert.Equal(t, alertmodel.SeverityCritical, violations[0].Severity)
}

func TestAnalyzerThresholdUpdateDuringAnalysis(t *testing.T) {
	analyzer := NewThresholdAnalyzer(testThresholds())

	snapshot := model.MonitoringMetrics{
		API: model.APIMetrics{AverageResponseTimeMs: 700},
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				analyzer.Analyze(snapshot)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				analyzer.UpdateThresholds(testThresholds())
			}
		}()
	}
	wg.Wait()

	loose := testThresholds()
	loose.APIResponseTimeMs = 5000
	analyzer.UpdateThresholds(loose)
	assert.Empty(t, analyzer.Analyze(snapshot))
}
