package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertmodel "github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
)

func TestChangeDetectorFirstCycleIsExempt(t *testing.T) {
	detector := NewChangeDetector(testThresholds())

	current := model.MonitoringMetrics{
		System: model.SystemMetrics{MemoryPercent: 99},
		API:    model.APIMetrics{AverageResponseTimeMs: 5000, ErrorRate: 1},
	}

	assert.Empty(t, detector.Detect(nil, current))
}

func TestChangeDetectorMemoryJumpIsMediumImpact(t *testing.T) {
	detector := NewChangeDetector(testThresholds())

	prev := model.MonitoringMetrics{System: model.SystemMetrics{MemoryPercent: 40}}
	current := model.MonitoringMetrics{System: model.SystemMetrics{MemoryPercent: 55}}

	changes := detector.Detect(&prev, current)
	require.Len(t, changes, 1)
	assert.Equal(t, "system.memoryUsage.percentage", changes[0].Metric)
	assert.Equal(t, 15.0, changes[0].Delta)
	assert.Equal(t, model.ImpactMedium, changes[0].Impact)
}

func TestChangeDetectorSmallDriftIsIgnored(t *testing.T) {
	detector := NewChangeDetector(testThresholds())

	prev := model.MonitoringMetrics{
		System: model.SystemMetrics{MemoryPercent: 40},
		API:    model.APIMetrics{AverageResponseTimeMs: 200, ErrorRate: 0.01},
	}
	current := model.MonitoringMetrics{
		System: model.SystemMetrics{MemoryPercent: 45},
		API:    model.APIMetrics{AverageResponseTimeMs: 250, ErrorRate: 0.02},
	}

	assert.Empty(t, detector.Detect(&prev, current))
}

func TestChangeDetectorLargeSwingIsHighImpact(t *testing.T) {
	detector := NewChangeDetector(testThresholds())

	prev := model.MonitoringMetrics{System: model.SystemMetrics{MemoryPercent: 30}}
	current := model.MonitoringMetrics{System: model.SystemMetrics{MemoryPercent: 60}}

	changes := detector.Detect(&prev, current)
	require.Len(t, changes, 1)
	assert.Equal(t, model.ImpactHigh, changes[0].Impact)
}

func TestChangeDetectorAggregatesOneAlertPerBatch(t *testing.T) {
	detector := NewChangeDetector(testThresholds())

	assert.Nil(t, detector.Alert(nil))

	changes := []model.DetectedChange{
		{Metric: "system.memoryUsage.percentage", Impact: model.ImpactHigh},
		{Metric: "api.errorRate", Impact: model.ImpactLow},
	}
	alert := detector.Alert(changes)
	require.NotNil(t, alert)
	assert.Equal(t, alertmodel.CategoryChange, alert.Category)
	assert.Equal(t, alertmodel.SeverityWarning, alert.Severity)
	require.NotNil(t, alert.Context.Change)
	assert.Len(t, alert.Context.Change.Changes, 2)
}

func TestChangeDetectorThresholdUpdateDuringDetection(t *testing.T) {
	detector := NewChangeDetector(testThresholds())

	prev := model.MonitoringMetrics{API: model.APIMetrics{AverageResponseTimeMs: 200}}
	current := model.MonitoringMetrics{API: model.APIMetrics{AverageResponseTimeMs: 500}}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				detector.Detect(&prev, current)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				detector.UpdateThresholds(testThresholds())
			}
		}()
	}
	wg.Wait()

	// A looser response time threshold widens the change band, so the
	// 300ms swing stops registering.
	loose := testThresholds()
	loose.APIResponseTimeMs = 5000
	detector.UpdateThresholds(loose)
	assert.Empty(t, detector.Detect(&prev, current))
}
