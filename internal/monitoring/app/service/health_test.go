package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
)

func healthySnapshot() model.MonitoringMetrics {
	return model.MonitoringMetrics{
		System:   model.SystemMetrics{MemoryPercent: 40, CPUPercent: 20, DiskPercent: 30},
		API:      model.APIMetrics{AverageResponseTimeMs: 100, ErrorRate: 0},
		Database: model.DatabaseMetrics{Health: model.DatabaseHealthy, QueryTimeMs: 20},
		Integration: model.IntegrationMetrics{Services: []model.IntegrationStatus{
			{Name: "polygon", Status: model.IntegrationHealthy},
		}},
		UI:          model.UIMetrics{PerformanceScore: 100},
		Session:     model.SessionMetrics{ActiveSessions: 10},
		Progressive: model.ProgressiveMetrics{SuccessRate: 1},
	}
}

func unhealthySnapshot() model.MonitoringMetrics {
	return model.MonitoringMetrics{
		System:   model.SystemMetrics{MemoryPercent: 99, CPUPercent: 99, DiskPercent: 99},
		API:      model.APIMetrics{AverageResponseTimeMs: 9000, ErrorRate: 1},
		Database: model.DatabaseMetrics{Health: model.DatabaseUnhealthy, FailureRate: 0.5},
		Integration: model.IntegrationMetrics{Services: []model.IntegrationStatus{
			{Status: model.IntegrationUnhealthy},
			{Status: model.IntegrationUnhealthy},
			{Status: model.IntegrationUnhealthy},
			{Status: model.IntegrationUnhealthy},
		}},
		UI:          model.UIMetrics{PerformanceScore: 1},
		Session:     model.SessionMetrics{ActiveSessions: 1, InvalidSessions: 9, AuthFailures: 50},
		Progressive: model.ProgressiveMetrics{SuccessRate: 0},
	}
}

func TestHealthScoreStaysInBounds(t *testing.T) {
	calc := NewHealthCalculator()

	for _, snapshot := range []model.MonitoringMetrics{healthySnapshot(), unhealthySnapshot(), {}} {
		score := calc.Compute(snapshot, nil)

		assert.GreaterOrEqual(t, score.Overall, 0)
		assert.LessOrEqual(t, score.Overall, 100)
		for _, sub := range []int{
			score.Subsystems.System,
			score.Subsystems.API,
			score.Subsystems.Database,
			score.Subsystems.Integration,
			score.Subsystems.UI,
			score.Subsystems.Session,
			score.Subsystems.Progressive,
		} {
			assert.GreaterOrEqual(t, sub, 0)
			assert.LessOrEqual(t, sub, 100)
		}
	}
}

func TestHealthScorePerfectSnapshotScores100(t *testing.T) {
	calc := NewHealthCalculator()

	score := calc.Compute(healthySnapshot(), nil)
	assert.Equal(t, 100, score.Overall)
}

func TestHealthScoreRoundsWeightedSum(t *testing.T) {
	calc := NewHealthCalculator()

	// All subsystems perfect except UI at 95 puts the weighted sum at
	// 99.5, which rounds up rather than truncating to 99.
	snapshot := healthySnapshot()
	snapshot.UI.PerformanceScore = 95

	score := calc.Compute(snapshot, nil)
	assert.Equal(t, 95, score.Subsystems.UI)
	assert.Equal(t, 100, score.Overall)
}

func TestHealthScoreDeductionLadder(t *testing.T) {
	calc := NewHealthCalculator()

	snapshot := healthySnapshot()
	snapshot.System.MemoryPercent = 85
	score := calc.Compute(snapshot, nil)
	assert.Equal(t, 70, score.Subsystems.System)

	snapshot.System.MemoryPercent = 65
	score = calc.Compute(snapshot, nil)
	assert.Equal(t, 85, score.Subsystems.System)

	snapshot = healthySnapshot()
	snapshot.Database.Health = model.DatabaseDegraded
	score = calc.Compute(snapshot, nil)
	assert.Equal(t, 75, score.Subsystems.Database)
}

func TestHealthTrendStableWithShortHistory(t *testing.T) {
	calc := NewHealthCalculator()
	history := NewHistoryStore(10)

	history.Append(healthySnapshot())
	history.Append(healthySnapshot())

	score := calc.Compute(healthySnapshot(), history)
	assert.Equal(t, model.TrendStable, score.Trend)
}

func TestHealthTrendDegrading(t *testing.T) {
	calc := NewHealthCalculator()
	history := NewHistoryStore(10)

	history.Append(healthySnapshot())
	history.Append(healthySnapshot())
	history.Append(unhealthySnapshot())

	score := calc.Compute(unhealthySnapshot(), history)
	assert.Equal(t, model.TrendDegrading, score.Trend)
}

func TestHealthTrendImproving(t *testing.T) {
	calc := NewHealthCalculator()
	history := NewHistoryStore(10)

	history.Append(unhealthySnapshot())
	history.Append(unhealthySnapshot())
	history.Append(healthySnapshot())

	score := calc.Compute(healthySnapshot(), history)
	assert.Equal(t, model.TrendImproving, score.Trend)
}
