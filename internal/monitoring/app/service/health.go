package service

import (
	"math"
	"time"

	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
)

// Subsystem weights. They sum to 1 so a snapshot of perfect subsystems
// scores exactly 100.
const (
	weightSystem      = 0.15
	weightAPI         = 0.25
	weightDatabase    = 0.20
	weightIntegration = 0.15
	weightUI          = 0.10
	weightSession     = 0.10
	weightProgressive = 0.05
)

// trendLookback is how many cycles back the trend comparison reaches.
const trendLookback = 3

// trendBand is the score delta treated as noise.
const trendBand = 5

// HealthCalculator derives the composite health score from a snapshot.
// Each subsystem starts at 100 and takes stepped deductions, then the
// weighted subsystem scores combine into the overall score, rounded to
// the nearest integer.
type HealthCalculator struct{}

// NewHealthCalculator creates the score calculator.
func NewHealthCalculator() *HealthCalculator {
	return &HealthCalculator{}
}

// Compute scores one snapshot. The trend compares the resulting overall
// score against the score of the snapshot trendLookback cycles earlier;
// with fewer snapshots than that the trend is stable.
func (c *HealthCalculator) Compute(current model.MonitoringMetrics, history *HistoryStore) model.HealthScore {
	subsystems := model.SubsystemScores{
		System:      scoreSystem(current.System),
		API:         scoreAPI(current.API),
		Database:    scoreDatabase(current.Database),
		Integration: scoreIntegration(current.Integration),
		UI:          scoreUI(current.UI),
		Session:     scoreSession(current.Session),
		Progressive: scoreProgressive(current.Progressive),
	}

	overall := int(math.Round(
		float64(subsystems.System)*weightSystem +
			float64(subsystems.API)*weightAPI +
			float64(subsystems.Database)*weightDatabase +
			float64(subsystems.Integration)*weightIntegration +
			float64(subsystems.UI)*weightUI +
			float64(subsystems.Session)*weightSession +
			float64(subsystems.Progressive)*weightProgressive))

	return model.HealthScore{
		Overall:    clampScore(overall),
		Subsystems: subsystems,
		Trend:      c.trend(overall, history),
		ComputedAt: time.Now().UTC(),
	}
}

// trend compares the current overall score with the score recomputed for
// the snapshot trendLookback cycles back.
func (c *HealthCalculator) trend(overall int, history *HistoryStore) model.Trend {
	if history == nil || history.Len() < trendLookback {
		return model.TrendStable
	}

	past, ok := history.NthFromLatest(trendLookback - 1)
	if !ok {
		return model.TrendStable
	}
	pastScore := c.Compute(past, nil).Overall

	switch {
	case overall > pastScore+trendBand:
		return model.TrendImproving
	case overall < pastScore-trendBand:
		return model.TrendDegrading
	default:
		return model.TrendStable
	}
}

func scoreSystem(m model.SystemMetrics) int {
	score := 100
	switch {
	case m.MemoryPercent > 80:
		score -= 30
	case m.MemoryPercent > 60:
		score -= 15
	}
	switch {
	case m.CPUPercent > 90:
		score -= 30
	case m.CPUPercent > 70:
		score -= 15
	}
	switch {
	case m.DiskPercent > 90:
		score -= 20
	case m.DiskPercent > 80:
		score -= 10
	}
	return clampScore(score)
}

func scoreAPI(m model.APIMetrics) int {
	score := 100
	switch {
	case m.ErrorRate > 0.10:
		score -= 40
	case m.ErrorRate > 0.05:
		score -= 20
	case m.ErrorRate > 0.01:
		score -= 10
	}
	switch {
	case m.AverageResponseTimeMs > 2000:
		score -= 30
	case m.AverageResponseTimeMs > 1000:
		score -= 15
	case m.AverageResponseTimeMs > 500:
		score -= 5
	}
	return clampScore(score)
}

func scoreDatabase(m model.DatabaseMetrics) int {
	score := 100
	switch m.Health {
	case model.DatabaseUnhealthy:
		score -= 50
	case model.DatabaseDegraded:
		score -= 25
	}
	if m.FailureRate > 0.05 {
		score -= 15
	}
	return clampScore(score)
}

func scoreIntegration(m model.IntegrationMetrics) int {
	score := 100
	for _, svc := range m.Services {
		switch svc.Status {
		case model.IntegrationUnhealthy:
			score -= 30
		case model.IntegrationDegraded:
			score -= 15
		}
	}
	return clampScore(score)
}

func scoreUI(m model.UIMetrics) int {
	if m.PerformanceScore <= 0 {
		return 100
	}
	return clampScore(int(m.PerformanceScore))
}

func scoreSession(m model.SessionMetrics) int {
	score := 100
	total := m.ActiveSessions + m.InvalidSessions
	if total > 0 {
		invalidRate := float64(m.InvalidSessions) / float64(total)
		switch {
		case invalidRate > 0.25:
			score -= 40
		case invalidRate > 0.10:
			score -= 20
		}
	}
	if m.AuthFailures > 10 {
		score -= 20
	}
	return clampScore(score)
}

func scoreProgressive(m model.ProgressiveMetrics) int {
	score := 100
	switch {
	case m.SuccessRate < 0.80:
		score -= 40
	case m.SuccessRate < 0.95:
		score -= 15
	}
	return clampScore(score)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
