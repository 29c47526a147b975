package model

import "time"

// Trend classifies the overall score direction across recent cycles
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// SubsystemScores is the per-subsystem breakdown of a health score
type SubsystemScores struct {
	System      int `json:"system"`
	API         int `json:"api"`
	Database    int `json:"database"`
	Integration int `json:"integration"`
	UI          int `json:"ui"`
	Session     int `json:"session"`
	Progressive int `json:"progressive"`
}

// HealthScore is the weighted 0-100 composite. Derived from snapshots on
// demand, never persisted as source of truth.
type HealthScore struct {
	Overall    int             `json:"overall"`
	Subsystems SubsystemScores `json:"subsystems"`
	Trend      Trend           `json:"trend"`
	ComputedAt time.Time       `json:"computedAt"`
}
