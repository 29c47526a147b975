package model

import "time"

// DatabaseHealth classifies the database round-trip
type DatabaseHealth string

const (
	DatabaseHealthy   DatabaseHealth = "healthy"
	DatabaseDegraded  DatabaseHealth = "degraded"
	DatabaseUnhealthy DatabaseHealth = "unhealthy"
)

// IntegrationState classifies an external integration
type IntegrationState string

const (
	IntegrationHealthy   IntegrationState = "healthy"
	IntegrationDegraded  IntegrationState = "degraded"
	IntegrationUnhealthy IntegrationState = "unhealthy"
)

// SystemMetrics holds host resource readings
type SystemMetrics struct {
	UptimeSeconds float64 `json:"uptimeSeconds"`
	MemoryPercent float64 `json:"memoryPercent"`
	MemoryUsedMB  float64 `json:"memoryUsedMb"`
	MemoryTotalMB float64 `json:"memoryTotalMb"`
	CPUPercent    float64 `json:"cpuPercent"`
	DiskPercent   float64 `json:"diskPercent"`
}

// EndpointMetric is one probed API endpoint result. Responding is true for
// any status below 500: a 401 or 404 still proves the service answers.
type EndpointMetric struct {
	Method     string  `json:"method"`
	Path       string  `json:"path"`
	LatencyMs  float64 `json:"latencyMs"`
	StatusCode int     `json:"statusCode"`
	Responding bool    `json:"responding"`
	Error      string  `json:"error,omitempty"`
}

// APIMetrics aggregates per-endpoint probes
type APIMetrics struct {
	Endpoints             []EndpointMetric `json:"endpoints"`
	AverageResponseTimeMs float64          `json:"averageResponseTimeMs"`
	ErrorRate             float64          `json:"errorRate"`
	RequestCount          int              `json:"requestCount"`
	ErrorCount            int              `json:"errorCount"`
}

// DatabaseMetrics is the black-box view of the database health endpoint
type DatabaseMetrics struct {
	Health          DatabaseHealth `json:"health"`
	QueryTimeMs     float64        `json:"queryTimeMs"`
	PoolOccupancy   float64        `json:"poolOccupancy"`
	TransactionsOK  int64          `json:"transactionsOk"`
	TransactionsErr int64          `json:"transactionsErr"`
	Rollbacks       int64          `json:"rollbacks"`
	FailureRate     float64        `json:"failureRate"`
}

// IntegrationStatus is one external service reading
type IntegrationStatus struct {
	Name      string           `json:"name"`
	Status    IntegrationState `json:"status"`
	LatencyMs float64          `json:"latencyMs"`
	ErrorRate float64          `json:"errorRate"`
	Error     string           `json:"error,omitempty"`
}

// IntegrationMetrics aggregates external service readings
type IntegrationMetrics struct {
	Services []IntegrationStatus `json:"services"`
}

// UIMetrics is the core-web-vitals proxy reported by the UI probe
type UIMetrics struct {
	LoadTimeMs               float64 `json:"loadTimeMs"`
	FirstContentfulPaintMs   float64 `json:"firstContentfulPaintMs"`
	LargestContentfulPaintMs float64 `json:"largestContentfulPaintMs"`
	TimeToInteractiveMs      float64 `json:"timeToInteractiveMs"`
	CumulativeLayoutShift    float64 `json:"cumulativeLayoutShift"`
	PerformanceScore         float64 `json:"performanceScore"`
	AccessibilityScore       float64 `json:"accessibilityScore"`
}

// SessionMetrics counts session validity
type SessionMetrics struct {
	ActiveSessions  int `json:"activeSessions"`
	InvalidSessions int `json:"invalidSessions"`
	AuthFailures    int `json:"authFailures"`
}

// FeatureLevelMetric is one progressive-disclosure level counter
type FeatureLevelMetric struct {
	Level     string `json:"level"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
}

// ProgressiveMetrics aggregates per-feature-level rollout counters
type ProgressiveMetrics struct {
	Levels      []FeatureLevelMetric `json:"levels"`
	SuccessRate float64              `json:"successRate"`
}

// MonitoringMetrics is one timestamped snapshot per check cycle. A snapshot
// is fully assembled before it is scored or alerted on.
type MonitoringMetrics struct {
	Timestamp   time.Time          `json:"timestamp"`
	Environment string             `json:"environment"`
	System      SystemMetrics      `json:"system"`
	API         APIMetrics         `json:"api"`
	Database    DatabaseMetrics    `json:"database"`
	Integration IntegrationMetrics `json:"integration"`
	UI          UIMetrics          `json:"ui"`
	Session     SessionMetrics     `json:"session"`
	Progressive ProgressiveMetrics `json:"progressive"`
}

// ClassifyDatabase maps a round-trip time to a health state given the
// degraded and unhealthy thresholds in milliseconds.
func ClassifyDatabase(rttMs, degradedMs, unhealthyMs float64) DatabaseHealth {
	switch {
	case rttMs >= unhealthyMs:
		return DatabaseUnhealthy
	case rttMs >= degradedMs:
		return DatabaseDegraded
	default:
		return DatabaseHealthy
	}
}
