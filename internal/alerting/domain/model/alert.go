package model

import (
	"time"

	"github.com/google/uuid"

	monmodel "github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
)

// Severity orders alerts from informational to critical
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering position of a severity, higher is worse.
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Category groups alerts by what produced them
type Category string

const (
	CategoryThreshold   Category = "threshold"
	CategoryChange      Category = "change"
	CategoryDrift       Category = "drift"
	CategoryTask        Category = "task"
	CategorySystem      Category = "system"
	CategoryDeployment  Category = "deployment"
	CategoryIntegration Category = "integration"
	CategoryTest        Category = "test"
)

// ThresholdContext describes a static threshold violation
type ThresholdContext struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// ChangeContext carries the batch of snapshot-to-snapshot changes behind
// an aggregated change alert
type ChangeContext struct {
	Changes []monmodel.DetectedChange `json:"changes"`
}

// DriftContext describes an environment drift finding
type DriftContext struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	SyncStatus string   `json:"syncStatus"`
	RiskLevel  string   `json:"riskLevel"`
	Fields     []string `json:"fields,omitempty"`
}

// TaskFailureContext identifies a failed scheduler task
type TaskFailureContext struct {
	Task   string `json:"task"`
	Reason string `json:"reason"`
}

// DeploymentContext summarizes a deployment verification run
type DeploymentContext struct {
	Target        string   `json:"target"`
	OverallStatus string   `json:"overallStatus"`
	SuccessRate   float64  `json:"successRate"`
	FailedChecks  []string `json:"failedChecks,omitempty"`
}

// Context is the tagged union of known alert-context shapes. Kind selects
// the populated member; Extra is the generic fallback for forward
// compatibility.
type Context struct {
	Kind       string                 `json:"kind,omitempty"`
	Threshold  *ThresholdContext      `json:"threshold,omitempty"`
	Change     *ChangeContext         `json:"change,omitempty"`
	Drift      *DriftContext          `json:"drift,omitempty"`
	Task       *TaskFailureContext    `json:"task,omitempty"`
	Deployment *DeploymentContext     `json:"deployment,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// Alert is one monitoring alert. Created by the alert manager, mutated
// only through Resolve and MarkEscalated, never deleted (only evicted from
// capped history).
type Alert struct {
	ID            string     `json:"id"`
	Timestamp     time.Time  `json:"timestamp"`
	Severity      Severity   `json:"severity"`
	Category      Category   `json:"category"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	Source        string     `json:"source"`
	Target        string     `json:"target,omitempty"`
	Context       Context    `json:"context"`
	Resolved      bool       `json:"resolved"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	Escalated     bool       `json:"escalated"`
	SuppressUntil *time.Time `json:"suppressUntil,omitempty"`
}

// NewAlert creates an unresolved alert.
func NewAlert(severity Severity, category Category, title, message, source string) *Alert {
	return &Alert{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Severity:  severity,
		Category:  category,
		Title:     title,
		Message:   message,
		Source:    source,
	}
}

// Resolve flips the alert to resolved and stamps ResolvedAt exactly once.
// Returns false when the alert was already resolved.
func (a *Alert) Resolve() bool {
	if a.Resolved {
		return false
	}
	a.Resolved = true
	now := time.Now()
	a.ResolvedAt = &now
	return true
}

// MarkEscalated records that the alert passed the escalation ladder.
// Returns false when the alert was already escalated or is resolved.
func (a *Alert) MarkEscalated() bool {
	if a.Escalated || a.Resolved {
		return false
	}
	a.Escalated = true
	return true
}

// Suppressed reports whether the alert is still inside a quiet window at t.
func (a *Alert) Suppressed(t time.Time) bool {
	return a.SuppressUntil != nil && t.Before(*a.SuppressUntil)
}

// RateLimitKey groups alerts for rate limiting: one bucket per
// (category, severity) pair.
func (a *Alert) RateLimitKey() string {
	return string(a.Category) + ":" + string(a.Severity)
}
