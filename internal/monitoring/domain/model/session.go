package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the monitoring session lifecycle state
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionStopped SessionStatus = "stopped"
	SessionError   SessionStatus = "error"
)

// MonitoringSession tracks one start/stop span of the monitor. Exactly one
// session is active at a time per monitor instance.
type MonitoringSession struct {
	ID              string        `json:"id"`
	StartedAt       time.Time     `json:"startedAt"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
	Environments    []string      `json:"environments"`
	ChecksPerformed int64         `json:"checksPerformed"`
	AlertsGenerated int64         `json:"alertsGenerated"`
	Status          SessionStatus `json:"status"`
}

// NewMonitoringSession starts a new active session over the named
// environments.
func NewMonitoringSession(environments []string) *MonitoringSession {
	return &MonitoringSession{
		ID:           uuid.New().String(),
		StartedAt:    time.Now(),
		Environments: environments,
		Status:       SessionActive,
	}
}

// Stop transitions the session to stopped, from active or error.
// Idempotent.
func (s *MonitoringSession) Stop() {
	if s.Status == SessionStopped {
		return
	}
	now := time.Now()
	s.EndedAt = &now
	s.Status = SessionStopped
}

// Fail marks the session as erroring while its tasks keep running. A
// stopped session stays stopped.
func (s *MonitoringSession) Fail() {
	if s.Status != SessionActive {
		return
	}
	s.Status = SessionError
}
