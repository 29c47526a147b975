// Package events carries monitoring lifecycle events between the engine
// and its subscribers (dashboard stream, kafka publisher).
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a monitoring event
type Type string

const (
	SessionStarted   Type = "session.started"
	SessionStopped   Type = "session.stopped"
	MetricsCollected Type = "metrics.collected"
	AlertTriggered   Type = "alert.triggered"
	AlertSuppressed  Type = "alert.suppressed"
	AlertResolved    Type = "alert.resolved"
	AlertEscalated   Type = "alert.escalated"
	DriftDetected    Type = "drift.detected"
	TaskFailed       Type = "task.failed"
	ConfigUpdated    Type = "config.updated"
)

// Event is one monitoring lifecycle event
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates a new event
func New(eventType Type, source string, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}
