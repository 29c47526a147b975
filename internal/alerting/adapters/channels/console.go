package channels

import (
	"context"

	"github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
)

// ConsoleChannel writes alerts to the structured log, one level per
// severity.
type ConsoleChannel struct {
	name   string
	filter severityFilter
	logger logger.Logger
}

// NewConsoleChannel creates a log-backed alert sink.
func NewConsoleChannel(name string, severities []string, log logger.Logger) *ConsoleChannel {
	return &ConsoleChannel{name: name, filter: newSeverityFilter(severities), logger: log}
}

func (c *ConsoleChannel) Name() string { return c.name }

func (c *ConsoleChannel) Accepts(severity model.Severity) bool {
	return c.filter.Accepts(severity)
}

// Send logs the alert. It never fails.
func (c *ConsoleChannel) Send(ctx context.Context, alert *model.Alert) error {
	fields := []interface{}{
		"alert_id", alert.ID,
		"category", alert.Category,
		"severity", alert.Severity,
		"source", alert.Source,
		"message", alert.Message,
	}
	switch alert.Severity {
	case model.SeverityCritical, model.SeverityError:
		c.logger.Error(alert.Title, fields...)
	case model.SeverityWarning:
		c.logger.Warn(alert.Title, fields...)
	default:
		c.logger.Info(alert.Title, fields...)
	}
	return nil
}
