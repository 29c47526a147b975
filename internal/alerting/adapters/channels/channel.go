// Package channels holds the alert delivery sinks. Each channel filters by
// severity and delivers one alert at a time; a failing channel never blocks
// the others.
package channels

import (
	"context"

	"github.com/income-clarity/healthwatch/internal/alerting/domain/model"
)

// Channel is one alert sink.
type Channel interface {
	Name() string
	Accepts(severity model.Severity) bool
	Send(ctx context.Context, alert *model.Alert) error
}

// severityFilter implements the shared severity allow-list.
type severityFilter map[model.Severity]bool

func newSeverityFilter(severities []string) severityFilter {
	f := make(severityFilter, len(severities))
	for _, s := range severities {
		f[model.Severity(s)] = true
	}
	return f
}

// Accepts allows everything when no filter was configured.
func (f severityFilter) Accepts(severity model.Severity) bool {
	if len(f) == 0 {
		return true
	}
	return f[severity]
}
