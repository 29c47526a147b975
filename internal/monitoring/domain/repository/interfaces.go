package repository

import (
	"context"

	alertmodel "github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
)

// HistoryRepository persists the bounded metric and alert histories so the
// monitor is fully reloadable on start. Implementations rewrite the whole
// snapshot on save rather than appending.
type HistoryRepository interface {
	SaveMetrics(ctx context.Context, metrics []model.MonitoringMetrics) error
	LoadMetrics(ctx context.Context) ([]model.MonitoringMetrics, error)
	SaveAlerts(ctx context.Context, alerts []*alertmodel.Alert) error
	LoadAlerts(ctx context.Context) ([]*alertmodel.Alert, error)
}
