// Package file persists monitoring history as JSON snapshots under a
// configured data directory: alert-history.json holds alerts newest first,
// metrics-history.json holds snapshots oldest to newest. Both files are
// fully rewritten on save and reloaded on process start.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	alertmodel "github.com/income-clarity/healthwatch/internal/alerting/domain/model"
	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
)

const (
	alertsFile  = "alert-history.json"
	metricsFile = "metrics-history.json"
)

// HistoryRepository stores history snapshots on the local filesystem.
type HistoryRepository struct {
	dataDir string
}

// NewHistoryRepository creates the data directory if needed.
func NewHistoryRepository(dataDir string) (*HistoryRepository, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &HistoryRepository{dataDir: dataDir}, nil
}

// SaveMetrics rewrites the metrics snapshot file.
func (r *HistoryRepository) SaveMetrics(ctx context.Context, metrics []model.MonitoringMetrics) error {
	return r.write(metricsFile, metrics)
}

// LoadMetrics reads the metrics snapshot file. A missing file yields an
// empty history, not an error.
func (r *HistoryRepository) LoadMetrics(ctx context.Context) ([]model.MonitoringMetrics, error) {
	var out []model.MonitoringMetrics
	if err := r.read(metricsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveAlerts rewrites the alert history file.
func (r *HistoryRepository) SaveAlerts(ctx context.Context, alerts []*alertmodel.Alert) error {
	return r.write(alertsFile, alerts)
}

// LoadAlerts reads the alert history file.
func (r *HistoryRepository) LoadAlerts(ctx context.Context) ([]*alertmodel.Alert, error) {
	var out []*alertmodel.Alert
	if err := r.read(alertsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// write marshals v and replaces the target file atomically via a rename,
// so a crash mid-write never corrupts the previous snapshot.
func (r *HistoryRepository) write(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(r.dataDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (r *HistoryRepository) read(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(r.dataDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}
