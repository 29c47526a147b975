package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/income-clarity/healthwatch/internal/alerting/domain/model"
)

// FileChannel appends alerts to a JSON-lines file, one alert per line.
type FileChannel struct {
	name   string
	path   string
	filter severityFilter

	mu sync.Mutex
}

// NewFileChannel creates the file sink, creating parent directories as
// needed.
func NewFileChannel(name, path string, severities []string) (*FileChannel, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create alert log dir: %w", err)
	}
	return &FileChannel{name: name, path: path, filter: newSeverityFilter(severities)}, nil
}

func (c *FileChannel) Name() string { return c.name }

func (c *FileChannel) Accepts(severity model.Severity) bool {
	return c.filter.Accepts(severity)
}

// Send appends one JSON line. The file is opened per send so log rotation
// by an external tool is safe.
func (c *FileChannel) Send(ctx context.Context, alert *model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}
