package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/income-clarity/healthwatch/internal/alerting/domain/model"
)

// WebhookChannel POSTs alerts as JSON to an external endpoint.
type WebhookChannel struct {
	name   string
	url    string
	filter severityFilter
	client *http.Client
}

// NewWebhookChannel creates an HTTP webhook sink.
func NewWebhookChannel(name, url string, severities []string) *WebhookChannel {
	return &WebhookChannel{
		name:   name,
		url:    url,
		filter: newSeverityFilter(severities),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *WebhookChannel) Name() string { return c.name }

func (c *WebhookChannel) Accepts(severity model.Severity) bool {
	return c.filter.Accepts(severity)
}

// Send delivers one alert. Any non-2xx response is a delivery failure.
func (c *WebhookChannel) Send(ctx context.Context, alert *model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
