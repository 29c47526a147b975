package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
)

// UIProbe measures user-facing page performance. Implementations may drive
// a real browser; the default approximates core web vitals from server-side
// timings.
type UIProbe interface {
	Collect(ctx context.Context) (model.UIMetrics, error)
}

// HTTPUIProbe fetches the dashboard page over plain HTTP and derives vitals
// proxies from the fetch timing and body size. Without a browser there is
// no real layout shift, so CLS is reported as zero.
type HTTPUIProbe struct {
	pageURL string
	client  *http.Client
}

// NewHTTPUIProbe creates the default page performance probe.
func NewHTTPUIProbe(pageURL string, timeout time.Duration) *HTTPUIProbe {
	return &HTTPUIProbe{pageURL: pageURL, client: &http.Client{Timeout: timeout}}
}

// Collect fetches the page and estimates paint timings from the transfer.
func (p *HTTPUIProbe) Collect(ctx context.Context) (model.UIMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.pageURL, nil)
	if err != nil {
		return model.UIMetrics{}, fmt.Errorf("ui probe: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return model.UIMetrics{}, fmt.Errorf("ui probe: %w", err)
	}
	defer resp.Body.Close()

	firstByteMs := float64(time.Since(start).Microseconds()) / 1000
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return model.UIMetrics{}, fmt.Errorf("ui probe: read body: %w", err)
	}
	totalMs := float64(time.Since(start).Microseconds()) / 1000

	if resp.StatusCode >= 400 {
		return model.UIMetrics{}, fmt.Errorf("ui probe: page returned %d", resp.StatusCode)
	}

	out := model.UIMetrics{
		LoadTimeMs:               totalMs,
		FirstContentfulPaintMs:   firstByteMs,
		LargestContentfulPaintMs: totalMs,
		TimeToInteractiveMs:      totalMs * 1.2,
		CumulativeLayoutShift:    0,
		AccessibilityScore:       estimateAccessibility(n),
	}
	out.PerformanceScore = ComputePerformanceScore(out)
	return out, nil
}

// estimateAccessibility is a crude page-weight heuristic: very heavy pages
// tend to ship more unlabeled dynamic content.
func estimateAccessibility(bodyBytes int64) float64 {
	switch {
	case bodyBytes > 5<<20:
		return 70
	case bodyBytes > 1<<20:
		return 85
	default:
		return 95
	}
}

// ComputePerformanceScore folds vitals into a 0-100 score. Each vital
// deducts from a perfect score in proportion to how far it exceeds its
// good-experience budget.
func ComputePerformanceScore(m model.UIMetrics) float64 {
	score := 100.0

	score -= overBudget(m.LoadTimeMs, 2000, 40)
	score -= overBudget(m.FirstContentfulPaintMs, 1000, 20)
	score -= overBudget(m.LargestContentfulPaintMs, 2500, 20)
	score -= overBudget(m.TimeToInteractiveMs, 3500, 10)
	score -= overBudget(m.CumulativeLayoutShift, 0.1, 10)

	if score < 0 {
		return 0
	}
	return score
}

// overBudget returns a deduction scaled by how far value exceeds budget,
// capped at max.
func overBudget(value, budget, max float64) float64 {
	if value <= budget {
		return 0
	}
	penalty := (value - budget) / budget * max
	if penalty > max {
		return max
	}
	return penalty
}
