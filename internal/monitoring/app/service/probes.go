package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/resilience"
)

// SystemProbe reads host resources. CPU usage is computed from idle/total
// tick deltas between successive calls, so the first reading after start
// reports zero.
type SystemProbe struct{}

// NewSystemProbe creates a host resource probe.
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{}
}

// Collect reads uptime, memory, CPU and disk usage.
func (p *SystemProbe) Collect(ctx context.Context) (model.SystemMetrics, error) {
	var out model.SystemMetrics

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return out, fmt.Errorf("read uptime: %w", err)
	}
	out.UptimeSeconds = float64(uptime)

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return out, fmt.Errorf("read memory: %w", err)
	}
	out.MemoryPercent = vm.UsedPercent
	out.MemoryUsedMB = float64(vm.Used) / (1024 * 1024)
	out.MemoryTotalMB = float64(vm.Total) / (1024 * 1024)

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return out, fmt.Errorf("read cpu: %w", err)
	}
	if len(cpuPercents) > 0 {
		out.CPUPercent = cpuPercents[0]
	}

	usage, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return out, fmt.Errorf("read disk: %w", err)
	}
	out.DiskPercent = usage.UsedPercent

	return out, nil
}

// APIProbe exercises a fixed list of representative endpoints and records
// per-endpoint latency. A status below 500 counts as responding even when
// it is a 401 or 404.
type APIProbe struct {
	baseURL   string
	endpoints []config.EndpointConfig
	client    *http.Client
}

// NewAPIProbe creates an endpoint latency probe.
func NewAPIProbe(baseURL string, endpoints []config.EndpointConfig, timeout time.Duration) *APIProbe {
	return &APIProbe{
		baseURL:   baseURL,
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
	}
}

// Collect probes every configured endpoint concurrently and aggregates
// latency and error rate. Individual endpoint failures never fail the
// probe as a whole.
func (p *APIProbe) Collect(ctx context.Context) (model.APIMetrics, error) {
	results := make([]model.EndpointMetric, len(p.endpoints))

	var wg sync.WaitGroup
	for i, ep := range p.endpoints {
		wg.Add(1)
		go func(i int, ep config.EndpointConfig) {
			defer wg.Done()
			results[i] = p.probeEndpoint(ctx, ep)
		}(i, ep)
	}
	wg.Wait()

	out := model.APIMetrics{Endpoints: results, RequestCount: len(results)}
	var totalLatency float64
	for _, r := range results {
		totalLatency += r.LatencyMs
		if !r.Responding {
			out.ErrorCount++
		}
	}
	if len(results) > 0 {
		out.AverageResponseTimeMs = totalLatency / float64(len(results))
		out.ErrorRate = float64(out.ErrorCount) / float64(len(results))
	}
	return out, nil
}

func (p *APIProbe) probeEndpoint(ctx context.Context, ep config.EndpointConfig) model.EndpointMetric {
	out := model.EndpointMetric{Method: ep.Method, Path: ep.Path}

	req, err := http.NewRequestWithContext(ctx, ep.Method, p.baseURL+ep.Path, nil)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	out.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	out.Responding = resp.StatusCode < 500
	return out
}

// dbHealthPayload is the optional body of the database health endpoint.
type dbHealthPayload struct {
	PoolOccupancy float64 `json:"poolOccupancy"`
	Transactions  struct {
		OK        int64 `json:"ok"`
		Failed    int64 `json:"failed"`
		Rollbacks int64 `json:"rollbacks"`
	} `json:"transactions"`
}

// DatabaseProbe measures the database health endpoint round trip and
// classifies it against configured thresholds. It never opens a raw
// database connection; the database is a black box behind HTTP.
type DatabaseProbe struct {
	url         string
	degradedMs  float64
	unhealthyMs float64
	client      *http.Client
	breaker     *resilience.CircuitBreaker
}

// NewDatabaseProbe creates a black-box database probe guarded by a
// circuit breaker.
func NewDatabaseProbe(url string, degradedMs, unhealthyMs float64, timeout time.Duration, breaker *resilience.CircuitBreaker) *DatabaseProbe {
	return &DatabaseProbe{
		url:         url,
		degradedMs:  degradedMs,
		unhealthyMs: unhealthyMs,
		client:      &http.Client{Timeout: timeout},
		breaker:     breaker,
	}
}

// Collect measures the round trip. An open breaker or request failure
// yields an unhealthy reading rather than an error for the cycle.
func (p *DatabaseProbe) Collect(ctx context.Context) (model.DatabaseMetrics, error) {
	out := model.DatabaseMetrics{Health: model.DatabaseUnhealthy}

	var payload dbHealthPayload
	var rttMs float64

	err := p.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
		if err != nil {
			return err
		}
		start := time.Now()
		resp, err := p.client.Do(req)
		rttMs = float64(time.Since(start).Microseconds()) / 1000
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("database health endpoint returned %d", resp.StatusCode)
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("database probe: %w", err)
	}

	out.Health = model.ClassifyDatabase(rttMs, p.degradedMs, p.unhealthyMs)
	out.QueryTimeMs = rttMs
	out.PoolOccupancy = payload.PoolOccupancy
	out.TransactionsOK = payload.Transactions.OK
	out.TransactionsErr = payload.Transactions.Failed
	out.Rollbacks = payload.Transactions.Rollbacks
	if total := payload.Transactions.OK + payload.Transactions.Failed; total > 0 {
		out.FailureRate = float64(payload.Transactions.Failed) / float64(total)
	}
	return out, nil
}

// IntegrationProbe checks reachability of external services, one circuit
// breaker per target. Error rates are tracked over a sliding window of
// recent attempts per target.
type IntegrationProbe struct {
	targets  []config.IntegrationTarget
	client   *http.Client
	breakers *resilience.Registry

	mu      sync.Mutex
	history map[string][]bool // recent attempt outcomes, true = ok
}

const integrationWindow = 20

// NewIntegrationProbe creates the external integration probe.
func NewIntegrationProbe(targets []config.IntegrationTarget, timeout time.Duration, breakers *resilience.Registry) *IntegrationProbe {
	return &IntegrationProbe{
		targets:  targets,
		client:   &http.Client{Timeout: timeout},
		breakers: breakers,
		history:  make(map[string][]bool),
	}
}

// Collect probes every configured integration. An unreachable service
// degrades that service's status, never the probe as a whole.
func (p *IntegrationProbe) Collect(ctx context.Context) (model.IntegrationMetrics, error) {
	out := model.IntegrationMetrics{Services: make([]model.IntegrationStatus, len(p.targets))}

	var wg sync.WaitGroup
	for i, target := range p.targets {
		wg.Add(1)
		go func(i int, target config.IntegrationTarget) {
			defer wg.Done()
			out.Services[i] = p.probeTarget(ctx, target)
		}(i, target)
	}
	wg.Wait()

	return out, nil
}

func (p *IntegrationProbe) probeTarget(ctx context.Context, target config.IntegrationTarget) model.IntegrationStatus {
	status := model.IntegrationStatus{Name: target.Name, Status: model.IntegrationHealthy}

	var latencyMs float64
	err := p.breakers.Get(target.Name).Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
		if err != nil {
			return err
		}
		start := time.Now()
		resp, err := p.client.Do(req)
		latencyMs = float64(time.Since(start).Microseconds()) / 1000
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s returned %d", target.Name, resp.StatusCode)
		}
		return nil
	})

	status.LatencyMs = latencyMs
	status.ErrorRate = p.record(target.Name, err == nil)

	switch {
	case err != nil:
		status.Status = model.IntegrationUnhealthy
		status.Error = err.Error()
	case status.ErrorRate > 0.25:
		status.Status = model.IntegrationDegraded
	}
	return status
}

// record appends an attempt outcome and returns the windowed error rate.
func (p *IntegrationProbe) record(name string, ok bool) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	window := append(p.history[name], ok)
	if len(window) > integrationWindow {
		window = window[len(window)-integrationWindow:]
	}
	p.history[name] = window

	failures := 0
	for _, v := range window {
		if !v {
			failures++
		}
	}
	return float64(failures) / float64(len(window))
}

// sessionPayload is the session health endpoint body.
type sessionPayload struct {
	Active       int `json:"active"`
	Invalid      int `json:"invalid"`
	AuthFailures int `json:"authFailures"`
}

// SessionProvider reports session validity counts.
type SessionProvider interface {
	Check(ctx context.Context) (model.SessionMetrics, error)
}

// HTTPSessionProvider reads the session health endpoint.
type HTTPSessionProvider struct {
	url    string
	client *http.Client
}

// NewHTTPSessionProvider creates the default session provider.
func NewHTTPSessionProvider(url string, timeout time.Duration) *HTTPSessionProvider {
	return &HTTPSessionProvider{url: url, client: &http.Client{Timeout: timeout}}
}

// Check fetches session counters.
func (p *HTTPSessionProvider) Check(ctx context.Context) (model.SessionMetrics, error) {
	var payload sessionPayload
	if err := getJSON(ctx, p.client, p.url, &payload); err != nil {
		return model.SessionMetrics{}, fmt.Errorf("session probe: %w", err)
	}
	return model.SessionMetrics{
		ActiveSessions:  payload.Active,
		InvalidSessions: payload.Invalid,
		AuthFailures:    payload.AuthFailures,
	}, nil
}

// progressivePayload is the feature rollout endpoint body.
type progressivePayload struct {
	Levels []struct {
		Level     string `json:"level"`
		Successes int    `json:"successes"`
		Failures  int    `json:"failures"`
	} `json:"levels"`
}

// ProgressiveProvider reports per-feature-level rollout counters.
type ProgressiveProvider interface {
	Check(ctx context.Context) (model.ProgressiveMetrics, error)
}

// HTTPProgressiveProvider reads the feature rollout endpoint.
type HTTPProgressiveProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProgressiveProvider creates the default rollout provider.
func NewHTTPProgressiveProvider(url string, timeout time.Duration) *HTTPProgressiveProvider {
	return &HTTPProgressiveProvider{url: url, client: &http.Client{Timeout: timeout}}
}

// Check fetches rollout counters and derives the overall success rate.
func (p *HTTPProgressiveProvider) Check(ctx context.Context) (model.ProgressiveMetrics, error) {
	var payload progressivePayload
	if err := getJSON(ctx, p.client, p.url, &payload); err != nil {
		return model.ProgressiveMetrics{}, fmt.Errorf("progressive probe: %w", err)
	}

	out := model.ProgressiveMetrics{}
	var successes, total int
	for _, l := range payload.Levels {
		out.Levels = append(out.Levels, model.FeatureLevelMetric{
			Level:     l.Level,
			Successes: l.Successes,
			Failures:  l.Failures,
		})
		successes += l.Successes
		total += l.Successes + l.Failures
	}
	if total > 0 {
		out.SuccessRate = float64(successes) / float64(total)
	} else {
		out.SuccessRate = 1
	}
	return out, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
