package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/income-clarity/healthwatch/internal/deployment/domain/model"
	envservice "github.com/income-clarity/healthwatch/internal/environment/app/service"
	envmodel "github.com/income-clarity/healthwatch/internal/environment/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
)

// Verifier runs the deployment verification battery against a named
// target: connectivity, health, version match, config completeness and
// basic functionality. Each check is independently timed and graded; the
// run aggregates into a success rate and overall status.
type Verifier struct {
	targets     []config.TargetConfig
	fingerprint *envservice.FingerprintService
	client      *http.Client
	logger      logger.Logger
}

// NewVerifier creates the deployment verifier.
func NewVerifier(targets []config.TargetConfig, fp *envservice.FingerprintService, timeout time.Duration, log logger.Logger) *Verifier {
	return &Verifier{
		targets:     targets,
		fingerprint: fp,
		client:      &http.Client{Timeout: timeout},
		logger:      log,
	}
}

// Verify runs the full check battery against the named target. The run is
// failed outright when a critical connectivity or health check fails;
// otherwise it is success at 90% or more checks passed, partial below.
func (v *Verifier) Verify(ctx context.Context, targetName string) (*model.VerificationResult, error) {
	target, ok := v.target(targetName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", envservice.ErrUnknownTarget, targetName)
	}

	started := time.Now()
	result := &model.VerificationResult{Target: targetName, StartedAt: started.UTC()}

	connectivity := v.timed("connectivity", true, func() (model.CheckStatus, string) {
		return v.checkConnectivity(ctx, target)
	})
	result.Checks = append(result.Checks, connectivity)

	var fp *envmodel.EnvironmentFingerprint
	health := v.timed("health", true, func() (model.CheckStatus, string) {
		if connectivity.Status == model.CheckFailed {
			return model.CheckSkipped, "connectivity failed"
		}
		var status model.CheckStatus
		var msg string
		fp, status, msg = v.checkHealth(ctx, targetName)
		return status, msg
	})
	result.Checks = append(result.Checks, health)

	result.Checks = append(result.Checks, v.timed("version-match", false, func() (model.CheckStatus, string) {
		if fp == nil {
			return model.CheckSkipped, "no target fingerprint"
		}
		return v.checkVersionMatch(ctx, fp)
	}))

	result.Checks = append(result.Checks, v.timed("config-completeness", false, func() (model.CheckStatus, string) {
		if fp == nil {
			return model.CheckSkipped, "no target fingerprint"
		}
		return checkConfigCompleteness(fp)
	}))

	result.Checks = append(result.Checks, v.timed("basic-functionality", false, func() (model.CheckStatus, string) {
		if connectivity.Status == model.CheckFailed {
			return model.CheckSkipped, "connectivity failed"
		}
		return v.checkFunctionality(ctx, target)
	}))

	result.DurationMs = float64(time.Since(started).Microseconds()) / 1000
	aggregate(result)

	v.logger.Info("Deployment verification finished",
		"target", targetName,
		"status", result.OverallStatus,
		"success_rate", result.SuccessRate)
	return result, nil
}

// timed runs one check and wraps its grade with timing.
func (v *Verifier) timed(name string, critical bool, fn func() (model.CheckStatus, string)) model.CheckResult {
	start := time.Now()
	status, msg := fn()
	return model.CheckResult{
		Name:       name,
		Status:     status,
		Critical:   critical,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
		Message:    msg,
	}
}

func (v *Verifier) checkConnectivity(ctx context.Context, target config.TargetConfig) (model.CheckStatus, string) {
	url := target.BaseURL
	if url == "" {
		url = target.HealthURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.CheckFailed, err.Error()
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return model.CheckFailed, err.Error()
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return model.CheckFailed, fmt.Sprintf("target returned %d", resp.StatusCode)
	}
	return model.CheckPassed, ""
}

func (v *Verifier) checkHealth(ctx context.Context, targetName string) (*envmodel.EnvironmentFingerprint, model.CheckStatus, string) {
	fp, err := v.fingerprint.Target(ctx, targetName)
	if err != nil {
		return nil, model.CheckFailed, err.Error()
	}
	if !fp.IsLive {
		return fp, model.CheckFailed, "target reports unhealthy"
	}
	return fp, model.CheckPassed, ""
}

func (v *Verifier) checkVersionMatch(ctx context.Context, target *envmodel.EnvironmentFingerprint) (model.CheckStatus, string) {
	current, err := v.fingerprint.Current(ctx)
	if err != nil {
		return model.CheckSkipped, err.Error()
	}
	if current.Version != target.Version {
		return model.CheckWarning, fmt.Sprintf("version %s deployed, expected %s", target.Version, current.Version)
	}
	if current.Commit != "" && target.Commit != "" && current.Commit != target.Commit {
		return model.CheckWarning, "commit mismatch at matching version"
	}
	return model.CheckPassed, ""
}

// checkConfigCompleteness verifies the target fingerprint carries the
// fields a production deployment must have.
func checkConfigCompleteness(fp *envmodel.EnvironmentFingerprint) (model.CheckStatus, string) {
	var missing []string
	if fp.Version == "" {
		missing = append(missing, "version")
	}
	if fp.Configuration.StorageBackend == "" {
		missing = append(missing, "storageBackend")
	}
	if fp.Type == envmodel.EnvironmentProduction {
		if !fp.Configuration.TLSEnabled {
			missing = append(missing, "tlsEnabled")
		}
		if !fp.Security.SecretsConfigured {
			missing = append(missing, "secretsConfigured")
		}
	}
	if len(missing) > 0 {
		return model.CheckFailed, fmt.Sprintf("incomplete configuration: %v", missing)
	}
	return model.CheckPassed, ""
}

// checkFunctionality exercises one representative API call beyond the
// health endpoint.
func (v *Verifier) checkFunctionality(ctx context.Context, target config.TargetConfig) (model.CheckStatus, string) {
	if target.BaseURL == "" {
		return model.CheckSkipped, "no base url configured"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.BaseURL+"/api/health", nil)
	if err != nil {
		return model.CheckFailed, err.Error()
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return model.CheckFailed, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return model.CheckFailed, fmt.Sprintf("api returned %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.CheckWarning, "health body is not JSON"
	}
	if body.Status == "unhealthy" {
		return model.CheckFailed, "api reports unhealthy"
	}
	return model.CheckPassed, ""
}

// aggregate computes the success rate over non-skipped checks and grades
// the run.
func aggregate(result *model.VerificationResult) {
	passed, considered := 0, 0
	criticalFailed := false
	for _, c := range result.Checks {
		if c.Status == model.CheckSkipped {
			continue
		}
		considered++
		switch c.Status {
		case model.CheckPassed, model.CheckWarning:
			passed++
		case model.CheckFailed:
			if c.Critical {
				criticalFailed = true
			}
		}
	}

	if considered > 0 {
		result.SuccessRate = float64(passed) / float64(considered)
	}

	switch {
	case criticalFailed:
		result.OverallStatus = model.VerificationFailed
	case result.SuccessRate >= 0.90:
		result.OverallStatus = model.VerificationSuccess
	default:
		result.OverallStatus = model.VerificationPartial
	}
}

func (v *Verifier) target(name string) (config.TargetConfig, bool) {
	for _, t := range v.targets {
		if t.Name == name {
			return t, true
		}
	}
	return config.TargetConfig{}, false
}
