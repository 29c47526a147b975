package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/income-clarity/healthwatch/internal/environment/domain/model"
	"github.com/income-clarity/healthwatch/internal/platform/cache"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
)

// ErrUnknownTarget is returned when a target environment is not configured
var ErrUnknownTarget = errors.New("unknown target environment")

// BuildInfo identifies the running build
type BuildInfo struct {
	Version string
	Commit  string
	Branch  string
}

type cacheEntry struct {
	fp        *model.EnvironmentFingerprint
	expiresAt time.Time
}

// FingerprintService produces identity+configuration snapshots for the
// current process and for named remote targets, with TTL-bounded caching
// so fingerprints are regenerated rather than served stale.
type FingerprintService struct {
	cfg    config.EnvironmentConfig
	build  BuildInfo
	client *http.Client
	redis  *cache.RedisCache
	logger logger.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry

	now func() time.Time
}

// NewFingerprintService creates a fingerprint provider. redisCache may be
// nil; it is only a shared read-through layer for remote fingerprints.
func NewFingerprintService(cfg config.EnvironmentConfig, build BuildInfo, redisCache *cache.RedisCache, log logger.Logger) *FingerprintService {
	return &FingerprintService{
		cfg:     cfg,
		build:   build,
		client:  &http.Client{Timeout: 10 * time.Second},
		redis:   redisCache,
		logger:  log,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Classify maps hostname/domain plus an explicit override to an
// environment type. Overrides win; otherwise classification is by name
// matching, never by a NODE-env style variable alone.
func Classify(hostname, domain, override string) model.EnvironmentType {
	switch model.EnvironmentType(strings.ToLower(override)) {
	case model.EnvironmentLocal, model.EnvironmentStaging,
		model.EnvironmentProduction, model.EnvironmentDevelopment:
		return model.EnvironmentType(strings.ToLower(override))
	}

	host := strings.ToLower(hostname)
	dom := strings.ToLower(domain)

	switch {
	case host == "localhost" || strings.HasPrefix(host, "127.") || strings.HasSuffix(host, ".local"):
		return model.EnvironmentLocal
	case strings.Contains(host, "staging") || strings.Contains(dom, "staging") ||
		strings.Contains(host, "stage") || strings.Contains(dom, "stage"):
		return model.EnvironmentStaging
	case strings.Contains(host, "prod") || strings.Contains(dom, "prod"):
		return model.EnvironmentProduction
	default:
		return model.EnvironmentDevelopment
	}
}

// Current returns the fingerprint of the running process, regenerating it
// when the local TTL has expired.
func (s *FingerprintService) Current(ctx context.Context) (*model.EnvironmentFingerprint, error) {
	if fp := s.cached("current"); fp != nil {
		return fp, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	envType := Classify(hostname, s.cfg.Domain, s.cfg.TypeOverride)
	name := s.cfg.NameOverride
	if name == "" {
		name = string(envType)
	}

	fp := &model.EnvironmentFingerprint{
		ID:       model.NewFingerprintID(),
		Name:     name,
		Type:     envType,
		Hostname: hostname,
		Domain:   s.cfg.Domain,
		Port:     s.cfg.Port,
		Version:  s.build.Version,
		Commit:   s.build.Commit,
		Branch:   s.build.Branch,
		Configuration: model.ConfigurationProfile{
			FeatureToggles: map[string]bool{},
			StorageBackend: "local",
			TLSEnabled:     envType == model.EnvironmentProduction || envType == model.EnvironmentStaging,
		},
		Security: model.SecurityProfile{
			SecretsConfigured: os.Getenv("JWT_SECRET") != "",
			AuthRequired:      envType != model.EnvironmentLocal,
			RateLimiting:      envType == model.EnvironmentProduction,
		},
		IsLive:       envType == model.EnvironmentProduction,
		Capabilities: []string{"monitoring", "alerting"},
		GeneratedAt:  s.now(),
	}

	s.store("current", fp, s.cfg.LocalTTL)
	return fp, nil
}

// Target returns the fingerprint of a configured remote environment,
// fetched from its health endpoint and cached for the remote TTL.
func (s *FingerprintService) Target(ctx context.Context, name string) (*model.EnvironmentFingerprint, error) {
	if fp := s.cached(name); fp != nil {
		return fp, nil
	}

	if fp := s.redisLookup(ctx, name); fp != nil {
		s.store(name, fp, s.remainingTTL(fp))
		return fp, nil
	}

	target, ok := s.target(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}

	fp, err := s.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	s.store(name, fp, s.cfg.RemoteTTL)
	if s.redis != nil {
		if err := s.redis.Set(ctx, "fingerprint:"+name, fp, s.cfg.RemoteTTL); err != nil {
			s.logger.Warn("Failed to share fingerprint via redis", "target", name, "error", err)
		}
	}
	return fp, nil
}

// Compare fingerprints the current process and the named target and
// reports field-level differences with an aggregated risk level.
func (s *FingerprintService) Compare(ctx context.Context, targetName string) (*model.Comparison, error) {
	source, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	target, err := s.Target(ctx, targetName)
	if err != nil {
		return nil, err
	}
	return CompareFingerprints(source, target, s.now()), nil
}

// CompareFingerprints diffs two fingerprints field by field. Version and
// commit mismatches and core configuration fields are high impact; feature
// toggle mismatches are medium.
func CompareFingerprints(source, target *model.EnvironmentFingerprint, at time.Time) *model.Comparison {
	var diffs []model.FieldDifference

	add := func(field, src, tgt string, impact model.FieldImpact) {
		if src != tgt {
			diffs = append(diffs, model.FieldDifference{Field: field, Source: src, Target: tgt, Impact: impact})
		}
	}

	add("version", source.Version, target.Version, model.FieldImpactHigh)
	add("commit", source.Commit, target.Commit, model.FieldImpactHigh)
	add("branch", source.Branch, target.Branch, model.FieldImpactLow)
	add("configuration.storageBackend", source.Configuration.StorageBackend, target.Configuration.StorageBackend, model.FieldImpactHigh)
	add("configuration.tlsEnabled", strconv.FormatBool(source.Configuration.TLSEnabled), strconv.FormatBool(target.Configuration.TLSEnabled), model.FieldImpactHigh)
	add("security.authRequired", strconv.FormatBool(source.Security.AuthRequired), strconv.FormatBool(target.Security.AuthRequired), model.FieldImpactHigh)
	add("security.rateLimiting", strconv.FormatBool(source.Security.RateLimiting), strconv.FormatBool(target.Security.RateLimiting), model.FieldImpactMedium)

	for name, enabled := range source.Configuration.FeatureToggles {
		if other, ok := target.Configuration.FeatureToggles[name]; !ok || other != enabled {
			diffs = append(diffs, model.FieldDifference{
				Field:  "feature." + name,
				Source: strconv.FormatBool(enabled),
				Target: strconv.FormatBool(other),
				Impact: model.FieldImpactMedium,
			})
		}
	}

	status := model.SyncSynchronized
	if len(diffs) > 0 {
		status = model.SyncDrift
		if source.Version != target.Version {
			switch compareVersions(source.Version, target.Version) {
			case -1:
				status = model.SyncOutdated
			case 1:
				status = model.SyncAhead
			}
		}
	}

	return &model.Comparison{
		Source:      source.Name,
		Target:      target.Name,
		SyncStatus:  status,
		RiskLevel:   model.AggregateRisk(diffs),
		Differences: diffs,
		ComparedAt:  at,
	}
}

// compareVersions compares dotted numeric versions; returns -1, 0 or 1.
// Non-numeric segments fall back to string comparison.
func compareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var sa, sb string
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}
		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		if errA != nil || errB != nil {
			if sa != sb {
				if sa < sb {
					return -1
				}
				return 1
			}
			continue
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (s *FingerprintService) target(name string) (config.TargetConfig, bool) {
	for _, t := range s.cfg.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return config.TargetConfig{}, false
}

// healthPayload is the health endpoint response shape remote environments
// expose.
type healthPayload struct {
	Status      string          `json:"status"`
	Environment string          `json:"environment"`
	Version     string          `json:"version"`
	Commit      string          `json:"commit"`
	Branch      string          `json:"branch"`
	Features    map[string]bool `json:"features"`
	Storage     string          `json:"storage"`
	TLS         bool            `json:"tls"`
	Security    struct {
		SecretsConfigured bool `json:"secretsConfigured"`
		AuthRequired      bool `json:"authRequired"`
		RateLimiting      bool `json:"rateLimiting"`
	} `json:"security"`
	Capabilities []string `json:"capabilities"`
}

func (s *FingerprintService) fetch(ctx context.Context, target config.TargetConfig) (*model.EnvironmentFingerprint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.HealthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fingerprint request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch fingerprint for %s: %w", target.Name, err)
	}
	defer resp.Body.Close()

	var payload healthPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode fingerprint for %s: %w", target.Name, err)
	}

	envType := Classify(target.Name, target.BaseURL, target.Type)
	if payload.Environment != "" {
		envType = Classify(payload.Environment, target.BaseURL, payload.Environment)
	}

	features := payload.Features
	if features == nil {
		features = map[string]bool{}
	}

	return &model.EnvironmentFingerprint{
		ID:       model.NewFingerprintID(),
		Name:     target.Name,
		Type:     envType,
		Hostname: target.BaseURL,
		Domain:   target.BaseURL,
		Version:  payload.Version,
		Commit:   payload.Commit,
		Branch:   payload.Branch,
		Configuration: model.ConfigurationProfile{
			FeatureToggles: features,
			StorageBackend: payload.Storage,
			TLSEnabled:     payload.TLS || strings.HasPrefix(target.HealthURL, "https://"),
		},
		Security: model.SecurityProfile{
			SecretsConfigured: payload.Security.SecretsConfigured,
			AuthRequired:      payload.Security.AuthRequired,
			RateLimiting:      payload.Security.RateLimiting,
		},
		IsLive:       resp.StatusCode < 500 && payload.Status != "unhealthy",
		Capabilities: payload.Capabilities,
		GeneratedAt:  s.now(),
	}, nil
}

func (s *FingerprintService) cached(key string) *model.EnvironmentFingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return entry.fp
}

func (s *FingerprintService) store(key string, fp *model.EnvironmentFingerprint, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cacheEntry{fp: fp, expiresAt: s.now().Add(ttl)}
}

func (s *FingerprintService) redisLookup(ctx context.Context, name string) *model.EnvironmentFingerprint {
	if s.redis == nil {
		return nil
	}
	var fp model.EnvironmentFingerprint
	if err := s.redis.Get(ctx, "fingerprint:"+name, &fp); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Debug("Redis fingerprint lookup failed", "target", name, "error", err)
		}
		return nil
	}
	return &fp
}

// remainingTTL bounds the local cache lifetime of a redis-sourced
// fingerprint so it still expires at the original TTL boundary.
func (s *FingerprintService) remainingTTL(fp *model.EnvironmentFingerprint) time.Duration {
	remaining := s.cfg.RemoteTTL - s.now().Sub(fp.GeneratedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
