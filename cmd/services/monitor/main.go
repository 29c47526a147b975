package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/income-clarity/healthwatch/internal/alerting/adapters/channels"
	alertservice "github.com/income-clarity/healthwatch/internal/alerting/app/service"
	deployservice "github.com/income-clarity/healthwatch/internal/deployment/app/service"
	envservice "github.com/income-clarity/healthwatch/internal/environment/app/service"
	filerepo "github.com/income-clarity/healthwatch/internal/monitoring/adapters/repository/file"
	"github.com/income-clarity/healthwatch/internal/monitoring/app/service"
	"github.com/income-clarity/healthwatch/internal/monitoring/server"
	"github.com/income-clarity/healthwatch/internal/platform/cache"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
	"github.com/income-clarity/healthwatch/internal/platform/messaging/kafka"
	"github.com/income-clarity/healthwatch/internal/platform/metrics"
	"github.com/income-clarity/healthwatch/internal/platform/resilience"
	"github.com/income-clarity/healthwatch/internal/platform/telemetry"
	"github.com/income-clarity/healthwatch/internal/shared/events"
)

// Build identity, injected at link time.
var (
	version = "dev"
	commit  = ""
	branch  = ""
)

func main() {
	cfg, err := config.Load("monitor")
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if cfg.Version != "" && cfg.Version != "dev" {
		version = cfg.Version
	}

	log := logger.New(logger.Config{Level: cfg.Logger.Level, Format: cfg.Logger.Format})
	log.Info("Starting Monitor Service", "version", version, "port", cfg.HTTP.Port)

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}

	m := metrics.New("healthwatch")
	bus := events.NewBus(64)

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(cache.Config{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: "healthwatch",
		})
		if err != nil {
			log.Warn("Redis unavailable; fingerprint sharing disabled", "error", err)
			redisCache = nil
		}
	}

	fingerprint := envservice.NewFingerprintService(
		cfg.Environment,
		envservice.BuildInfo{Version: version, Commit: commit, Branch: branch},
		redisCache,
		log,
	)

	breakers := resilience.NewRegistry(resilience.Config{
		MaxFailures:     cfg.Monitoring.CircuitBreaker.MaxFailures,
		ResetTimeout:    cfg.Monitoring.CircuitBreaker.ResetTimeout,
		HalfOpenSuccess: cfg.Monitoring.CircuitBreaker.HalfOpenSuccess,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("Circuit breaker state change", "target", name, "from", from.String(), "to", to.String())
			open := 0.0
			if to == resilience.StateOpen {
				open = 1
			}
			m.BreakerState.WithLabelValues(name).Set(open)
		},
	})

	probes := cfg.Monitoring.Probes
	collector := service.NewCollector(service.CollectorDeps{
		System: service.NewSystemProbe(),
		API:    service.NewAPIProbe(probes.APIBaseURL, probes.APIEndpoints, probes.Timeout),
		Database: service.NewDatabaseProbe(
			probes.DatabaseURL,
			cfg.Monitoring.Thresholds.DBDegradedMs,
			cfg.Monitoring.Thresholds.DBUnhealthyMs,
			probes.Timeout,
			breakers.Get("database"),
		),
		Integration:  service.NewIntegrationProbe(probes.Integrations, probes.Timeout, breakers),
		UI:           service.NewHTTPUIProbe(probes.UIPageURL, probes.UITimeout),
		Session:      service.NewHTTPSessionProvider(probes.SessionURL, probes.Timeout),
		Progressive:  service.NewHTTPProgressiveProvider(probes.ProgressiveURL, probes.Timeout),
		Fingerprint:  fingerprint,
		ProbeTimeout: probes.Timeout,
		UITimeout:    probes.UITimeout,
		Logger:       log,
		Metrics:      m,
		Tracer:       tel.Tracer(),
	})

	repo, err := filerepo.NewHistoryRepository(cfg.Persistence.DataDir)
	if err != nil {
		log.Fatal("failed to initialize history persistence", "error", err)
	}

	hub := channels.NewHub(log)
	alertChannels, err := buildChannels(cfg, hub, log)
	if err != nil {
		log.Fatal("failed to initialize alert channels", "error", err)
	}

	alerts := alertservice.NewAlertManager(cfg.Alerting, alertChannels, repo, bus, log, m)

	verifier := deployservice.NewVerifier(cfg.Environment.Targets, fingerprint, probes.Timeout, log)

	monitor := service.NewMonitor(service.MonitorDeps{
		Config:      cfg.Monitoring,
		Collector:   collector,
		Alerts:      alerts,
		Fingerprint: fingerprint,
		Verifier:    verifier,
		History:     service.NewHistoryStore(cfg.Monitoring.HistoryLimit),
		Repo:        repo,
		Breakers:    breakers,
		Bus:         bus,
		Logger:      log,
		Metrics:     m,
		Targets:     cfg.Environment.Targets,
		FlushEvery:  cfg.Persistence.FlushInterval,
	})

	var publisher *kafka.EventPublisher
	if cfg.Kafka.Enabled {
		publisher, err = kafka.NewEventPublisher(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, log)
		if err != nil {
			log.Warn("Kafka unavailable; event streaming disabled", "error", err)
		} else {
			sub, cancel := bus.Subscribe()
			defer cancel()
			go publisher.Run(sub)
		}
	}

	srv, err := server.New(
		server.WithConfig(cfg),
		server.WithLogger(log),
		server.WithMonitor(monitor),
		server.WithFingerprint(fingerprint),
		server.WithHub(hub),
		server.WithMetrics(m),
	)
	if err != nil {
		log.Fatal("failed to create server", "error", err)
	}

	if err := monitor.Start(context.Background()); err != nil {
		log.Fatal("failed to start monitoring", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server error", "error", err)
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := monitor.Stop(ctx); err != nil {
		log.Error("monitor stop error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	hub.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error("kafka close error", "error", err)
		}
	}
	bus.Close()
	if redisCache != nil {
		redisCache.Close()
	}
	if err := tel.Shutdown(ctx); err != nil {
		log.Error("telemetry shutdown error", "error", err)
	}

	log.Info("Monitor Service stopped gracefully")
}

// buildChannels turns channel configuration into live sinks. Unknown
// channel types are rejected at startup rather than silently ignored.
func buildChannels(cfg *config.Config, hub *channels.Hub, log logger.Logger) ([]channels.Channel, error) {
	out := make([]channels.Channel, 0, len(cfg.Alerting.Channels))
	for _, ch := range cfg.Alerting.Channels {
		switch ch.Type {
		case "console":
			out = append(out, channels.NewConsoleChannel(ch.Name, ch.Severities, log))
		case "file":
			fc, err := channels.NewFileChannel(ch.Name, ch.Path, ch.Severities)
			if err != nil {
				return nil, err
			}
			out = append(out, fc)
		case "webhook":
			out = append(out, channels.NewWebhookChannel(ch.Name, ch.URL, ch.Severities))
		case "websocket":
			out = append(out, channels.NewWebSocketChannel(ch.Name, ch.Severities, hub))
		case "kafka":
			kc, err := channels.NewKafkaChannel(ch.Name, ch.Topic, ch.Severities, cfg.Kafka.Brokers)
			if err != nil {
				return nil, err
			}
			out = append(out, kc)
		default:
			return nil, fmt.Errorf("unknown alert channel type %q", ch.Type)
		}
	}
	return out, nil
}
