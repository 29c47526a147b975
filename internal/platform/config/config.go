package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for the monitor service
type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Environment EnvironmentConfig `mapstructure:"environment"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Version     string            `mapstructure:"version" envconfig:"APP_VERSION" default:"dev"`
}

// ServiceConfig holds service-specific configuration
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port         int           `mapstructure:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}

// AuthConfig holds control-API authentication configuration
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled" envconfig:"AUTH_ENABLED" default:"false"`
	JWTSecret string `mapstructure:"jwt_secret" envconfig:"JWT_SECRET"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level  string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
}

// MonitoringConfig holds check scheduling, probes and thresholds
type MonitoringConfig struct {
	Intervals      IntervalsConfig      `mapstructure:"intervals"`
	Thresholds     ThresholdsConfig     `mapstructure:"thresholds"`
	Probes         ProbesConfig         `mapstructure:"probes"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	HistoryLimit   int                  `mapstructure:"history_limit" envconfig:"METRICS_HISTORY_LIMIT" default:"100"`
	RetentionDays  int                  `mapstructure:"retention_days" envconfig:"METRICS_RETENTION_DAYS" default:"7"`
}

// IntervalsConfig holds one interval per periodic task
type IntervalsConfig struct {
	Health      time.Duration `mapstructure:"health" envconfig:"INTERVAL_HEALTH" default:"30s"`
	Performance time.Duration `mapstructure:"performance" envconfig:"INTERVAL_PERFORMANCE" default:"60s"`
	Drift       time.Duration `mapstructure:"drift" envconfig:"INTERVAL_DRIFT" default:"300s"`
	Session     time.Duration `mapstructure:"session" envconfig:"INTERVAL_SESSION" default:"120s"`
	Database    time.Duration `mapstructure:"database" envconfig:"INTERVAL_DATABASE" default:"60s"`
	Integration time.Duration `mapstructure:"integration" envconfig:"INTERVAL_INTEGRATION" default:"180s"`
}

// ThresholdsConfig holds the named metric thresholds the analyzer evaluates
type ThresholdsConfig struct {
	APIResponseTimeMs  float64 `mapstructure:"api_response_time_ms" envconfig:"THRESHOLD_API_RESPONSE_MS" default:"500"`
	APIErrorRate       float64 `mapstructure:"api_error_rate" envconfig:"THRESHOLD_API_ERROR_RATE" default:"0.05"`
	MemoryPercent      float64 `mapstructure:"memory_percent" envconfig:"THRESHOLD_MEMORY_PERCENT" default:"80"`
	CPUPercent         float64 `mapstructure:"cpu_percent" envconfig:"THRESHOLD_CPU_PERCENT" default:"85"`
	DiskPercent        float64 `mapstructure:"disk_percent" envconfig:"THRESHOLD_DISK_PERCENT" default:"90"`
	DBQueryTimeMs      float64 `mapstructure:"db_query_time_ms" envconfig:"THRESHOLD_DB_QUERY_MS" default:"200"`
	DBDegradedMs       float64 `mapstructure:"db_degraded_ms" envconfig:"THRESHOLD_DB_DEGRADED_MS" default:"500"`
	DBUnhealthyMs      float64 `mapstructure:"db_unhealthy_ms" envconfig:"THRESHOLD_DB_UNHEALTHY_MS" default:"2000"`
	IntegrationErrRate float64 `mapstructure:"integration_error_rate" envconfig:"THRESHOLD_INTEGRATION_ERROR_RATE" default:"0.10"`
}

// EndpointConfig names one representative API endpoint to probe
type EndpointConfig struct {
	Method string `mapstructure:"method"`
	Path   string `mapstructure:"path"`
}

// IntegrationTarget names one external integration to probe
type IntegrationTarget struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// ProbesConfig holds probe targets and timeouts
type ProbesConfig struct {
	Timeout        time.Duration       `mapstructure:"timeout" envconfig:"PROBE_TIMEOUT" default:"10s"`
	UITimeout      time.Duration       `mapstructure:"ui_timeout" envconfig:"PROBE_UI_TIMEOUT" default:"30s"`
	APIBaseURL     string              `mapstructure:"api_base_url" envconfig:"PROBE_API_BASE_URL" default:"http://localhost:3000"`
	APIEndpoints   []EndpointConfig    `mapstructure:"api_endpoints"`
	DatabaseURL    string              `mapstructure:"database_url" envconfig:"PROBE_DATABASE_URL" default:"http://localhost:3000/api/health/database"`
	SessionURL     string              `mapstructure:"session_url" envconfig:"PROBE_SESSION_URL" default:"http://localhost:3000/api/health/sessions"`
	ProgressiveURL string              `mapstructure:"progressive_url" envconfig:"PROBE_PROGRESSIVE_URL" default:"http://localhost:3000/api/health/features"`
	UIPageURL      string              `mapstructure:"ui_page_url" envconfig:"PROBE_UI_PAGE_URL" default:"http://localhost:3000/dashboard"`
	Integrations   []IntegrationTarget `mapstructure:"integrations"`
}

// CircuitBreakerConfig holds the per-target breaker policy used by
// integration and database probes
type CircuitBreakerConfig struct {
	MaxFailures     int           `mapstructure:"max_failures" envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	ResetTimeout    time.Duration `mapstructure:"reset_timeout" envconfig:"BREAKER_RESET_TIMEOUT" default:"30s"`
	HalfOpenSuccess int           `mapstructure:"half_open_success" envconfig:"BREAKER_HALF_OPEN_SUCCESS" default:"2"`
}

// AlertingConfig holds alert routing, limits and suppression
type AlertingConfig struct {
	Enabled      bool             `mapstructure:"enabled" envconfig:"ALERTING_ENABLED" default:"true"`
	HistoryLimit int              `mapstructure:"history_limit" envconfig:"ALERT_HISTORY_LIMIT" default:"500"`
	RateLimit    RateLimitConfig  `mapstructure:"rate_limit"`
	QuietHours   QuietHoursConfig `mapstructure:"quiet_hours"`
	Escalation   EscalationConfig `mapstructure:"escalation"`
	Channels     []ChannelConfig  `mapstructure:"channels"`
}

// RateLimitConfig bounds alerts per (category, severity) key
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled" envconfig:"ALERT_RATE_LIMIT_ENABLED" default:"true"`
	Window    time.Duration `mapstructure:"window" envconfig:"ALERT_RATE_LIMIT_WINDOW" default:"5m"`
	MaxAlerts int           `mapstructure:"max_alerts" envconfig:"ALERT_RATE_LIMIT_MAX" default:"5"`
}

// QuietWindow is a time-of-day range; overnight windows (start > end) wrap
// past midnight
type QuietWindow struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// QuietHoursConfig suppresses channel dispatch inside configured windows
type QuietHoursConfig struct {
	Enabled bool          `mapstructure:"enabled" envconfig:"ALERT_QUIET_HOURS_ENABLED" default:"false"`
	Windows []QuietWindow `mapstructure:"windows"`
}

// EscalationConfig promotes unresolved alerts after a delay
type EscalationConfig struct {
	Enabled  bool          `mapstructure:"enabled" envconfig:"ALERT_ESCALATION_ENABLED" default:"false"`
	After    time.Duration `mapstructure:"after" envconfig:"ALERT_ESCALATION_AFTER" default:"15m"`
	Channels []string      `mapstructure:"channels"`
}

// ChannelConfig declares one alert sink with its severity filter
type ChannelConfig struct {
	Type       string   `mapstructure:"type"`
	Name       string   `mapstructure:"name"`
	Severities []string `mapstructure:"severities"`
	Path       string   `mapstructure:"path"`
	URL        string   `mapstructure:"url"`
	Topic      string   `mapstructure:"topic"`
}

// TargetConfig names one remote environment the monitor can fingerprint
// and verify
type TargetConfig struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	HealthURL string `mapstructure:"health_url"`
	BaseURL   string `mapstructure:"base_url"`
}

// EnvironmentConfig holds fingerprinting and drift comparison settings
type EnvironmentConfig struct {
	NameOverride string         `mapstructure:"name_override" envconfig:"ENV_NAME_OVERRIDE"`
	TypeOverride string         `mapstructure:"type_override" envconfig:"ENV_TYPE_OVERRIDE"`
	Domain       string         `mapstructure:"domain" envconfig:"ENV_DOMAIN"`
	Port         int            `mapstructure:"port" envconfig:"ENV_PORT" default:"3000"`
	LocalTTL     time.Duration  `mapstructure:"local_ttl" envconfig:"FINGERPRINT_LOCAL_TTL" default:"1m"`
	RemoteTTL    time.Duration  `mapstructure:"remote_ttl" envconfig:"FINGERPRINT_REMOTE_TTL" default:"5m"`
	Targets      []TargetConfig `mapstructure:"targets"`
}

// PersistenceConfig holds the history snapshot layout
type PersistenceConfig struct {
	DataDir       string        `mapstructure:"data_dir" envconfig:"DATA_DIR" default:"./data/monitoring"`
	FlushInterval time.Duration `mapstructure:"flush_interval" envconfig:"PERSIST_FLUSH_INTERVAL" default:"60s"`
}

// RedisConfig holds the optional shared fingerprint cache
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `mapstructure:"host" envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `mapstructure:"port" envconfig:"REDIS_PORT" default:"6379"`
	Password string `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
}

// KafkaConfig holds the optional monitoring event stream
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `mapstructure:"brokers" envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Topic   string   `mapstructure:"topic" envconfig:"KAFKA_TOPIC" default:"healthwatch.events"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// Load loads configuration from files and environment
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; continue with env vars and defaults
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults fills list-valued settings envconfig cannot default
func applyDefaults(cfg *Config) {
	if len(cfg.Monitoring.Probes.APIEndpoints) == 0 {
		cfg.Monitoring.Probes.APIEndpoints = DefaultAPIEndpoints()
	}
	if len(cfg.Alerting.Channels) == 0 {
		cfg.Alerting.Channels = []ChannelConfig{
			{Type: "console", Name: "console", Severities: []string{"info", "warning", "error", "critical"}},
		}
	}
}

// DefaultAPIEndpoints is the fixed list of representative endpoints the
// API probe exercises when none are configured
func DefaultAPIEndpoints() []EndpointConfig {
	return []EndpointConfig{
		{Method: "GET", Path: "/api/health"},
		{Method: "GET", Path: "/api/portfolio/summary"},
		{Method: "GET", Path: "/api/income/overview"},
		{Method: "GET", Path: "/api/goals"},
		{Method: "GET", Path: "/api/auth/session"},
	}
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if c.Monitoring.Intervals.Health <= 0 {
		return fmt.Errorf("monitoring.intervals.health must be positive")
	}
	if c.Alerting.HistoryLimit <= 0 {
		return fmt.Errorf("alerting.history_limit must be positive")
	}
	if c.Monitoring.HistoryLimit <= 0 {
		return fmt.Errorf("monitoring.history_limit must be positive")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	for _, w := range c.Alerting.QuietHours.Windows {
		for _, v := range []string{w.Start, w.End} {
			if !strings.Contains(v, ":") {
				return fmt.Errorf("quiet hours window %q is not HH:MM", v)
			}
		}
	}
	return nil
}
