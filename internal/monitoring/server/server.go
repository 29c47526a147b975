package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/income-clarity/healthwatch/internal/alerting/adapters/channels"
	envservice "github.com/income-clarity/healthwatch/internal/environment/app/service"
	"github.com/income-clarity/healthwatch/internal/monitoring/adapters/http/handlers"
	"github.com/income-clarity/healthwatch/internal/monitoring/app/service"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
	"github.com/income-clarity/healthwatch/internal/platform/metrics"
	"github.com/income-clarity/healthwatch/pkg/middleware"
)

// Server is the monitor's HTTP surface: the control API under /api/v1, the
// live alert stream on /ws, Prometheus metrics on /metrics and liveness on
// /health.
type Server struct {
	config      *config.Config
	logger      logger.Logger
	monitor     *service.Monitor
	fingerprint *envservice.FingerprintService
	hub         *channels.Hub
	metrics     *metrics.Metrics
	httpServer  *http.Server
}

type Option func(*Server)

func WithConfig(cfg *config.Config) Option {
	return func(s *Server) { s.config = cfg }
}

func WithLogger(logger logger.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithMonitor(monitor *service.Monitor) Option {
	return func(s *Server) { s.monitor = monitor }
}

func WithFingerprint(fp *envservice.FingerprintService) Option {
	return func(s *Server) { s.fingerprint = fp }
}

func WithHub(hub *channels.Hub) Option {
	return func(s *Server) { s.hub = hub }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func New(opts ...Option) (*Server, error) {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}

	if s.config == nil || s.monitor == nil {
		return nil, fmt.Errorf("server requires config and monitor")
	}

	s.setupHTTPServer()
	return s, nil
}

func (s *Server) setupHTTPServer() {
	router := mux.NewRouter()

	// /ws must stay unwrapped so the websocket upgrade can hijack the
	// connection.
	router.Use(middleware.Logging(&middleware.LoggingConfig{
		Logger:    s.logger,
		SkipPaths: []string{"/health", "/metrics", "/ws"},
	}))
	router.Use(middleware.Recovery(&middleware.RecoveryConfig{
		Logger:     s.logger,
		StackTrace: true,
	}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	if s.config.Auth.Enabled {
		router.Use(middleware.Auth(middleware.DefaultAuthConfig([]byte(s.config.Auth.JWTSecret))))
	}

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	if s.hub != nil {
		router.HandleFunc("/ws", s.hub.ServeWS)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	handlers.NewMonitorHandler(s.monitor, s.fingerprint, s.logger).RegisterRoutes(api)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}
}

func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "port", s.config.HTTP.Port)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy","monitoring":%t}`, s.monitor.IsMonitoring())
}
