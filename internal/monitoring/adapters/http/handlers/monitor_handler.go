package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	envservice "github.com/income-clarity/healthwatch/internal/environment/app/service"
	"github.com/income-clarity/healthwatch/internal/monitoring/app/service"
	"github.com/income-clarity/healthwatch/internal/platform/config"
	"github.com/income-clarity/healthwatch/internal/platform/logger"
)

// MonitorHandler exposes the engine's control surface over HTTP.
type MonitorHandler struct {
	monitor     *service.Monitor
	fingerprint *envservice.FingerprintService
	logger      logger.Logger
}

func NewMonitorHandler(monitor *service.Monitor, fp *envservice.FingerprintService, logger logger.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor:     monitor,
		fingerprint: fp,
		logger:      logger,
	}
}

func (h *MonitorHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/monitoring/start", h.Start).Methods("POST")
	router.HandleFunc("/monitoring/stop", h.Stop).Methods("POST")
	router.HandleFunc("/monitoring/trigger", h.Trigger).Methods("POST")
	router.HandleFunc("/monitoring/status", h.Status).Methods("GET")
	router.HandleFunc("/monitoring/dashboard", h.Dashboard).Methods("GET")
	router.HandleFunc("/monitoring/config", h.UpdateConfig).Methods("PATCH")

	router.HandleFunc("/alerts", h.AlertHistory).Methods("GET")
	router.HandleFunc("/alerts/test", h.TestAlerts).Methods("POST")
	router.HandleFunc("/alerts/{id}/resolve", h.ResolveAlert).Methods("POST")

	router.HandleFunc("/metrics/history", h.MetricsHistory).Methods("GET")

	router.HandleFunc("/environments/current", h.CurrentEnvironment).Methods("GET")
	router.HandleFunc("/environments/{target}/compare", h.CompareEnvironment).Methods("GET")
	router.HandleFunc("/deployments/{target}/verify", h.VerifyDeployment).Methods("POST")
}

func (h *MonitorHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Start(r.Context()); err != nil {
		h.logger.Error("Failed to start monitoring", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start monitoring")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"monitoring": h.monitor.IsMonitoring(),
	})
}

func (h *MonitorHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Stop(r.Context()); err != nil {
		h.logger.Error("Failed to stop monitoring", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to stop monitoring")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"monitoring": h.monitor.IsMonitoring(),
	})
}

// Trigger runs one manual check cycle and returns the fresh snapshot and
// score.
func (h *MonitorHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	snapshot, score, err := h.monitor.TriggerHealthCheck(r.Context())
	if err != nil {
		h.logger.Error("Manual health check failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "health check failed")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"metrics":     snapshot,
		"healthScore": score,
	})
}

func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.monitor.Status())
}

func (h *MonitorHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.monitor.Dashboard(r.Context()))
}

// updateConfigRequest is the partial runtime config update body. Absent
// sections are left unchanged.
type updateConfigRequest struct {
	Thresholds *config.ThresholdsConfig `json:"thresholds,omitempty"`
	Alerting   *config.AlertingConfig   `json:"alerting,omitempty"`
}

func (h *MonitorHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Thresholds == nil && req.Alerting == nil {
		h.respondError(w, http.StatusBadRequest, "no recognized config sections in request")
		return
	}
	h.monitor.UpdateConfig(req.Thresholds, req.Alerting)
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *MonitorHandler) AlertHistory(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": h.monitor.AlertHistory(limitParam(r, 50)),
	})
}

func (h *MonitorHandler) TestAlerts(w http.ResponseWriter, r *http.Request) {
	ids := h.monitor.TestAlerts(r.Context())
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"dispatched": len(ids),
		"alertIds":   ids,
	})
}

func (h *MonitorHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.monitor.ResolveAlert(id) {
		h.respondError(w, http.StatusNotFound, "alert not found or already resolved")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (h *MonitorHandler) MetricsHistory(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": h.monitor.MetricsHistory(limitParam(r, 50)),
	})
}

func (h *MonitorHandler) CurrentEnvironment(w http.ResponseWriter, r *http.Request) {
	fp, err := h.fingerprint.Current(r.Context())
	if err != nil {
		h.logger.Error("Failed to fingerprint current environment", "error", err)
		h.respondError(w, http.StatusInternalServerError, "fingerprint unavailable")
		return
	}
	h.respondJSON(w, http.StatusOK, fp)
}

func (h *MonitorHandler) CompareEnvironment(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["target"]
	cmp, err := h.fingerprint.Compare(r.Context(), target)
	if err != nil {
		if errors.Is(err, envservice.ErrUnknownTarget) {
			h.respondError(w, http.StatusNotFound, "unknown target environment")
			return
		}
		h.logger.Error("Environment comparison failed", "target", target, "error", err)
		h.respondError(w, http.StatusBadGateway, "comparison failed")
		return
	}
	h.respondJSON(w, http.StatusOK, cmp)
}

func (h *MonitorHandler) VerifyDeployment(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["target"]
	result, err := h.monitor.VerifyDeployment(r.Context(), target)
	if err != nil {
		if errors.Is(err, envservice.ErrUnknownTarget) {
			h.respondError(w, http.StatusNotFound, "unknown target environment")
			return
		}
		h.logger.Error("Deployment verification failed", "target", target, "error", err)
		h.respondError(w, http.StatusBadGateway, "verification failed")
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func (h *MonitorHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *MonitorHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
