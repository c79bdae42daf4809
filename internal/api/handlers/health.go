// health.go — обработчики health endpoints Task Tracker.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (PostgreSQL, хранилище вложений, Redis)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matadcze/task-tracker/internal/config"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "task-tracker"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// DependencyReporter — текущее состояние зависимостей по данным dephealth.
type DependencyReporter interface {
	Health() map[string]bool
}

// ReadinessCheck — именованная проверка готовности.
type ReadinessCheck struct {
	Name    string
	Checker ReadinessChecker
	// Critical — при false отказ зависимости понижает статус до degraded
	Critical bool
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checks       []ReadinessCheck
	dependencies DependencyReporter
	promHandler  http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// gatherer — источник метрик для /metrics, dependencies может быть nil.
func NewHealthHandler(gatherer prometheus.Gatherer, dependencies DependencyReporter, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		checks:       checks,
		dependencies: dependencies,
		promHandler:  promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status       string                       `json:"status"`
	Timestamp    string                       `json:"timestamp"`
	Version      string                       `json:"version"`
	Service      string                       `json:"service"`
	Checks       map[string]healthCheckResult `json:"checks"`
	Dependencies map[string]bool              `json:"dependencies,omitempty"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult, len(h.checks)),
	}

	statuses := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		result := healthCheckResult{Status: "fail", Message: "не инициализирован"}
		if c.Checker != nil {
			status, msg := c.Checker.CheckReady()
			result = healthCheckResult{Status: status, Message: msg}
		}
		resp.Checks[c.Name] = result

		effective := result.Status
		if !c.Critical && effective == "fail" {
			effective = "degraded"
		}
		statuses = append(statuses, effective)
	}

	if h.dependencies != nil {
		resp.Dependencies = h.dependencies.Health()
	}

	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
