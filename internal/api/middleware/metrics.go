// metrics.go — Prometheus HTTP метрики Task Tracker.
// Регистрирует метрики: tt_http_requests_total, tt_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics — коллекторы HTTP-метрик.
type HTTPMetrics struct {
	// requestsTotal — общее количество HTTP-запросов.
	requestsTotal *prometheus.CounterVec
	// requestDuration — гистограмма длительности HTTP-запросов.
	requestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics регистрирует HTTP-метрики в reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tt_http_requests_total",
				Help: "Общее количество HTTP-запросов к Task Tracker",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tt_http_request_duration_seconds",
				Help:    "Длительность HTTP-запросов к Task Tracker в секундах",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Middleware возвращает HTTP middleware для сбора Prometheus метрик.
func (m *HTTPMetrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// UUID в пути заменяются на {id} для ограничения кардинальности
			normalizedPath := normalizePath(r.URL.Path)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(statusOf(ww))

			m.requestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			m.requestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath заменяет UUID-сегменты пути на {id}.
// /api/v1/tasks/a1b2c3d4-.../attachments → /api/v1/tasks/{id}/attachments
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/api/") {
		return path
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if len(s) == 36 {
			if _, err := uuid.Parse(s); err == nil {
				segments[i] = "{id}"
			}
		}
	}
	return strings.Join(segments, "/")
}
