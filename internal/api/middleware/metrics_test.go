package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/api/v1/tasks", "/api/v1/tasks"},
		{"/api/v1/tasks/6f1c1d1e-2b4a-4c7e-9a55-0d7c2b8f4e11", "/api/v1/tasks/{id}"},
		{
			"/api/v1/tasks/6f1c1d1e-2b4a-4c7e-9a55-0d7c2b8f4e11/attachments/0b6a3c52-6f3e-4d2a-8f0e-2a9c1b7d5e44",
			"/api/v1/tasks/{id}/attachments/{id}",
		},
		{"/api/v1/tasks/not-a-uuid", "/api/v1/tasks/not-a-uuid"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.input); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.input, got, tt.want)
		}
	}
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	handler := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/6f1c1d1e-2b4a-4c7e-9a55-0d7c2b8f4e11", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	expected := `
# HELP tt_http_requests_total Общее количество HTTP-запросов к Task Tracker
# TYPE tt_http_requests_total counter
tt_http_requests_total{method="GET",path="/api/v1/tasks/{id}",status="404"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "tt_http_requests_total"); err != nil {
		t.Error(err)
	}
	if n := testutil.CollectAndCount(m.requestDuration); n != 1 {
		t.Errorf("серий длительности = %d, ожидалась 1", n)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("oops"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
	req.Header.Set("X-Request-Id", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"level=WARN", "status=400", "bytes=4", "request_id=req-42", "method=POST"} {
		if !strings.Contains(out, want) {
			t.Errorf("лог %q не содержит %q", out, want)
		}
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/v1/tasks", http.StatusOK, slog.LevelInfo},
		{"/api/v1/tasks", http.StatusNotFound, slog.LevelWarn},
		{"/api/v1/tasks", http.StatusInternalServerError, slog.LevelError},
		{"/health/live", http.StatusOK, slog.LevelDebug},
		{"/metrics", http.StatusOK, slog.LevelDebug},
		{"/health/ready", http.StatusServiceUnavailable, slog.LevelError},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("requestLevel(%s, %d) = %v, ожидался %v", tt.path, tt.status, got, tt.want)
		}
	}
}
