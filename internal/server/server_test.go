package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matadcze/task-tracker/internal/api/handlers"
	"github.com/matadcze/task-tracker/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// rejectAll — middleware, отклоняющий любой запрос с 401.
func rejectAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func TestAuthWithExclusions(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := AuthWithExclusions(rejectAll, PublicPrefixes...)(next)

	tests := []struct {
		path string
		want int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/openapi.yaml", http.StatusOK},
		{"/api/v1/auth/login", http.StatusOK},
		{"/api/v1/auth/register", http.StatusOK},
		{"/api/v1/auth/refresh", http.StatusOK},
		{"/api/v1/auth/logout", http.StatusUnauthorized},
		{"/api/v1/auth/me", http.StatusUnauthorized},
		{"/api/v1/tasks", http.StatusUnauthorized},
		{"/api/v1/audit", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("хотели %d, получили %d", tt.want, rec.Code)
			}
		})
	}
}

func TestNewRouter(t *testing.T) {
	health := handlers.NewHealthHandler(prometheus.NewRegistry(), nil)
	api := handlers.NewAPIHandler(health, handlers.Services{}, 1024, []byte("openapi: 3.0.3\n"), testLogger())
	router := NewRouter(api, AuthWithExclusions(rejectAll, PublicPrefixes...))

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/api/v1/openapi.yaml", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/tasks", http.StatusUnauthorized},
		{http.MethodDelete, "/health/live", http.StatusMethodNotAllowed},
		{http.MethodGet, "/health/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("хотели %d, получили %d", tt.want, rec.Code)
			}
		})
	}
}

func TestNewRouter_RecoversPanic(t *testing.T) {
	health := handlers.NewHealthHandler(prometheus.NewRegistry(), nil)
	// Services пустые: вызов сервиса аутентификации паникует на nil-интерфейсе.
	api := handlers.NewAPIHandler(health, handlers.Services{}, 1024, nil, testLogger())
	router := NewRouter(api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh",
		strings.NewReader(`{"refresh_token":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("хотели 500, получили %d", rec.Code)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := &config.Config{Port: 0, ShutdownTimeout: 2 * time.Second}
	health := handlers.NewHealthHandler(prometheus.NewRegistry(), nil)
	api := handlers.NewAPIHandler(health, handlers.Services{}, 1024, nil, testLogger())
	srv := New(cfg, testLogger(), api)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run вернул ошибку: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("сервер не остановился после отмены контекста")
	}
}
