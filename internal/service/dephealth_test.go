// dephealth_test.go — тесты мониторинга зависимостей через topologymetrics.
package service

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // драйвер database/sql "pgx"
	"github.com/prometheus/client_golang/prometheus"
)

// unreachableDB возвращает *sql.DB без реального подключения.
// Соединение устанавливается лениво, поэтому создание не обращается к сети.
func unreachableDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dsn := "postgres://tt:tt@127.0.0.1:1/tasks?sslmode=disable&connect_timeout=1"
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, dsn
}

func TestNewDephealthService(t *testing.T) {
	db, dsn := unreachableDB(t)

	tests := []struct {
		name   string
		llmURL string
	}{
		{"только PostgreSQL", ""},
		{"PostgreSQL и LLM API", "http://127.0.0.1:8081/v1"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := NewDephealthService(DephealthConfig{
				ServiceID:     "task-tracker-test-" + string(rune('a'+i)),
				Group:         "task-tracker",
				DB:            db,
				PgConnURL:     dsn,
				LLMBaseURL:    tt.llmURL,
				LLMHealthPath: "/health",
				CheckInterval: 5 * time.Second,
				Registerer:    prometheus.NewRegistry(),
			}, testLogger())
			if err != nil {
				t.Fatalf("Ошибка создания DephealthService: %v", err)
			}
			if ds == nil {
				t.Fatal("DephealthService nil")
			}
		})
	}
}

func TestDephealthService_LLMHealthy(t *testing.T) {
	mockLLM := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer mockLLM.Close()

	db, dsn := unreachableDB(t)
	ds, err := NewDephealthService(DephealthConfig{
		ServiceID:     "task-tracker-test-llm",
		Group:         "task-tracker",
		DB:            db,
		PgConnURL:     dsn,
		LLMBaseURL:    mockLLM.URL,
		LLMHealthPath: "/health",
		CheckInterval: 1 * time.Second,
		Registerer:    prometheus.NewRegistry(),
	}, testLogger())
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}
	defer ds.Stop()

	// Первая проверка (интервал 1s + запас)
	time.Sleep(3 * time.Second)

	health := ds.Health()
	found := false
	for key, ok := range health {
		if strings.HasPrefix(key, "llm-api:") {
			found = true
			if !ok {
				t.Errorf("llm-api health = false для ключа %q, ожидалось true", key)
			}
		}
	}
	if !found {
		keys := make([]string, 0, len(health))
		for k := range health {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t.Errorf("Нет записи для llm-api в Health(), keys=%v", keys)
	}
}
