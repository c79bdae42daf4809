package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matadcze/task-tracker/internal/api/openapi"
)

func newTestValidator(t *testing.T) *OpenAPIValidator {
	t.Helper()
	doc, err := openapi.Load()
	if err != nil {
		t.Fatalf("openapi.Load ошибка: %v", err)
	}
	v, err := NewOpenAPIValidator(doc, testLogger())
	if err != nil {
		t.Fatalf("NewOpenAPIValidator ошибка: %v", err)
	}
	return v
}

func TestOpenAPIValidator(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		wantStatus  int
	}{
		{"корректное создание задачи", http.MethodPost, "/api/v1/tasks", "application/json", `{"title":"Plan launch","tags":["work"]}`, http.StatusOK},
		{"нет заголовка задачи", http.MethodPost, "/api/v1/tasks", "application/json", `{"description":"x"}`, http.StatusBadRequest},
		{"неизвестный статус", http.MethodPost, "/api/v1/tasks", "application/json", `{"title":"t","status":"ARCHIVED"}`, http.StatusBadRequest},
		{"page_size больше максимума", http.MethodGet, "/api/v1/tasks?page_size=101", "", "", http.StatusBadRequest},
		{"корректные фильтры", http.MethodGet, "/api/v1/tasks?page=2&status=DONE&sort_order=asc", "", "", http.StatusOK},
		{"task_id не UUID", http.MethodGet, "/api/v1/tasks/abc", "", "", http.StatusBadRequest},
		{"пустое сообщение чата", http.MethodPost, "/api/v1/chat/messages", "application/json", `{"message":""}`, http.StatusBadRequest},
		{"неизвестный тип события", http.MethodGet, "/api/v1/audit?event_type=TASK_EXPLODED", "", "", http.StatusBadRequest},
		{"multipart не проверяется", http.MethodPost, "/api/v1/tasks/6f1c1d1e-2b4a-4c7e-9a55-0d7c2b8f4e11/attachments", "multipart/form-data; boundary=x", "garbage", http.StatusOK},
		{"путь вне контракта", http.MethodGet, "/unknown", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.target, nil)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("хотели %d, получили %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus == http.StatusBadRequest {
				if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
					t.Errorf("код ошибки = %s, ожидался VALIDATION_ERROR", code)
				}
			}
		})
	}
}
