package openapi

import (
	"testing"
)

func TestLoad(t *testing.T) {
	doc, err := Load()
	if err != nil {
		t.Fatalf("Load ошибка: %v", err)
	}

	paths := []string{
		"/health/live",
		"/api/v1/auth/login",
		"/api/v1/tasks",
		"/api/v1/tasks/{task_id}",
		"/api/v1/tasks/{task_id}/attachments/{attachment_id}",
		"/api/v1/chat/messages",
		"/api/v1/audit",
	}
	for _, p := range paths {
		if doc.Paths.Find(p) == nil {
			t.Errorf("путь %s отсутствует в контракте", p)
		}
	}
}

func TestSpec_NotEmpty(t *testing.T) {
	if len(Spec()) == 0 {
		t.Fatal("встроенный контракт пуст")
	}
}
