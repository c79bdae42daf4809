// tasks.go — обработчики /api/v1/tasks endpoints.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/matadcze/task-tracker/internal/api/errors"
	"github.com/matadcze/task-tracker/internal/api/routes"
	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/service"
)

// CreateTask — POST /api/v1/tasks.
func (h *APIHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req taskCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, err := parseStatus(req.Status)
	if err != nil {
		apierrors.ValidationError(w, r, err.Error())
		return
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		apierrors.ValidationError(w, r, err.Error())
		return
	}

	task, err := h.tasks.Create(r.Context(), userID, service.CreateTaskParams{
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		Priority:    priority,
		DueDate:     req.DueDate,
		Tags:        req.Tags,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания задачи", slog.String("user_id", userID.String()))
		return
	}

	writeJSON(w, http.StatusCreated, mapTask(task))
}

// ListTasks — GET /api/v1/tasks.
// Фильтры: status, priority, search, tags (через запятую), due_before, due_after.
func (h *APIHandler) ListTasks(w http.ResponseWriter, r *http.Request, params routes.ListTasksParams) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	status, err := parseStatus(params.Status)
	if err != nil {
		apierrors.ValidationError(w, r, err.Error())
		return
	}
	priority, err := parsePriority(params.Priority)
	if err != nil {
		apierrors.ValidationError(w, r, err.Error())
		return
	}

	p := service.ListTasksParams{
		Status:    status,
		Priority:  priority,
		Search:    params.Search,
		DueBefore: params.DueBefore,
		DueAfter:  params.DueAfter,
		Page:      intOrDefault(params.Page, service.DefaultPage),
		PageSize:  intOrDefault(params.PageSize, service.DefaultPageSize),
	}
	if params.Tags != nil {
		p.Tags = splitTags(*params.Tags)
	}
	if params.SortBy != nil {
		p.SortBy = *params.SortBy
	}
	if params.SortOrder != nil {
		p.SortOrder = *params.SortOrder
	}

	page, err := h.tasks.List(r.Context(), userID, p)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения списка задач", slog.String("user_id", userID.String()))
		return
	}

	writeJSON(w, http.StatusOK, mapPage(page, mapTask))
}

// GetTask — GET /api/v1/tasks/{task_id}.
// Возвращает задачу вместе со списком вложений.
func (h *APIHandler) GetTask(w http.ResponseWriter, r *http.Request, taskId routes.TaskId) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Get(r.Context(), taskId, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения задачи", slog.String("task_id", taskId.String()))
		return
	}
	attachments, err := h.attachments.List(r.Context(), taskId, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения вложений", slog.String("task_id", taskId.String()))
		return
	}

	writeJSON(w, http.StatusOK, taskDetailResponse{
		Task:        mapTask(task),
		Attachments: mapAttachments(attachments),
	})
}

// UpdateTask — PUT /api/v1/tasks/{task_id}.
// Частичное обновление: изменяются только переданные поля.
func (h *APIHandler) UpdateTask(w http.ResponseWriter, r *http.Request, taskId routes.TaskId) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req taskUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, err := parseStatus(req.Status)
	if err != nil {
		apierrors.ValidationError(w, r, err.Error())
		return
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		apierrors.ValidationError(w, r, err.Error())
		return
	}

	task, _, err := h.tasks.Update(r.Context(), taskId, userID, service.UpdateTaskParams{
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		Priority:    priority,
		DueDate:     req.DueDate,
		Tags:        req.Tags,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка обновления задачи", slog.String("task_id", taskId.String()))
		return
	}

	writeJSON(w, http.StatusOK, mapTask(task))
}

// DeleteTask — DELETE /api/v1/tasks/{task_id}.
func (h *APIHandler) DeleteTask(w http.ResponseWriter, r *http.Request, taskId routes.TaskId) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), taskId, userID); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления задачи", slog.String("task_id", taskId.String()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseStatus разбирает необязательный статус.
func parseStatus(s *string) (*model.TaskStatus, error) {
	if s == nil {
		return nil, nil
	}
	st, err := model.ParseTaskStatus(*s)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// parsePriority разбирает необязательный приоритет.
func parsePriority(s *string) (*model.TaskPriority, error) {
	if s == nil {
		return nil, nil
	}
	p, err := model.ParseTaskPriority(*s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// splitTags разбирает список тегов через запятую.
// Пустые элементы отбрасываются при нормализации в сервисе.
func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func intOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
