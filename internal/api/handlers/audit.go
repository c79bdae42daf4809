// audit.go — обработчик GET /api/v1/audit.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/matadcze/task-tracker/internal/api/routes"
	"github.com/matadcze/task-tracker/internal/service"
)

// ListAuditEvents — GET /api/v1/audit.
// Возвращает события текущего пользователя, новые первыми.
func (h *APIHandler) ListAuditEvents(w http.ResponseWriter, r *http.Request, params routes.ListAuditEventsParams) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	page, err := h.audit.List(r.Context(), userID, service.AuditListParams{
		TaskID:    params.TaskId,
		EventType: params.EventType,
		From:      params.StartDate,
		To:        params.EndDate,
		Page:      intOrDefault(params.Page, service.DefaultPage),
		PageSize:  intOrDefault(params.PageSize, service.DefaultPageSize),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения журнала аудита", slog.String("user_id", userID.String()))
		return
	}

	writeJSON(w, http.StatusOK, mapPage(page, mapAuditEvent))
}
