// chat.go — обработчик POST /api/v1/chat/messages.
package handlers

import (
	"log/slog"
	"net/http"
)

// SendChatMessage — POST /api/v1/chat/messages.
// Создаёт задачу из текста сообщения.
func (h *APIHandler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req chatMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.chat.CreateTaskFromMessage(r.Context(), userID, req.Message)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка обработки сообщения чата", slog.String("user_id", userID.String()))
		return
	}

	resp := chatMessageResponse{Reply: res.Reply}
	if res.Task != nil {
		task := mapTask(res.Task)
		resp.CreatedTask = &task
	}
	writeJSON(w, http.StatusCreated, resp)
}
