// attachments.go — обработчики /api/v1/tasks/{task_id}/attachments endpoints.
// Upload (multipart), List, Download, Delete.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"

	apierrors "github.com/matadcze/task-tracker/internal/api/errors"
	"github.com/matadcze/task-tracker/internal/api/routes"
	"github.com/matadcze/task-tracker/internal/service"
)

const (
	// multipartOverhead — запас на заголовки multipart сверх размера файла.
	// Файл ровно на байт больше лимита доходит до сервиса и отклоняется с 400.
	multipartOverhead = 1 << 20
	// multipartMemory — объём формы, который держится в памяти, остальное во временных файлах.
	multipartMemory = 8 << 20
)

// UploadAttachment — POST /api/v1/tasks/{task_id}/attachments.
// Multipart form: file (обязательно).
func (h *APIHandler) UploadAttachment(w http.ResponseWriter, r *http.Request, taskId routes.TaskId) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.PayloadTooLarge(w, r, fmt.Sprintf("Размер запроса превышает %d байт", maxErr.Limit))
			return
		}
		apierrors.ValidationError(w, r, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, r, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	a, err := h.attachments.Upload(r.Context(), taskId, userID, service.UploadParams{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка загрузки вложения", slog.String("task_id", taskId.String()))
		return
	}

	writeJSON(w, http.StatusCreated, mapAttachment(a))
}

// ListAttachments — GET /api/v1/tasks/{task_id}/attachments.
func (h *APIHandler) ListAttachments(w http.ResponseWriter, r *http.Request, taskId routes.TaskId) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	items, err := h.attachments.List(r.Context(), taskId, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения вложений", slog.String("task_id", taskId.String()))
		return
	}

	writeJSON(w, http.StatusOK, attachmentListResponse{Items: mapAttachments(items)})
}

// DownloadAttachment — GET /api/v1/tasks/{task_id}/attachments/{attachment_id}.
// Отдаёт содержимое с исходным именем файла. Поддерживает Range-запросы.
func (h *APIHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request, taskId routes.TaskId, attachmentId routes.AttachmentId) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	path, a, err := h.attachments.ResolveFilePath(r.Context(), taskId, attachmentId, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения вложения", slog.String("attachment_id", attachmentId.String()))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			apierrors.NotFound(w, r, "Файл вложения не найден")
			return
		}
		h.logger.Error("Ошибка открытия файла вложения",
			slog.String("attachment_id", attachmentId.String()),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, r, "Внутренняя ошибка сервера")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	http.ServeContent(w, r, a.Filename, a.CreatedAt, f)
}

// DeleteAttachment — DELETE /api/v1/tasks/{task_id}/attachments/{attachment_id}.
func (h *APIHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request, taskId routes.TaskId, attachmentId routes.AttachmentId) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.attachments.Delete(r.Context(), taskId, attachmentId, userID); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления вложения", slog.String("attachment_id", attachmentId.String()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
