// handler.go — основной обработчик API, реализующий routes.ServerInterface.
// Объединяет все доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apierrors "github.com/matadcze/task-tracker/internal/api/errors"
	"github.com/matadcze/task-tracker/internal/api/middleware"
	"github.com/matadcze/task-tracker/internal/api/routes"
	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/service"
)

// maxJSONBody — ограничение размера JSON-тела запроса.
const maxJSONBody = 1 << 20

// AuthUseCases — операции учётных записей. Реализуется *service.AuthService.
type AuthUseCases interface {
	Register(ctx context.Context, p service.RegisterParams) (*model.User, error)
	Login(ctx context.Context, email, password, clientIP string) (*service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, fullName *string) (*model.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) error
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
}

// TaskUseCases — операции с задачами. Реализуется *service.TaskService.
type TaskUseCases interface {
	Create(ctx context.Context, ownerID uuid.UUID, p service.CreateTaskParams) (*model.Task, error)
	Get(ctx context.Context, taskID, requesterID uuid.UUID) (*model.Task, error)
	List(ctx context.Context, ownerID uuid.UUID, p service.ListTasksParams) (*model.Page[*model.Task], error)
	Update(ctx context.Context, taskID, requesterID uuid.UUID, p service.UpdateTaskParams) (*model.Task, service.Changes, error)
	Delete(ctx context.Context, taskID, requesterID uuid.UUID) error
}

// AttachmentUseCases — операции с вложениями. Реализуется *service.AttachmentService.
type AttachmentUseCases interface {
	Upload(ctx context.Context, taskID, userID uuid.UUID, p service.UploadParams) (*model.Attachment, error)
	List(ctx context.Context, taskID, userID uuid.UUID) ([]*model.Attachment, error)
	ResolveFilePath(ctx context.Context, taskID, attachmentID, userID uuid.UUID) (string, *model.Attachment, error)
	Delete(ctx context.Context, taskID, attachmentID, userID uuid.UUID) error
}

// ChatUseCases — создание задач из сообщений. Реализуется *service.ChatService.
type ChatUseCases interface {
	CreateTaskFromMessage(ctx context.Context, userID uuid.UUID, message string) (*service.ChatResult, error)
}

// AuditUseCases — чтение журнала аудита. Реализуется *service.AuditService.
type AuditUseCases interface {
	List(ctx context.Context, userID uuid.UUID, p service.AuditListParams) (*model.Page[*model.AuditEvent], error)
}

// Services — зависимости APIHandler.
type Services struct {
	Auth        AuthUseCases
	Tasks       TaskUseCases
	Attachments AttachmentUseCases
	Chat        ChatUseCases
	Audit       AuditUseCases
}

var _ routes.ServerInterface = (*APIHandler)(nil)

// APIHandler — основной обработчик API Task Tracker.
// Реализует routes.ServerInterface, делегируя запросы в сервисный слой.
type APIHandler struct {
	health      *HealthHandler
	auth        AuthUseCases
	tasks       TaskUseCases
	attachments AttachmentUseCases
	chat        ChatUseCases
	audit       AuditUseCases
	// maxUploadSize — максимальный размер вложения в байтах
	maxUploadSize int64
	specYAML      []byte
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	svc Services,
	maxUploadSize int64,
	specYAML []byte,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		auth:          svc.Auth,
		tasks:         svc.Tasks,
		attachments:   svc.Attachments,
		chat:          svc.Chat,
		audit:         svc.Audit,
		maxUploadSize: maxUploadSize,
		specYAML:      specYAML,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetOpenAPISpec — GET /api/v1/openapi.yaml.
func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.specYAML)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON-тело запроса в dst.
// При ошибке записывает ответ 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			apierrors.PayloadTooLarge(w, r, "Тело запроса слишком большое")
		case errors.Is(err, io.EOF):
			apierrors.ValidationError(w, r, "Пустое тело запроса")
		default:
			apierrors.ValidationError(w, r, "Некорректный JSON: "+err.Error())
		}
		return false
	}
	return true
}

// currentUserID возвращает идентификатор аутентифицированного пользователя.
// Если пользователь не найден в контексте, записывает 401.
func currentUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, r, "Требуется аутентификация")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError сопоставляет ошибку сервисного слоя с HTTP-ответом.
// Непредвиденные ошибки логируются и возвращаются как 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string, attrs ...slog.Attr) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, r, service.Message(err))
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, r, service.Message(err))
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, r, service.Message(err))
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.Unauthorized(w, r, service.Message(err))
	default:
		attrs = append(attrs, slog.String("error", err.Error()))
		h.logger.LogAttrs(r.Context(), slog.LevelError, msg, attrs...)
		apierrors.InternalError(w, r, "Внутренняя ошибка сервера")
	}
}
