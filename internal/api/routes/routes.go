// Пакет routes — маршрутизация HTTP API Task Tracker.
// Описывает ServerInterface (по одному методу на операцию OpenAPI контракта),
// типизированные параметры запросов и их привязку через oapi-codegen runtime.
package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/matadcze/task-tracker/internal/api/errors"
)

// TaskId — идентификатор задачи в пути.
type TaskId = openapi_types.UUID

// AttachmentId — идентификатор вложения в пути.
type AttachmentId = openapi_types.UUID

// ListTasksParams — query-параметры GET /api/v1/tasks.
type ListTasksParams struct {
	Page     *int    `form:"page,omitempty" json:"page,omitempty"`
	PageSize *int    `form:"page_size,omitempty" json:"page_size,omitempty"`
	Status   *string `form:"status,omitempty" json:"status,omitempty"`
	Priority *string `form:"priority,omitempty" json:"priority,omitempty"`
	Search   *string `form:"search,omitempty" json:"search,omitempty"`
	// Tags — теги через запятую
	Tags      *string    `form:"tags,omitempty" json:"tags,omitempty"`
	DueBefore *time.Time `form:"due_before,omitempty" json:"due_before,omitempty"`
	DueAfter  *time.Time `form:"due_after,omitempty" json:"due_after,omitempty"`
	SortBy    *string    `form:"sort_by,omitempty" json:"sort_by,omitempty"`
	SortOrder *string    `form:"sort_order,omitempty" json:"sort_order,omitempty"`
}

// ListAuditEventsParams — query-параметры GET /api/v1/audit.
type ListAuditEventsParams struct {
	TaskId    *openapi_types.UUID `form:"task_id,omitempty" json:"task_id,omitempty"`
	EventType *string             `form:"event_type,omitempty" json:"event_type,omitempty"`
	StartDate *time.Time          `form:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate   *time.Time          `form:"end_date,omitempty" json:"end_date,omitempty"`
	Page      *int                `form:"page,omitempty" json:"page,omitempty"`
	PageSize  *int                `form:"page_size,omitempty" json:"page_size,omitempty"`
}

// ServerInterface — обработчики всех операций API.
type ServerInterface interface {
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/openapi.yaml)
	GetOpenAPISpec(w http.ResponseWriter, r *http.Request)

	// (POST /api/v1/auth/register)
	Register(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/auth/login)
	Login(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/auth/refresh)
	RefreshToken(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/auth/logout)
	Logout(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/auth/me)
	GetMe(w http.ResponseWriter, r *http.Request)
	// (PATCH /api/v1/auth/me)
	UpdateMe(w http.ResponseWriter, r *http.Request)
	// (DELETE /api/v1/auth/me)
	DeleteMe(w http.ResponseWriter, r *http.Request)
	// (PUT /api/v1/auth/change-password)
	ChangePassword(w http.ResponseWriter, r *http.Request)

	// (POST /api/v1/tasks)
	CreateTask(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/tasks)
	ListTasks(w http.ResponseWriter, r *http.Request, params ListTasksParams)
	// (GET /api/v1/tasks/{task_id})
	GetTask(w http.ResponseWriter, r *http.Request, taskId TaskId)
	// (PUT /api/v1/tasks/{task_id})
	UpdateTask(w http.ResponseWriter, r *http.Request, taskId TaskId)
	// (DELETE /api/v1/tasks/{task_id})
	DeleteTask(w http.ResponseWriter, r *http.Request, taskId TaskId)

	// (POST /api/v1/tasks/{task_id}/attachments)
	UploadAttachment(w http.ResponseWriter, r *http.Request, taskId TaskId)
	// (GET /api/v1/tasks/{task_id}/attachments)
	ListAttachments(w http.ResponseWriter, r *http.Request, taskId TaskId)
	// (GET /api/v1/tasks/{task_id}/attachments/{attachment_id})
	DownloadAttachment(w http.ResponseWriter, r *http.Request, taskId TaskId, attachmentId AttachmentId)
	// (DELETE /api/v1/tasks/{task_id}/attachments/{attachment_id})
	DeleteAttachment(w http.ResponseWriter, r *http.Request, taskId TaskId, attachmentId AttachmentId)

	// (POST /api/v1/chat/messages)
	SendChatMessage(w http.ResponseWriter, r *http.Request)

	// (GET /api/v1/audit)
	ListAuditEvents(w http.ResponseWriter, r *http.Request, params ListAuditEventsParams)
}

// InvalidParamFormatError — параметр запроса не удалось привести к типу.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Неверный формат параметра %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ServerInterfaceWrapper привязывает параметры запроса и вызывает обработчик.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// queryParam — назначение привязки одного query-параметра.
type queryParam struct {
	name string
	dest any
}

// bindQuery привязывает query-параметры стиля form. Все параметры необязательные.
func (siw *ServerInterfaceWrapper) bindQuery(w http.ResponseWriter, r *http.Request, params []queryParam) bool {
	query := r.URL.Query()
	for _, p := range params {
		if err := runtime.BindQueryParameter("form", true, false, p.name, query, p.dest); err != nil {
			siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: p.name, Err: err})
			return false
		}
	}
	return true
}

// bindPathUUID привязывает UUID-параметр пути.
func (siw *ServerInterfaceWrapper) bindPathUUID(w http.ResponseWriter, r *http.Request, name string) (openapi_types.UUID, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return id, false
	}
	return id, true
}

// ListTasks привязывает фильтры списка задач.
func (siw *ServerInterfaceWrapper) ListTasks(w http.ResponseWriter, r *http.Request) {
	var params ListTasksParams
	ok := siw.bindQuery(w, r, []queryParam{
		{"page", &params.Page},
		{"page_size", &params.PageSize},
		{"status", &params.Status},
		{"priority", &params.Priority},
		{"search", &params.Search},
		{"tags", &params.Tags},
		{"due_before", &params.DueBefore},
		{"due_after", &params.DueAfter},
		{"sort_by", &params.SortBy},
		{"sort_order", &params.SortOrder},
	})
	if !ok {
		return
	}
	siw.Handler.ListTasks(w, r, params)
}

// ListAuditEvents привязывает фильтры журнала аудита.
func (siw *ServerInterfaceWrapper) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	var params ListAuditEventsParams
	ok := siw.bindQuery(w, r, []queryParam{
		{"task_id", &params.TaskId},
		{"event_type", &params.EventType},
		{"start_date", &params.StartDate},
		{"end_date", &params.EndDate},
		{"page", &params.Page},
		{"page_size", &params.PageSize},
	})
	if !ok {
		return
	}
	siw.Handler.ListAuditEvents(w, r, params)
}

// withTask оборачивает обработчик, принимающий task_id.
func (siw *ServerInterfaceWrapper) withTask(fn func(http.ResponseWriter, *http.Request, TaskId)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, ok := siw.bindPathUUID(w, r, "task_id")
		if !ok {
			return
		}
		fn(w, r, taskID)
	}
}

// withAttachment оборачивает обработчик, принимающий task_id и attachment_id.
func (siw *ServerInterfaceWrapper) withAttachment(fn func(http.ResponseWriter, *http.Request, TaskId, AttachmentId)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, ok := siw.bindPathUUID(w, r, "task_id")
		if !ok {
			return
		}
		attachmentID, ok := siw.bindPathUUID(w, r, "attachment_id")
		if !ok {
			return
		}
		fn(w, r, taskID, attachmentID)
	}
}

// defaultErrorHandler отвечает 400 на ошибки привязки параметров.
func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	apierrors.ValidationError(w, r, err.Error())
}

// HandlerFromMux регистрирует все маршруты API в r.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	siw := &ServerInterfaceWrapper{
		Handler:          si,
		ErrorHandlerFunc: defaultErrorHandler,
	}

	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)
	r.Get("/api/v1/openapi.yaml", si.GetOpenAPISpec)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", si.Register)
		r.Post("/login", si.Login)
		r.Post("/refresh", si.RefreshToken)
		r.Post("/logout", si.Logout)
		r.Get("/me", si.GetMe)
		r.Patch("/me", si.UpdateMe)
		r.Delete("/me", si.DeleteMe)
		r.Put("/change-password", si.ChangePassword)
	})

	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Post("/", si.CreateTask)
		r.Get("/", siw.ListTasks)
		r.Get("/{task_id}", siw.withTask(si.GetTask))
		r.Put("/{task_id}", siw.withTask(si.UpdateTask))
		r.Delete("/{task_id}", siw.withTask(si.DeleteTask))

		r.Post("/{task_id}/attachments", siw.withTask(si.UploadAttachment))
		r.Get("/{task_id}/attachments", siw.withTask(si.ListAttachments))
		r.Get("/{task_id}/attachments/{attachment_id}", siw.withAttachment(si.DownloadAttachment))
		r.Delete("/{task_id}/attachments/{attachment_id}", siw.withAttachment(si.DeleteAttachment))
	})

	r.Post("/api/v1/chat/messages", si.SendChatMessage)
	r.Get("/api/v1/audit", siw.ListAuditEvents)

	return r
}
