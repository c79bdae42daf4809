// dto.go — типы запросов и ответов API и их маппинг из доменных моделей.
package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// --- Запросы ---

type registerRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type taskCreateRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	Tags        []string   `json:"tags"`
}

// taskUpdateRequest — null и отсутствующее поле означают «не изменять».
type taskUpdateRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	Tags        *[]string  `json:"tags"`
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

// --- Ответы ---

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type taskResponse struct {
	ID          uuid.UUID          `json:"id"`
	OwnerID     uuid.UUID          `json:"owner_id"`
	Title       string             `json:"title"`
	Description *string            `json:"description"`
	Status      model.TaskStatus   `json:"status"`
	Priority    model.TaskPriority `json:"priority"`
	DueDate     *time.Time         `json:"due_date"`
	Tags        []string           `json:"tags"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type attachmentResponse struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

type taskDetailResponse struct {
	Task        taskResponse         `json:"task"`
	Attachments []attachmentResponse `json:"attachments"`
}

type attachmentListResponse struct {
	Items []attachmentResponse `json:"items"`
}

type chatMessageResponse struct {
	Reply       string        `json:"reply"`
	CreatedTask *taskResponse `json:"created_task,omitempty"`
}

type auditEventResponse struct {
	ID           uuid.UUID       `json:"id"`
	UserID       *uuid.UUID      `json:"user_id"`
	EventType    model.EventType `json:"event_type"`
	TaskID       *uuid.UUID      `json:"task_id"`
	AttachmentID *uuid.UUID      `json:"attachment_id"`
	Details      map[string]any  `json:"details"`
	CreatedAt    time.Time       `json:"created_at"`
}

// pageResponse — конверт постраничного списка.
type pageResponse[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// --- Маппинг ---

func mapUser(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func mapTask(t *model.Task) taskResponse {
	resp := taskResponse{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		Tags:        t.Tags,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		resp.DueDate = &due
	}
	return resp
}

func mapAttachment(a *model.Attachment) attachmentResponse {
	return attachmentResponse{
		ID:          a.ID,
		Filename:    a.Filename,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		CreatedAt:   a.CreatedAt.UTC(),
	}
}

func mapAttachments(items []*model.Attachment) []attachmentResponse {
	out := make([]attachmentResponse, len(items))
	for i, a := range items {
		out[i] = mapAttachment(a)
	}
	return out
}

func mapAuditEvent(e *model.AuditEvent) auditEventResponse {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return auditEventResponse{
		ID:           e.ID,
		UserID:       e.UserID,
		EventType:    e.EventType,
		TaskID:       e.TaskID,
		AttachmentID: e.AttachmentID,
		Details:      details,
		CreatedAt:    e.CreatedAt.UTC(),
	}
}

// mapPage преобразует страницу доменных объектов в конверт ответа.
func mapPage[S, T any](p *model.Page[S], fn func(S) T) pageResponse[T] {
	items := make([]T, len(p.Items))
	for i, item := range p.Items {
		items[i] = fn(item)
	}
	return pageResponse[T]{
		Items:    items,
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    p.Total,
	}
}
