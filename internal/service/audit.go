// audit.go — журнал аудита: запись событий и выборка событий пользователя.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/repository"
)

// newAuditEvent создаёт событие аудита с новым идентификатором.
func newAuditEvent(eventType model.EventType, userID, taskID *uuid.UUID, details map[string]any) *model.AuditEvent {
	if details == nil {
		details = map[string]any{}
	}
	return &model.AuditEvent{
		ID:        uuid.New(),
		EventType: eventType,
		UserID:    userID,
		TaskID:    taskID,
		Details:   details,
	}
}

// recordAudit записывает событие через переданный репозиторий
// (обычно привязанный к транзакции операции).
func recordAudit(ctx context.Context, repo repository.AuditRepository, e *model.AuditEvent) error {
	if err := repo.Create(ctx, e); err != nil {
		return fmt.Errorf("запись аудита %s: %w", e.EventType, err)
	}
	return nil
}

// AuditListParams — параметры выборки журнала аудита.
type AuditListParams struct {
	TaskID    *uuid.UUID
	EventType *string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// AuditService — чтение журнала аудита.
type AuditService struct {
	store  repository.Store
	logger *slog.Logger
}

// NewAuditService создаёт сервис журнала аудита.
func NewAuditService(store repository.Store, logger *slog.Logger) *AuditService {
	return &AuditService{
		store:  store,
		logger: logger.With(slog.String("component", "audit_service")),
	}
}

// List возвращает события пользователя userID, новые первыми.
func (s *AuditService) List(ctx context.Context, userID uuid.UUID, p AuditListParams) (*model.Page[*model.AuditEvent], error) {
	offset, err := validatePage(p.Page, p.PageSize)
	if err != nil {
		return nil, err
	}

	filter := repository.AuditFilter{
		UserID: &userID,
		TaskID: p.TaskID,
		Limit:  p.PageSize,
		Offset: offset,
	}
	if p.EventType != nil && *p.EventType != "" {
		et := model.EventType(*p.EventType)
		if !et.IsValid() {
			return nil, validationError("неизвестный тип события: %q", *p.EventType)
		}
		filter.EventType = &et
	}
	if p.From != nil && p.To != nil && p.To.Before(*p.From) {
		return nil, validationError("to не может быть раньше from")
	}
	if p.From != nil {
		from := p.From.UTC()
		filter.From = &from
	}
	if p.To != nil {
		to := p.To.UTC()
		filter.To = &to
	}

	events, total, err := s.store.Audit().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("получение журнала аудита: %w", err)
	}
	if events == nil {
		events = []*model.AuditEvent{}
	}

	return &model.Page[*model.AuditEvent]{
		Items:    events,
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	}, nil
}
