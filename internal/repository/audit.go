package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// AuditFilter — параметры выборки событий аудита.
type AuditFilter struct {
	UserID    *uuid.UUID
	TaskID    *uuid.UUID
	EventType *model.EventType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// AuditRepository — журнал аудита (только добавление и чтение).
type AuditRepository interface {
	Create(ctx context.Context, e *model.AuditEvent) error
	// List возвращает страницу событий (новые первыми) и общее количество.
	List(ctx context.Context, f AuditFilter) ([]*model.AuditEvent, int, error)
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Create(ctx context.Context, e *model.AuditEvent) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("ошибка сериализации деталей аудита: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, event_type, user_id, task_id, attachment_id, details)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING created_at`

	err = r.db.QueryRow(ctx, query,
		e.ID, string(e.EventType), e.UserID, e.TaskID, e.AttachmentID, string(raw),
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи события аудита: %w", err)
	}
	return nil
}

func buildAuditWhere(f AuditFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.TaskID != nil {
		add("task_id = $%d", *f.TaskID)
	}
	if f.EventType != nil {
		add("event_type = $%d", string(*f.EventType))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *auditRepo) List(ctx context.Context, f AuditFilter) ([]*model.AuditEvent, int, error) {
	where, args := buildAuditWhere(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта событий аудита: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`
		SELECT id, event_type, user_id, task_id, attachment_id, details, created_at
		FROM audit_events
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, where, n+1, n+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения событий аудита: %w", err)
	}
	defer rows.Close()

	var events []*model.AuditEvent
	for rows.Next() {
		e := &model.AuditEvent{}
		var eventType string
		var raw []byte
		if err := rows.Scan(&e.ID, &eventType, &e.UserID, &e.TaskID, &e.AttachmentID, &raw, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("ошибка чтения события аудита: %w", err)
		}
		e.EventType = model.EventType(eventType)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("ошибка разбора деталей аудита: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации по событиям аудита: %w", err)
	}
	return events, total, nil
}
