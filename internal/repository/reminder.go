package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// ReminderRepository — журнал отправленных напоминаний.
type ReminderRepository interface {
	// Exists проверяет, отправлялось ли напоминание данного типа для задачи.
	Exists(ctx context.Context, taskID uuid.UUID, reminderType model.ReminderType) (bool, error)
	// Create записывает факт отправки. ErrConflict — запись уже есть
	// (в том числе создана параллельным обработчиком).
	Create(ctx context.Context, l *model.ReminderLog) error
}

type reminderRepo struct {
	db DBTX
}

// NewReminderRepository создаёт репозиторий журнала напоминаний.
func NewReminderRepository(db DBTX) ReminderRepository {
	return &reminderRepo{db: db}
}

func (r *reminderRepo) Exists(ctx context.Context, taskID uuid.UUID, reminderType model.ReminderType) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reminder_logs WHERE task_id = $1 AND reminder_type = $2)`,
		taskID, string(reminderType),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки журнала напоминаний: %w", err)
	}
	return exists, nil
}

func (r *reminderRepo) Create(ctx context.Context, l *model.ReminderLog) error {
	query := `
		INSERT INTO reminder_logs (id, task_id, reminder_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id, reminder_type) DO NOTHING
		RETURNING sent_at`

	err := r.db.QueryRow(ctx, query, l.ID, l.TaskID, string(l.ReminderType)).Scan(&l.SentAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("%w: напоминание %s уже отправлено", ErrConflict, l.ReminderType)
		}
		return fmt.Errorf("ошибка записи в журнал напоминаний: %w", err)
	}
	return nil
}
