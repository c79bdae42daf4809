package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// AttachmentRepository — метаданные вложений задач.
type AttachmentRepository interface {
	Create(ctx context.Context, a *model.Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attachment, error)
	// ListByTask возвращает вложения задачи, новые первыми.
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*model.Attachment, error)
	CountByTask(ctx context.Context, taskID uuid.UUID) (int, error)
	// CountByTaskLocked блокирует строку задачи (FOR UPDATE) до конца
	// транзакции и считает её вложения. Вызывается только внутри WithTx.
	CountByTaskLocked(ctx context.Context, taskID uuid.UUID) (int, error)
	// ListStoragePathsByOwner возвращает пути хранения всех вложений задач пользователя.
	ListStoragePathsByOwner(ctx context.Context, ownerID uuid.UUID) ([]string, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

const attachmentColumns = `id, task_id, filename, content_type, size_bytes, storage_path, uploaded_by, created_at`

type attachmentRepo struct {
	db DBTX
}

// NewAttachmentRepository создаёт репозиторий вложений.
func NewAttachmentRepository(db DBTX) AttachmentRepository {
	return &attachmentRepo{db: db}
}

func (r *attachmentRepo) Create(ctx context.Context, a *model.Attachment) error {
	query := `
		INSERT INTO attachments (id, task_id, filename, content_type, size_bytes, storage_path, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.TaskID, a.Filename, a.ContentType, a.SizeBytes, a.StoragePath, a.UploadedBy,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: вложение с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка сохранения вложения: %w", err)
	}
	return nil
}

func (r *attachmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = $1`

	a := &model.Attachment{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.TaskID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.StoragePath, &a.UploadedBy, &a.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вложения: %w", err)
	}
	return a, nil
}

func (r *attachmentRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*model.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE task_id = $1 ORDER BY created_at DESC, id`

	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка вложений: %w", err)
	}
	defer rows.Close()

	var result []*model.Attachment
	for rows.Next() {
		a := &model.Attachment{}
		if err := rows.Scan(
			&a.ID, &a.TaskID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.StoragePath, &a.UploadedBy, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения вложения: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *attachmentRepo) CountByTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM attachments WHERE task_id = $1`, taskID).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта вложений: %w", err)
	}
	return n, nil
}

func (r *attachmentRepo) CountByTaskLocked(ctx context.Context, taskID uuid.UUID) (int, error) {
	var one int
	err := r.db.QueryRow(ctx, `SELECT 1 FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка блокировки задачи: %w", err)
	}
	return r.CountByTask(ctx, taskID)
}

func (r *attachmentRepo) ListStoragePathsByOwner(ctx context.Context, ownerID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.storage_path
		FROM attachments a JOIN tasks t ON t.id = a.task_id
		WHERE t.owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения путей вложений: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("ошибка чтения пути вложения: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (r *attachmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления вложения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
