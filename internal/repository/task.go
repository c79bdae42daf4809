package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// taskColumns — столбцы задачи для SELECT-запросов (алиас таблицы t).
// Теги агрегируются подзапросом, чтобы не дублировать строки задач.
const taskColumns = `t.id, t.owner_id, t.title, t.description, t.status::text, t.priority::text,
	t.due_date, t.created_at, t.updated_at,
	ARRAY(SELECT tg.name FROM task_tags tt JOIN tags tg ON tg.id = tt.tag_id
	      WHERE tt.task_id = t.id ORDER BY LOWER(tg.name)) AS tags`

// sortColumns — whitelist полей сортировки (защита от SQL injection).
var sortColumns = map[string]string{
	"created_at": "t.created_at",
	"updated_at": "t.updated_at",
	"title":      "t.title",
	"priority":   "t.priority",
	"status":     "t.status",
	"due_date":   "t.due_date",
}

// IsSortField проверяет, допустимо ли поле сортировки.
func IsSortField(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

// TaskFilter — параметры выборки задач владельца.
// Поля-указатели: nil = фильтр не применяется.
type TaskFilter struct {
	OwnerID  uuid.UUID
	Status   *model.TaskStatus
	Priority *model.TaskPriority
	// Tags — задача должна иметь хотя бы один из тегов (без учёта регистра)
	Tags []string
	// Search — подстрока в title или description (без учёта регистра)
	Search    *string
	DueBefore *time.Time
	DueAfter  *time.Time
	// SortBy — одно из полей sortColumns
	SortBy string
	// SortOrder — asc или desc
	SortOrder string
	Limit     int
	Offset    int
}

// TaskRepository — доступ к задачам и связям задача-тег.
type TaskRepository interface {
	Create(ctx context.Context, t *model.Task) error
	// GetByID возвращает задачу вместе с именами тегов.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error)
	// List возвращает страницу задач и общее количество по фильтру.
	List(ctx context.Context, f TaskFilter) ([]*model.Task, int, error)
	// Update сохраняет изменяемые поля задачи (без тегов).
	Update(ctx context.Context, t *model.Task) error
	// SetTags заменяет набор тегов задачи.
	SetTags(ctx context.Context, taskID uuid.UUID, tagIDs []uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteByOwner удаляет все задачи пользователя.
	DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	// ListDueWithoutReminder возвращает незавершённые задачи со сроком
	// в [from, to], для которых ещё нет напоминания указанного типа.
	ListDueWithoutReminder(ctx context.Context, from, to time.Time, reminderType model.ReminderType) ([]*model.Task, error)
	// CountByStatus возвращает количество задач по статусам.
	CountByStatus(ctx context.Context) (map[model.TaskStatus]int, error)
}

type taskRepo struct {
	db DBTX
}

// NewTaskRepository создаёт репозиторий задач.
func NewTaskRepository(db DBTX) TaskRepository {
	return &taskRepo{db: db}
}

func (r *taskRepo) Create(ctx context.Context, t *model.Task) error {
	query := `
		INSERT INTO tasks (id, owner_id, title, description, status, priority, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::task_status, $6::task_priority, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		t.ID, t.OwnerID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.DueDate, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: задача с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания задачи: %w", err)
	}
	return nil
}

func (r *taskRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = $1`

	t, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения задачи: %w", err)
	}
	return t, nil
}

// buildTaskWhere строит WHERE-условие и аргументы для фильтрации задач.
func buildTaskWhere(f TaskFilter) (string, []any) {
	conditions := []string{"t.owner_id = $1"}
	args := []any{f.OwnerID}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != nil {
		add("t.status = $%d::task_status", string(*f.Status))
	}
	if f.Priority != nil {
		add("t.priority = $%d::task_priority", string(*f.Priority))
	}
	if len(f.Tags) > 0 {
		lowered := make([]string, len(f.Tags))
		for i, tag := range f.Tags {
			lowered[i] = strings.ToLower(tag)
		}
		add(`EXISTS (SELECT 1 FROM task_tags tt JOIN tags tg ON tg.id = tt.tag_id
			WHERE tt.task_id = t.id AND LOWER(tg.name) = ANY($%d))`, lowered)
	}
	if f.Search != nil && *f.Search != "" {
		pattern := "%" + escapeLike(*f.Search) + "%"
		args = append(args, pattern)
		n := len(args)
		conditions = append(conditions,
			fmt.Sprintf(`(t.title ILIKE $%d ESCAPE '\' OR t.description ILIKE $%d ESCAPE '\')`, n, n))
	}
	if f.DueBefore != nil {
		add("t.due_date <= $%d", *f.DueBefore)
	}
	if f.DueAfter != nil {
		add("t.due_date >= $%d", *f.DueAfter)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// buildTaskOrderBy строит ORDER BY по whitelist полей.
func buildTaskOrderBy(sortBy, sortOrder string) string {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = sortColumns["created_at"]
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, t.id %s", col, dir, dir)
}

func (r *taskRepo) List(ctx context.Context, f TaskFilter) ([]*model.Task, int, error) {
	where, args := buildTaskWhere(f)

	// Общее количество — отдельным запросом, независимо от пагинации
	var total int
	countQuery := `SELECT COUNT(*) FROM tasks t ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта задач: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM tasks t %s %s LIMIT $%d OFFSET $%d`,
		taskColumns, where, buildTaskOrderBy(f.SortBy, f.SortOrder), n+1, n+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка задач: %w", err)
	}
	defer rows.Close()

	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *taskRepo) Update(ctx context.Context, t *model.Task) error {
	query := `
		UPDATE tasks
		SET title = $2, description = $3, status = $4::task_status, priority = $5::task_priority,
			due_date = $6, updated_at = $7
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.DueDate, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepo) SetTags(ctx context.Context, taskID uuid.UUID, tagIDs []uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM task_tags WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("ошибка очистки тегов задачи: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO task_tags (task_id, tag_id)
		 SELECT $1::uuid, unnest($2::uuid[])
		 ON CONFLICT DO NOTHING`,
		taskID, tagIDs,
	)
	if err != nil {
		return fmt.Errorf("ошибка привязки тегов к задаче: %w", err)
	}
	return nil
}

func (r *taskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepo) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления задач пользователя: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *taskRepo) ListDueWithoutReminder(
	ctx context.Context, from, to time.Time, reminderType model.ReminderType,
) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks t
		WHERE t.status <> 'DONE'
		  AND t.due_date IS NOT NULL
		  AND t.due_date BETWEEN $1 AND $2
		  AND NOT EXISTS (
			SELECT 1 FROM reminder_logs rl
			WHERE rl.task_id = t.id AND rl.reminder_type = $3)
		ORDER BY t.due_date ASC`

	rows, err := r.db.Query(ctx, query, from, to, string(reminderType))
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки задач для напоминаний: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (r *taskRepo) CountByStatus(ctx context.Context) (map[model.TaskStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status::text, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта задач по статусам: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("ошибка чтения статистики задач: %w", err)
		}
		counts[model.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

// scanTask сканирует одну строку taskColumns.
func scanTask(row pgx.Row) (*model.Task, error) {
	t := &model.Task{}
	var status, priority string
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Title, &t.Description, &status, &priority,
		&t.DueDate, &t.CreatedAt, &t.UpdatedAt, &t.Tags,
	)
	if err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	t.Priority = model.TaskPriority(priority)
	if t.DueDate != nil {
		utc := t.DueDate.UTC()
		t.DueDate = &utc
	}
	return t, nil
}

func collectTasks(rows pgx.Rows) ([]*model.Task, error) {
	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по задачам: %w", err)
	}
	return tasks, nil
}
