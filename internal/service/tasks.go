// tasks.go — сервис задач: создание, чтение, фильтрация, обновление
// с проверкой переходов статуса и удаление. Каждое изменение
// сопровождается событием аудита в той же транзакции.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/domain/taskstate"
	"github.com/matadcze/task-tracker/internal/repository"
)

// MaxTitleLength — максимальная длина заголовка задачи в символах.
const MaxTitleLength = 500

// CreateTaskParams — данные новой задачи. nil — значение по умолчанию.
type CreateTaskParams struct {
	Title       string
	Description *string
	Status      *model.TaskStatus
	Priority    *model.TaskPriority
	DueDate     *time.Time
	Tags        []string
}

// UpdateTaskParams — частичное обновление задачи. nil — поле не передано.
type UpdateTaskParams struct {
	Title *string
	// Description — пустая строка после обрезки пробелов очищает описание
	Description *string
	Status      *model.TaskStatus
	Priority    *model.TaskPriority
	DueDate     *time.Time
	Tags        *[]string
}

// ListTasksParams — фильтры, сортировка и пагинация списка задач.
type ListTasksParams struct {
	Status    *model.TaskStatus
	Priority  *model.TaskPriority
	Tags      []string
	Search    *string
	DueBefore *time.Time
	DueAfter  *time.Time
	// SortBy — поле сортировки, пусто = created_at
	SortBy string
	// SortOrder — asc или desc, пусто = desc
	SortOrder string
	Page      int
	PageSize  int
}

// FieldChange — старое и новое значение изменённого поля.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Changes — набор изменений задачи по именам полей.
type Changes map[string]FieldChange

// TaskService — бизнес-логика задач.
type TaskService struct {
	store   repository.Store
	tags    *TagService
	files   FileStorage
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewTaskService создаёт сервис задач.
// files используется для удаления содержимого вложений удаляемых задач.
func NewTaskService(
	store repository.Store,
	tags *TagService,
	files FileStorage,
	metrics Metrics,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		store:   store,
		tags:    tags,
		files:   files,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "task_service")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// InitMetrics выставляет gauge задач по статусам по данным БД.
// Вызывается один раз при старте.
func (s *TaskService) InitMetrics(ctx context.Context) error {
	counts, err := s.store.Tasks().CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("подсчёт задач по статусам: %w", err)
	}
	byStatus := make(map[string]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		byStatus[string(st)] = counts[st]
	}
	s.metrics.SetTasksByStatus(byStatus)
	return nil
}

// observe фиксирует длительность и результат операции.
func (s *TaskService) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveTaskOperation(operation, resultOf(err), time.Since(start))
}

// Create создаёт задачу владельца ownerID.
func (s *TaskService) Create(ctx context.Context, ownerID uuid.UUID, p CreateTaskParams) (task *model.Task, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err) }()

	title, err := normalizeTitle(p.Title)
	if err != nil {
		return nil, err
	}

	now := s.now()
	task = &model.Task{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       title,
		Description: normalizeDescription(p.Description),
		Status:      model.StatusTodo,
		Priority:    model.PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Status != nil {
		if _, err := model.ParseTaskStatus(string(*p.Status)); err != nil {
			return nil, validationError("%v", err)
		}
		task.Status = *p.Status
	}
	if p.Priority != nil {
		if _, err := model.ParseTaskPriority(string(*p.Priority)); err != nil {
			return nil, validationError("%v", err)
		}
		task.Priority = *p.Priority
	}
	if p.DueDate != nil {
		due := p.DueDate.UTC()
		if due.Before(now) {
			return nil, validationError("срок выполнения не может быть в прошлом")
		}
		task.DueDate = &due
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		tags, err := s.tags.EnsureExist(ctx, tx.Tags(), p.Tags)
		if err != nil {
			return err
		}
		if err := tx.Tasks().Create(ctx, task); err != nil {
			return fmt.Errorf("создание задачи: %w", err)
		}
		if len(tags) > 0 {
			if err := tx.Tasks().SetTags(ctx, task.ID, tagIDs(tags)); err != nil {
				return fmt.Errorf("привязка тегов: %w", err)
			}
		}
		task.Tags = tagNames(tags)

		return recordAudit(ctx, tx.Audit(), newAuditEvent(model.EventTaskCreated, &ownerID, &task.ID, map[string]any{
			"title":    task.Title,
			"status":   string(task.Status),
			"priority": string(task.Priority),
		}))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.TaskStatusChanged("", string(task.Status))
	s.metrics.AuditEventRecorded(string(model.EventTaskCreated))

	s.logger.Info("Задача создана",
		slog.String("task_id", task.ID.String()),
		slog.String("owner_id", ownerID.String()),
		slog.String("status", string(task.Status)),
	)
	return task, nil
}

// Get возвращает задачу, если requesterID — её владелец.
func (s *TaskService) Get(ctx context.Context, taskID, requesterID uuid.UUID) (task *model.Task, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()

	return loadOwnedTask(ctx, s.store.Tasks(), taskID, requesterID)
}

// List возвращает страницу задач владельца с учётом фильтров.
// Total не зависит от пагинации.
func (s *TaskService) List(ctx context.Context, ownerID uuid.UUID, p ListTasksParams) (page *model.Page[*model.Task], err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()

	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	if !repository.IsSortField(sortBy) {
		return nil, validationError("недопустимое поле сортировки: %q", p.SortBy)
	}
	sortOrder := strings.ToLower(p.SortOrder)
	if sortOrder == "" {
		sortOrder = "desc"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		return nil, validationError("sort_order должен быть asc или desc")
	}
	offset, err := validatePage(p.Page, p.PageSize)
	if err != nil {
		return nil, err
	}
	if p.DueBefore != nil && p.DueAfter != nil && p.DueBefore.Before(*p.DueAfter) {
		return nil, validationError("due_before не может быть раньше due_after")
	}

	tags, err := NormalizeTags(p.Tags)
	if err != nil {
		return nil, err
	}

	filter := repository.TaskFilter{
		OwnerID:   ownerID,
		Status:    p.Status,
		Priority:  p.Priority,
		Tags:      tags,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Limit:     p.PageSize,
		Offset:    offset,
	}
	if p.Search != nil {
		if q := strings.TrimSpace(*p.Search); q != "" {
			filter.Search = &q
		}
	}
	if p.DueBefore != nil {
		t := p.DueBefore.UTC()
		filter.DueBefore = &t
	}
	if p.DueAfter != nil {
		t := p.DueAfter.UTC()
		filter.DueAfter = &t
	}

	items, total, err := s.store.Tasks().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("получение списка задач: %w", err)
	}
	if items == nil {
		items = []*model.Task{}
	}

	return &model.Page[*model.Task]{
		Items:    items,
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
	}, nil
}

// Update применяет частичное обновление. Возвращает задачу и набор
// фактических изменений. Пустой набор — запись и аудит не выполняются.
func (s *TaskService) Update(
	ctx context.Context, taskID, requesterID uuid.UUID, p UpdateTaskParams,
) (task *model.Task, changes Changes, err error) {
	start := time.Now()
	defer func() { s.observe("update", start, err) }()

	var oldStatus model.TaskStatus

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := loadOwnedTask(ctx, tx.Tasks(), taskID, requesterID)
		if err != nil {
			return err
		}
		oldStatus = current.Status

		changes, err = s.applyPatch(current, p)
		if err != nil {
			return err
		}

		var newTags []model.Tag
		if p.Tags != nil {
			newTags, err = s.tags.EnsureExist(ctx, tx.Tags(), *p.Tags)
			if err != nil {
				return err
			}
			names := tagNames(newTags)
			if !sameTagSet(current.Tags, names) {
				changes["tags"] = FieldChange{Old: nonNilStrings(current.Tags), New: names}
			}
		}

		task = current
		if len(changes) == 0 {
			return nil
		}

		task.UpdatedAt = s.now()
		if err := tx.Tasks().Update(ctx, task); err != nil {
			return fmt.Errorf("обновление задачи: %w", err)
		}
		if _, ok := changes["tags"]; ok {
			if err := tx.Tasks().SetTags(ctx, task.ID, tagIDs(newTags)); err != nil {
				return fmt.Errorf("привязка тегов: %w", err)
			}
			task.Tags = tagNames(newTags)
		}

		return recordAudit(ctx, tx.Audit(), newAuditEvent(model.EventTaskUpdated, &requesterID, &task.ID, map[string]any{
			"changes": changes,
		}))
	})
	if err != nil {
		return nil, nil, err
	}
	if len(changes) == 0 {
		return task, changes, nil
	}

	if task.Status != oldStatus {
		s.metrics.TaskStatusChanged(string(oldStatus), string(task.Status))
	}
	s.metrics.AuditEventRecorded(string(model.EventTaskUpdated))

	s.logger.Info("Задача обновлена",
		slog.String("task_id", task.ID.String()),
		slog.Int("changed_fields", len(changes)),
	)
	return task, changes, nil
}

// applyPatch проверяет переданные поля, применяет их к задаче и
// возвращает изменения скалярных полей. Теги обрабатываются отдельно,
// так как требуют обращения к справочнику.
func (s *TaskService) applyPatch(task *model.Task, p UpdateTaskParams) (Changes, error) {
	changes := Changes{}

	if p.Title != nil {
		title, err := normalizeTitle(*p.Title)
		if err != nil {
			return nil, err
		}
		if title != task.Title {
			changes["title"] = FieldChange{Old: task.Title, New: title}
			task.Title = title
		}
	}

	if p.Description != nil {
		desc := normalizeDescription(p.Description)
		if !equalStringPtr(desc, task.Description) {
			changes["description"] = FieldChange{Old: task.Description, New: desc}
			task.Description = desc
		}
	}

	if p.Status != nil && *p.Status != task.Status {
		if err := taskstate.Validate(task.Status, *p.Status); err != nil {
			var te *taskstate.TransitionError
			if errors.As(err, &te) {
				return nil, validationError("%s", te.Message)
			}
			return nil, validationError("%v", err)
		}
		changes["status"] = FieldChange{Old: string(task.Status), New: string(*p.Status)}
		task.Status = *p.Status
	}

	if p.Priority != nil && *p.Priority != task.Priority {
		if _, err := model.ParseTaskPriority(string(*p.Priority)); err != nil {
			return nil, validationError("%v", err)
		}
		changes["priority"] = FieldChange{Old: string(task.Priority), New: string(*p.Priority)}
		task.Priority = *p.Priority
	}

	if p.DueDate != nil {
		due := p.DueDate.UTC()
		if p.Status != nil && *p.Status == model.StatusInProgress && due.Before(s.now()) {
			return nil, validationError("срок выполнения задачи в работе не может быть в прошлом")
		}
		if task.DueDate == nil || !task.DueDate.Equal(due) {
			changes["due_date"] = FieldChange{Old: formatDue(task.DueDate), New: formatDue(&due)}
			task.DueDate = &due
		}
	}

	return changes, nil
}

// Delete удаляет задачу владельца. Событие аудита записывается до
// физического удаления в той же транзакции. Содержимое вложений
// удаляется после коммита.
func (s *TaskService) Delete(ctx context.Context, taskID, requesterID uuid.UUID) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	var (
		task  *model.Task
		paths []string
	)
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		task, err = loadOwnedTask(ctx, tx.Tasks(), taskID, requesterID)
		if err != nil {
			return err
		}

		attachments, err := tx.Attachments().ListByTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("получение вложений задачи: %w", err)
		}
		for _, a := range attachments {
			paths = append(paths, a.StoragePath)
		}

		if err := recordAudit(ctx, tx.Audit(), newAuditEvent(model.EventTaskDeleted, &requesterID, &task.ID, map[string]any{
			"title":  task.Title,
			"status": string(task.Status),
		})); err != nil {
			return err
		}

		if err := tx.Tasks().Delete(ctx, taskID); err != nil {
			return fmt.Errorf("удаление задачи: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.TaskStatusChanged(string(task.Status), "")
	s.metrics.AuditEventRecorded(string(model.EventTaskDeleted))
	s.removeFiles(paths)

	s.logger.Info("Задача удалена",
		slog.String("task_id", taskID.String()),
		slog.Int("attachments", len(paths)),
	)
	return nil
}

// DeleteAllForOwner удаляет все задачи пользователя в транзакции tx
// вызывающей операции. Возвращает пути хранения вложений удалённых задач:
// их содержимое удаляется после коммита через afterOwnerDeleted.
func (s *TaskService) DeleteAllForOwner(ctx context.Context, tx repository.Store, ownerID uuid.UUID) ([]string, error) {
	paths, err := tx.Attachments().ListStoragePathsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("получение вложений пользователя: %w", err)
	}

	n, err := tx.Tasks().DeleteByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("удаление задач пользователя: %w", err)
	}

	s.logger.Info("Задачи пользователя удалены",
		slog.String("owner_id", ownerID.String()),
		slog.Int64("tasks", n),
	)
	return paths, nil
}

// afterOwnerDeleted удаляет содержимое вложений и пересчитывает gauge
// задач по статусам после коммита удаления учётной записи.
func (s *TaskService) afterOwnerDeleted(ctx context.Context, paths []string) {
	s.removeFiles(paths)
	if err := s.InitMetrics(ctx); err != nil {
		s.logger.Warn("Не удалось пересчитать метрики задач",
			slog.String("error", err.Error()),
		)
	}
}

// removeFiles удаляет содержимое вложений, удалённых каскадно вместе
// с задачами, и уменьшает gauge вложений. Ошибки только логируются.
func (s *TaskService) removeFiles(paths []string) {
	removeStoredFiles(s.files, s.metrics, s.logger, paths)
	for range paths {
		s.metrics.AttachmentRemoved()
	}
}

// removeStoredFiles удаляет файлы из хранилища без возврата ошибок:
// метаданные уже удалены, потерянный файл не должен ломать операцию.
func removeStoredFiles(files FileStorage, metrics Metrics, logger *slog.Logger, paths []string) {
	if files == nil {
		return
	}
	for _, p := range paths {
		if err := files.Delete(p); err != nil {
			metrics.AttachmentStorageDeleteFailed()
			logger.Warn("Не удалось удалить файл вложения",
				slog.String("storage_path", p),
				slog.String("error", err.Error()),
			)
		}
	}
}

// loadOwnedTask загружает задачу и проверяет владельца.
func loadOwnedTask(ctx context.Context, repo repository.TaskRepository, taskID, requesterID uuid.UUID) (*model.Task, error) {
	task, err := repo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("задача %s не найдена", taskID)
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	if task.OwnerID != requesterID {
		return nil, fmt.Errorf("%w: задача принадлежит другому пользователю", ErrForbidden)
	}
	return task, nil
}

// normalizeTitle обрезает пробелы и проверяет длину заголовка.
func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", validationError("заголовок задачи не может быть пустым")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", validationError("заголовок задачи длиннее %d символов", MaxTitleLength)
	}
	return title, nil
}

// normalizeDescription обрезает пробелы; пустое описание — nil.
func normalizeDescription(raw *string) *string {
	if raw == nil {
		return nil
	}
	d := strings.TrimSpace(*raw)
	if d == "" {
		return nil
	}
	return &d
}

// formatDue форматирует срок в ISO 8601 для журнала изменений.
func formatDue(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
