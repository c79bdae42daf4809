package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus — статус задачи.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
	StatusBlocked    TaskStatus = "BLOCKED"
)

// AllStatuses — все статусы задачи (порядок используется в метриках).
var AllStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusDone, StatusBlocked}

// ParseTaskStatus преобразует строку в TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(s)
	switch st {
	case StatusTodo, StatusInProgress, StatusDone, StatusBlocked:
		return st, nil
	default:
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: TODO, IN_PROGRESS, DONE, BLOCKED", s)
	}
}

// TaskPriority — приоритет задачи.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "LOW"
	PriorityMedium   TaskPriority = "MEDIUM"
	PriorityHigh     TaskPriority = "HIGH"
	PriorityCritical TaskPriority = "CRITICAL"
)

// ParseTaskPriority преобразует строку в TaskPriority.
func ParseTaskPriority(s string) (TaskPriority, error) {
	p := TaskPriority(s)
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, nil
	default:
		return "", fmt.Errorf("недопустимый приоритет: %q, допустимые: LOW, MEDIUM, HIGH, CRITICAL", s)
	}
}

// Task — задача пользователя.
// Хранится в таблице tasks, теги — через task_tags.
type Task struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	// Title — заголовок (1-500 символов, без пробелов по краям)
	Title string
	// Description — описание (nil, если не задано)
	Description *string
	Status      TaskStatus
	Priority    TaskPriority
	// DueDate — срок выполнения в UTC (опционально)
	DueDate *time.Time
	// Tags — имена тегов задачи
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tag — глобально уникальный тег. Уникальность — по имени без учёта регистра.
type Tag struct {
	ID   uuid.UUID
	Name string
}

// Page — страница результатов со счётчиком всех записей, подходящих под фильтр.
type Page[T any] struct {
	Items    []T
	Page     int
	PageSize int
	Total    int
}
