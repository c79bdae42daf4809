package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события аудита.
type EventType string

const (
	EventTaskCreated       EventType = "TASK_CREATED"
	EventTaskUpdated       EventType = "TASK_UPDATED"
	EventTaskDeleted       EventType = "TASK_DELETED"
	EventAttachmentAdded   EventType = "ATTACHMENT_ADDED"
	EventAttachmentRemoved EventType = "ATTACHMENT_REMOVED"
	EventReminderSent      EventType = "REMINDER_SENT"
	EventLogin             EventType = "LOGIN"
	EventPasswordChanged   EventType = "PASSWORD_CHANGED"
)

// IsValid проверяет, является ли тип события известным.
func (e EventType) IsValid() bool {
	switch e {
	case EventTaskCreated, EventTaskUpdated, EventTaskDeleted,
		EventAttachmentAdded, EventAttachmentRemoved, EventReminderSent,
		EventLogin, EventPasswordChanged:
		return true
	default:
		return false
	}
}

// AuditEvent — неизменяемая запись журнала аудита.
// Ссылки на пользователя, задачу и вложение обнуляются при удалении сущностей.
type AuditEvent struct {
	ID           uuid.UUID
	EventType    EventType
	UserID       *uuid.UUID
	TaskID       *uuid.UUID
	AttachmentID *uuid.UUID
	Details      map[string]any
	CreatedAt    time.Time
}

// ReminderType — тип напоминания.
type ReminderType string

// ReminderDueSoon — напоминание о приближении срока задачи.
const ReminderDueSoon ReminderType = "DUE_SOON"

// ReminderLog — факт отправки напоминания. Пара (TaskID, ReminderType) уникальна.
type ReminderLog struct {
	ID           uuid.UUID
	TaskID       uuid.UUID
	ReminderType ReminderType
	SentAt       time.Time
}
