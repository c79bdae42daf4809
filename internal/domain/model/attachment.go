package model

import (
	"time"

	"github.com/google/uuid"
)

// Attachment — файл, прикреплённый к задаче.
type Attachment struct {
	ID     uuid.UUID
	TaskID uuid.UUID
	// Filename — отображаемое (санитизированное) имя файла
	Filename    string
	ContentType string
	SizeBytes   int64
	// StoragePath — имя файла в хранилище (случайное, не связано с Filename)
	StoragePath string
	UploadedBy  *uuid.UUID
	CreatedAt   time.Time
}
