// deps.go — интерфейсы внешних зависимостей сервисного слоя.
package service

import (
	"io"
	"time"

	"github.com/matadcze/task-tracker/internal/storage/filestore"
)

// Результаты операций для метрик.
const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics — приёмник доменных метрик. Реализуется *metrics.Recorder.
type Metrics interface {
	ObserveTaskOperation(operation, result string, d time.Duration)
	TaskStatusChanged(from, to string)
	SetTasksByStatus(counts map[string]int)
	AuditEventRecorded(eventType string)

	ObserveAttachmentOperation(operation, result string, d time.Duration)
	AttachmentUploaded(sizeBytes int64)
	AttachmentRemoved()
	AttachmentStorageDeleteFailed()

	ObserveReminderSweep(processed int, d time.Duration, err error)
	LoginAttempt(result string)
	UserCacheLookup(hit bool)
	ChatMessage(interpreter, result string)
}

// FileStorage — хранилище содержимого вложений. Реализуется *filestore.FileStore.
type FileStorage interface {
	Save(storageName string, reader io.Reader) (*filestore.SaveResult, error)
	FullPath(storagePath string) string
	Exists(storagePath string) bool
	Delete(storagePath string) error
}

// resultOf возвращает метку результата операции для метрик.
func resultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
