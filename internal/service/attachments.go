// attachments.go — сервис вложений задач: загрузка с проверкой имени,
// типа и размера, выдача метаданных и файлов, удаление.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/repository"
)

// Ограничения вложений.
const (
	// MaxAttachmentsPerTask — максимальное количество вложений одной задачи.
	MaxAttachmentsPerTask = 50
	// MaxFilenameLength — максимальная длина отображаемого имени файла в символах.
	MaxFilenameLength = 255
	// DefaultContentType — тип содержимого, если клиент его не передал.
	DefaultContentType = "application/octet-stream"
)

// allowedContentTypes — whitelist MIME-типов.
var allowedContentTypes = stringSet(
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
	"text/csv",
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/svg+xml",
	"application/zip",
	"application/x-7z-compressed",
	"application/x-tar",
	"application/gzip",
	"application/json",
	"application/xml",
	"application/octet-stream",
)

// forbiddenExtensions — исполняемые и скриптовые расширения, запрещённые всегда.
var forbiddenExtensions = stringSet(
	".exe", ".dll", ".bat", ".cmd", ".sh", ".ps1",
	".scr", ".com", ".pif", ".vbs", ".js", ".jar",
)

// allowedExtensions — whitelist расширений. Файлы без расширения допускаются.
var allowedExtensions = stringSet(
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".csv",
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg",
	".zip", ".7z", ".tar", ".gz", ".json", ".xml",
)

func stringSet(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// UploadParams — загружаемый файл.
type UploadParams struct {
	// Filename — имя файла от клиента (может содержать путь)
	Filename string
	// ContentType — MIME-тип от клиента, пусто = application/octet-stream
	ContentType string
	// Size — заявленный размер в байтах
	Size int64
	// Content — содержимое файла
	Content io.Reader
}

// AttachmentService — бизнес-логика вложений.
type AttachmentService struct {
	store        repository.Store
	files        FileStorage
	metrics      Metrics
	maxSizeBytes int64
	logger       *slog.Logger
}

// NewAttachmentService создаёт сервис вложений.
func NewAttachmentService(
	store repository.Store,
	files FileStorage,
	metrics Metrics,
	maxSizeBytes int64,
	logger *slog.Logger,
) *AttachmentService {
	return &AttachmentService{
		store:        store,
		files:        files,
		metrics:      metrics,
		maxSizeBytes: maxSizeBytes,
		logger:       logger.With(slog.String("component", "attachment_service")),
	}
}

// Upload проверяет и сохраняет вложение задачи taskID.
// Метаданные и событие аудита пишутся в одной транзакции; при её
// ошибке сохранённое содержимое удаляется.
func (s *AttachmentService) Upload(ctx context.Context, taskID, userID uuid.UUID, p UploadParams) (a *model.Attachment, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveAttachmentOperation("upload", resultOf(err), time.Since(start)) }()

	if _, err := loadOwnedTask(ctx, s.store.Tasks(), taskID, userID); err != nil {
		return nil, err
	}

	filename := SanitizeFilename(p.Filename)
	if filename == "" {
		return nil, validationError("имя файла не может быть пустым")
	}
	ext := fileExtension(filename)
	if forbiddenExtensions[ext] {
		return nil, validationError("тип файла %q запрещён по соображениям безопасности", ext)
	}
	if ext != "" && !allowedExtensions[ext] {
		return nil, validationError("тип файла %q не разрешён, допустимые: %s", ext, strings.Join(sortedKeys(allowedExtensions), ", "))
	}
	if utf8.RuneCountInString(filename) > MaxFilenameLength {
		return nil, validationError("имя файла длиннее %d символов", MaxFilenameLength)
	}

	contentType := strings.TrimSpace(p.ContentType)
	if contentType == "" {
		contentType = DefaultContentType
	}
	if !allowedContentTypes[contentType] {
		return nil, validationError("тип содержимого %q не разрешён", contentType)
	}

	if err := s.checkSize(p.Size); err != nil {
		return nil, err
	}

	count, err := s.store.Attachments().CountByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("подсчёт вложений: %w", err)
	}
	if count >= MaxAttachmentsPerTask {
		return nil, validationError("достигнуто максимальное количество вложений задачи (%d)", MaxAttachmentsPerTask)
	}

	storageName, err := storageFilename(ext)
	if err != nil {
		return nil, err
	}

	// Читаем не больше max+1 байт: заявленный размер может не совпадать с фактическим
	saved, err := s.files.Save(storageName, io.LimitReader(p.Content, s.maxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("сохранение файла: %w", err)
	}
	if err := s.checkSize(saved.Size); err != nil {
		s.discard(saved.StoragePath)
		return nil, err
	}

	a = &model.Attachment{
		ID:          uuid.New(),
		TaskID:      taskID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   saved.Size,
		StoragePath: saved.StoragePath,
		UploadedBy:  &userID,
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		// Повторная проверка под блокировкой строки задачи
		count, err := tx.Attachments().CountByTaskLocked(ctx, taskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError("задача %s не найдена", taskID)
			}
			return fmt.Errorf("подсчёт вложений: %w", err)
		}
		if count >= MaxAttachmentsPerTask {
			return validationError("достигнуто максимальное количество вложений задачи (%d)", MaxAttachmentsPerTask)
		}

		if err := tx.Attachments().Create(ctx, a); err != nil {
			return fmt.Errorf("сохранение метаданных вложения: %w", err)
		}
		event := newAuditEvent(model.EventAttachmentAdded, &userID, &taskID, map[string]any{
			"filename":     a.Filename,
			"size_bytes":   a.SizeBytes,
			"content_type": a.ContentType,
		})
		event.AttachmentID = &a.ID
		return recordAudit(ctx, tx.Audit(), event)
	})
	if err != nil {
		s.discard(saved.StoragePath)
		return nil, err
	}

	s.metrics.AttachmentUploaded(a.SizeBytes)
	s.metrics.AuditEventRecorded(string(model.EventAttachmentAdded))

	s.logger.Info("Вложение загружено",
		slog.String("attachment_id", a.ID.String()),
		slog.String("task_id", taskID.String()),
		slog.Int64("size", a.SizeBytes),
		slog.String("checksum", saved.Checksum),
	)
	return a, nil
}

// checkSize проверяет, что размер в пределах (0, maxSizeBytes].
func (s *AttachmentService) checkSize(size int64) error {
	if size == 0 {
		return validationError("файл не может быть пустым")
	}
	if size > s.maxSizeBytes {
		const mb = 1024 * 1024
		return validationError("размер файла (%.2f MB) превышает максимально допустимый (%g MB)",
			float64(size)/mb, float64(s.maxSizeBytes)/mb)
	}
	return nil
}

// discard удаляет сохранённое содержимое после неудачной загрузки.
func (s *AttachmentService) discard(storagePath string) {
	if err := s.files.Delete(storagePath); err != nil {
		s.logger.Warn("Не удалось удалить файл после ошибки загрузки",
			slog.String("storage_path", storagePath),
			slog.String("error", err.Error()),
		)
	}
}

// List возвращает вложения задачи, новые первыми.
func (s *AttachmentService) List(ctx context.Context, taskID, userID uuid.UUID) ([]*model.Attachment, error) {
	if _, err := loadOwnedTask(ctx, s.store.Tasks(), taskID, userID); err != nil {
		return nil, err
	}

	items, err := s.store.Attachments().ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("получение вложений: %w", err)
	}
	if items == nil {
		items = []*model.Attachment{}
	}
	return items, nil
}

// Get возвращает вложение задачи. Вложение другой задачи — ErrNotFound.
func (s *AttachmentService) Get(ctx context.Context, taskID, attachmentID, userID uuid.UUID) (*model.Attachment, error) {
	return s.get(ctx, s.store, taskID, attachmentID, userID)
}

func (s *AttachmentService) get(ctx context.Context, store repository.Store, taskID, attachmentID, userID uuid.UUID) (*model.Attachment, error) {
	if _, err := loadOwnedTask(ctx, store.Tasks(), taskID, userID); err != nil {
		return nil, err
	}

	a, err := store.Attachments().GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("вложение %s не найдено", attachmentID)
		}
		return nil, fmt.Errorf("получение вложения: %w", err)
	}
	if a.TaskID != taskID {
		return nil, notFoundError("вложение %s не найдено", attachmentID)
	}
	return a, nil
}

// ResolveFilePath возвращает путь к содержимому вложения на диске.
// Отсутствие файла в хранилище — ErrNotFound.
func (s *AttachmentService) ResolveFilePath(ctx context.Context, taskID, attachmentID, userID uuid.UUID) (string, *model.Attachment, error) {
	a, err := s.Get(ctx, taskID, attachmentID, userID)
	if err != nil {
		return "", nil, err
	}
	if !s.files.Exists(a.StoragePath) {
		return "", nil, notFoundError("файл вложения отсутствует в хранилище")
	}
	return s.files.FullPath(a.StoragePath), a, nil
}

// Delete удаляет вложение. Событие аудита пишется до удаления,
// ошибка удаления содержимого не прерывает операцию.
func (s *AttachmentService) Delete(ctx context.Context, taskID, attachmentID, userID uuid.UUID) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveAttachmentOperation("delete", resultOf(err), time.Since(start)) }()

	var a *model.Attachment
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		a, err = s.get(ctx, tx, taskID, attachmentID, userID)
		if err != nil {
			return err
		}

		event := newAuditEvent(model.EventAttachmentRemoved, &userID, &taskID, map[string]any{
			"filename":     a.Filename,
			"size_bytes":   a.SizeBytes,
			"content_type": a.ContentType,
		})
		event.AttachmentID = &a.ID
		if err := recordAudit(ctx, tx.Audit(), event); err != nil {
			return err
		}

		if err := tx.Attachments().Delete(ctx, a.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError("вложение %s не найдено", attachmentID)
			}
			return fmt.Errorf("удаление вложения: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	removeStoredFiles(s.files, s.metrics, s.logger, []string{a.StoragePath})

	s.metrics.AttachmentRemoved()
	s.metrics.AuditEventRecorded(string(model.EventAttachmentRemoved))

	s.logger.Info("Вложение удалено",
		slog.String("attachment_id", a.ID.String()),
		slog.String("task_id", taskID.String()),
	)
	return nil
}

// SanitizeFilename оставляет только имя файла без пути, нормализует
// Unicode (NFKC) и удаляет нулевые байты.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	if name == "/" || name == "." || name == ".." {
		return ""
	}
	name = norm.NFKC.String(name)
	return strings.ReplaceAll(name, "\x00", "")
}

// fileExtension возвращает расширение в нижнем регистре: часть имени
// от последней точки. Точка в начале имени (.bashrc) и в конце (dot.)
// расширения не задают, поэтому у "..exe" расширение ".exe".
func fileExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i >= len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i:])
}

// storageFilename генерирует случайное имя файла в хранилище:
// 32 hex-символа и расширение исходного файла.
func storageFilename(ext string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("генерация имени файла: %w", err)
	}
	return hex.EncodeToString(buf) + ext, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
