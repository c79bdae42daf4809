// reminders.go — напоминания о приближении срока задач.
//
// Проверка идемпотентна: для каждой задачи напоминание DUE_SOON
// записывается не более одного раза (уникальный индекс reminder_logs).
// Запускается как горутина с периодическим тикером (TT_REMINDER_INTERVAL).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/repository"
)

// errAlreadySent — напоминание уже записано параллельным обработчиком.
var errAlreadySent = errors.New("напоминание уже отправлено")

// ReminderService — поиск задач с близким сроком и отправка напоминаний.
type ReminderService struct {
	store       repository.Store
	metrics     Metrics
	interval    time.Duration
	windowHours int
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.Mutex // защита от параллельного запуска Sweep
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReminderService создаёт сервис напоминаний.
// interval и windowHours используются периодическим запуском (Start).
func NewReminderService(
	store repository.Store,
	metrics Metrics,
	interval time.Duration,
	windowHours int,
	logger *slog.Logger,
) *ReminderService {
	return &ReminderService{
		store:       store,
		metrics:     metrics,
		interval:    interval,
		windowHours: windowHours,
		logger:      logger.With(slog.String("component", "reminder_service")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Sweep отправляет напоминания DUE_SOON для незавершённых задач со сроком
// в [now, now+windowHours]. Возвращает количество обработанных задач.
// Ошибка по отдельной задаче логируется и не прерывает проверку.
func (s *ReminderService) Sweep(ctx context.Context, windowHours int) (processed int, err error) {
	if windowHours < 0 {
		return 0, validationError("window_hours не может быть отрицательным")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { s.metrics.ObserveReminderSweep(processed, time.Since(start), err) }()

	now := s.now()
	windowEnd := now.Add(time.Duration(windowHours) * time.Hour)

	tasks, err := s.store.Tasks().ListDueWithoutReminder(ctx, now, windowEnd, model.ReminderDueSoon)
	if err != nil {
		return 0, fmt.Errorf("выборка задач для напоминаний: %w", err)
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		exists, err := s.store.Reminders().Exists(ctx, task.ID, model.ReminderDueSoon)
		if err != nil {
			s.logger.Error("Ошибка проверки журнала напоминаний",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if exists {
			continue
		}

		if err := s.remind(ctx, task); err != nil {
			if errors.Is(err, errAlreadySent) {
				continue
			}
			s.logger.Error("Не удалось записать напоминание",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.metrics.AuditEventRecorded(string(model.EventReminderSent))
		processed++
	}

	s.logger.Info("Проверка напоминаний завершена",
		slog.Int("candidates", len(tasks)),
		slog.Int("processed", processed),
		slog.Duration("duration", time.Since(start)),
	)
	return processed, nil
}

// remind записывает напоминание и событие аудита в одной транзакции.
func (s *ReminderService) remind(ctx context.Context, task *model.Task) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		err := tx.Reminders().Create(ctx, &model.ReminderLog{
			ID:           uuid.New(),
			TaskID:       task.ID,
			ReminderType: model.ReminderDueSoon,
		})
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return errAlreadySent
			}
			return err
		}

		return recordAudit(ctx, tx.Audit(), newAuditEvent(model.EventReminderSent, &task.OwnerID, &task.ID, map[string]any{
			"due_date": formatDue(task.DueDate),
		}))
	})
}

// Start запускает фоновую горутину с периодическим тикером.
// Первая проверка выполняется сразу после старта.
func (s *ReminderService) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)

	s.logger.Info("Планировщик напоминаний запущен",
		slog.String("interval", s.interval.String()),
		slog.Int("window_hours", s.windowHours),
	)
}

// Stop останавливает фоновую горутину и дожидается её завершения.
func (s *ReminderService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Планировщик напоминаний остановлен")
}

// run — основной цикл фоновой горутины.
func (s *ReminderService) run(ctx context.Context) {
	defer close(s.done)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ReminderService) runOnce(ctx context.Context) {
	if _, err := s.Sweep(ctx, s.windowHours); err != nil && ctx.Err() == nil {
		s.logger.Error("Ошибка проверки напоминаний",
			slog.String("error", err.Error()),
		)
	}
}
