// Пакет metrics — Prometheus-метрики доменных операций Task Tracker.
// Регистрирует метрики с префиксом tt_ в переданном registerer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты операций для лейбла result.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Recorder — набор доменных метрик.
type Recorder struct {
	taskOperations        *prometheus.CounterVec
	taskOperationDuration *prometheus.HistogramVec
	tasksByStatus         *prometheus.GaugeVec
	auditEvents           *prometheus.CounterVec

	attachmentOperations        *prometheus.CounterVec
	attachmentOperationDuration *prometheus.HistogramVec
	attachmentsTotal            prometheus.Gauge
	attachmentSize              prometheus.Histogram
	storageDeleteFailures       prometheus.Counter

	reminderSweeps        *prometheus.CounterVec
	remindersSent         prometheus.Counter
	reminderSweepDuration prometheus.Histogram

	loginAttempts   *prometheus.CounterVec
	userCacheHits   prometheus.Counter
	userCacheMisses prometheus.Counter
	chatMessages    *prometheus.CounterVec
}

// New создаёт Recorder и регистрирует метрики в reg.
// nil — глобальный prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		taskOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tt_task_operations_total",
			Help: "Количество операций с задачами по типу и результату.",
		}, []string{"operation", "result"}),
		taskOperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tt_task_operation_duration_seconds",
			Help:    "Длительность операций с задачами в секундах.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		tasksByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tt_tasks",
			Help: "Текущее количество задач по статусам.",
		}, []string{"status"}),
		auditEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tt_audit_events_total",
			Help: "Количество записанных событий аудита по типу.",
		}, []string{"event_type"}),

		attachmentOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tt_attachment_operations_total",
			Help: "Количество операций с вложениями по типу и результату.",
		}, []string{"operation", "result"}),
		attachmentOperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tt_attachment_operation_duration_seconds",
			Help:    "Длительность операций с вложениями в секундах.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		attachmentsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "tt_attachments",
			Help: "Количество вложений, загруженных или удалённых этим экземпляром (сальдо).",
		}),
		attachmentSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tt_attachment_size_bytes",
			Help:    "Размер загруженных вложений в байтах.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		storageDeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tt_attachment_storage_delete_failures_total",
			Help: "Количество неудачных удалений содержимого вложений из хранилища.",
		}),

		reminderSweeps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tt_reminder_sweeps_total",
			Help: "Количество запусков проверки напоминаний по результату.",
		}, []string{"result"}),
		remindersSent: f.NewCounter(prometheus.CounterOpts{
			Name: "tt_reminders_sent_total",
			Help: "Количество отправленных напоминаний DUE_SOON.",
		}),
		reminderSweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tt_reminder_sweep_duration_seconds",
			Help:    "Длительность проверки напоминаний в секундах.",
			Buckets: prometheus.DefBuckets,
		}),

		loginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tt_login_attempts_total",
			Help: "Количество попыток входа по результату.",
		}, []string{"result"}),
		userCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "tt_user_cache_hits_total",
			Help: "Общее количество попаданий в LRU-кэш пользователей.",
		}),
		userCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "tt_user_cache_misses_total",
			Help: "Общее количество промахов LRU-кэша пользователей.",
		}),
		chatMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tt_chat_messages_total",
			Help: "Количество сообщений чата по интерпретатору и результату.",
		}, []string{"interpreter", "result"}),
	}
}

// ObserveTaskOperation фиксирует операцию с задачей.
func (r *Recorder) ObserveTaskOperation(operation, result string, d time.Duration) {
	r.taskOperations.WithLabelValues(operation, result).Inc()
	r.taskOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// TaskStatusChanged корректирует gauge статусов. Пустой from — задача создана,
// пустой to — задача удалена.
func (r *Recorder) TaskStatusChanged(from, to string) {
	if from != "" {
		r.tasksByStatus.WithLabelValues(from).Dec()
	}
	if to != "" {
		r.tasksByStatus.WithLabelValues(to).Inc()
	}
}

// SetTasksByStatus устанавливает gauge статусов (инициализация при старте).
func (r *Recorder) SetTasksByStatus(counts map[string]int) {
	for status, n := range counts {
		r.tasksByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// AuditEventRecorded фиксирует запись события аудита.
func (r *Recorder) AuditEventRecorded(eventType string) {
	r.auditEvents.WithLabelValues(eventType).Inc()
}

// ObserveAttachmentOperation фиксирует операцию с вложением и её длительность.
func (r *Recorder) ObserveAttachmentOperation(operation, result string, d time.Duration) {
	r.attachmentOperations.WithLabelValues(operation, result).Inc()
	r.attachmentOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// AttachmentUploaded фиксирует успешную загрузку вложения.
func (r *Recorder) AttachmentUploaded(sizeBytes int64) {
	r.attachmentsTotal.Inc()
	r.attachmentSize.Observe(float64(sizeBytes))
}

// AttachmentRemoved фиксирует удаление вложения.
func (r *Recorder) AttachmentRemoved() {
	r.attachmentsTotal.Dec()
}

// AttachmentStorageDeleteFailed фиксирует неудачное удаление содержимого из хранилища.
func (r *Recorder) AttachmentStorageDeleteFailed() {
	r.storageDeleteFailures.Inc()
}

// ObserveReminderSweep фиксирует запуск проверки напоминаний.
func (r *Recorder) ObserveReminderSweep(processed int, d time.Duration, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	r.reminderSweeps.WithLabelValues(result).Inc()
	r.remindersSent.Add(float64(processed))
	r.reminderSweepDuration.Observe(d.Seconds())
}

// LoginAttempt фиксирует попытку входа (success, invalid, locked, inactive).
func (r *Recorder) LoginAttempt(result string) {
	r.loginAttempts.WithLabelValues(result).Inc()
}

// UserCacheLookup фиксирует попадание или промах кэша пользователей.
func (r *Recorder) UserCacheLookup(hit bool) {
	if hit {
		r.userCacheHits.Inc()
		return
	}
	r.userCacheMisses.Inc()
}

// ChatMessage фиксирует обработку сообщения чата.
func (r *Recorder) ChatMessage(interpreter, result string) {
	r.chatMessages.WithLabelValues(interpreter, result).Inc()
}
