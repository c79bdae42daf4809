package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_TaskStatusGauge(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.SetTasksByStatus(map[string]int{"TODO": 2})
	r.TaskStatusChanged("", "TODO")
	r.TaskStatusChanged("TODO", "DONE")

	if got := testutil.ToFloat64(r.tasksByStatus.WithLabelValues("TODO")); got != 2 {
		t.Errorf("tt_tasks{status=TODO} = %v, ожидалось 2", got)
	}
	if got := testutil.ToFloat64(r.tasksByStatus.WithLabelValues("DONE")); got != 1 {
		t.Errorf("tt_tasks{status=DONE} = %v, ожидалось 1", got)
	}

	r.TaskStatusChanged("DONE", "")
	if got := testutil.ToFloat64(r.tasksByStatus.WithLabelValues("DONE")); got != 0 {
		t.Errorf("tt_tasks{status=DONE} после удаления = %v, ожидалось 0", got)
	}
}

func TestRecorder_Operations(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.ObserveTaskOperation("create", ResultSuccess, 10*time.Millisecond)
	r.ObserveTaskOperation("create", ResultError, time.Millisecond)
	r.ObserveTaskOperation("create", ResultSuccess, time.Millisecond)

	if got := testutil.ToFloat64(r.taskOperations.WithLabelValues("create", ResultSuccess)); got != 2 {
		t.Errorf("успешных create = %v, ожидалось 2", got)
	}
	if got := testutil.ToFloat64(r.taskOperations.WithLabelValues("create", ResultError)); got != 1 {
		t.Errorf("ошибочных create = %v, ожидалось 1", got)
	}
}

func TestRecorder_ReminderSweep(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.ObserveReminderSweep(3, time.Second, nil)
	r.ObserveReminderSweep(0, time.Second, errors.New("db down"))

	if got := testutil.ToFloat64(r.remindersSent); got != 3 {
		t.Errorf("tt_reminders_sent_total = %v, ожидалось 3", got)
	}
	if got := testutil.ToFloat64(r.reminderSweeps.WithLabelValues(ResultError)); got != 1 {
		t.Errorf("ошибочных проверок = %v, ожидалось 1", got)
	}
}

func TestRecorder_Attachments(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.AttachmentUploaded(2048)
	r.AttachmentUploaded(4096)
	r.AttachmentRemoved()
	r.AttachmentStorageDeleteFailed()

	if got := testutil.ToFloat64(r.attachmentsTotal); got != 1 {
		t.Errorf("tt_attachments = %v, ожидалось 1", got)
	}
	if got := testutil.ToFloat64(r.storageDeleteFailures); got != 1 {
		t.Errorf("tt_attachment_storage_delete_failures_total = %v, ожидалось 1", got)
	}
}

func TestRecorder_AttachmentOperationDuration(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.ObserveAttachmentOperation("upload", ResultSuccess, 30*time.Millisecond)
	r.ObserveAttachmentOperation("upload", ResultError, 5*time.Millisecond)
	r.ObserveAttachmentOperation("delete", ResultSuccess, time.Millisecond)

	if got := testutil.ToFloat64(r.attachmentOperations.WithLabelValues("upload", ResultError)); got != 1 {
		t.Errorf("ошибочных upload = %v, ожидалось 1", got)
	}
	if n := testutil.CollectAndCount(r.attachmentOperationDuration, "tt_attachment_operation_duration_seconds"); n != 2 {
		t.Errorf("рядов гистограммы = %d, ожидалось 2 (upload, delete)", n)
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	// Два Recorder в разных registry не конфликтуют
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestRecorder_UserCache(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.UserCacheLookup(false)
	r.UserCacheLookup(true)
	r.UserCacheLookup(true)

	if got := testutil.ToFloat64(r.userCacheHits); got != 2 {
		t.Errorf("tt_user_cache_hits_total = %v, ожидалось 2", got)
	}
	if got := testutil.ToFloat64(r.userCacheMisses); got != 1 {
		t.Errorf("tt_user_cache_misses_total = %v, ожидалось 1", got)
	}
}
