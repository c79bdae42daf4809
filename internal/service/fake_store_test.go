package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/metrics"
	"github.com/matadcze/task-tracker/internal/repository"
	"github.com/matadcze/task-tracker/internal/storage/filestore"
)

// --- In-memory Store ---

// memData — состояние in-memory хранилища.
type memData struct {
	users       map[uuid.UUID]model.User
	tokens      map[uuid.UUID]model.RefreshToken
	tasks       map[uuid.UUID]model.Task
	taskTags    map[uuid.UUID][]uuid.UUID
	tags        map[uuid.UUID]model.Tag
	attachments map[uuid.UUID]model.Attachment
	audit       []model.AuditEvent
	reminders   map[string]model.ReminderLog
	seq         int
}

func newMemData() *memData {
	return &memData{
		users:       map[uuid.UUID]model.User{},
		tokens:      map[uuid.UUID]model.RefreshToken{},
		tasks:       map[uuid.UUID]model.Task{},
		taskTags:    map[uuid.UUID][]uuid.UUID{},
		tags:        map[uuid.UUID]model.Tag{},
		attachments: map[uuid.UUID]model.Attachment{},
		reminders:   map[string]model.ReminderLog{},
	}
}

// clone — копия состояния для отката транзакции.
func (d *memData) clone() *memData {
	c := &memData{
		users:       maps.Clone(d.users),
		tokens:      maps.Clone(d.tokens),
		tasks:       maps.Clone(d.tasks),
		taskTags:    make(map[uuid.UUID][]uuid.UUID, len(d.taskTags)),
		tags:        maps.Clone(d.tags),
		attachments: maps.Clone(d.attachments),
		audit:       slices.Clone(d.audit),
		reminders:   maps.Clone(d.reminders),
		seq:         d.seq,
	}
	for k, v := range d.taskTags {
		c.taskTags[k] = slices.Clone(v)
	}
	return c
}

// memStore — реализация repository.Store в памяти.
// Транзакция — снимок состояния, восстанавливаемый при ошибке.
type memStore struct {
	mu   *sync.Mutex
	data **memData
	inTx bool

	// auditErr — ошибка, возвращаемая при записи аудита
	auditErr error
	// reminderCreateHook вызывается перед записью напоминания
	reminderCreateHook func()
}

func newMemStore() *memStore {
	d := newMemData()
	return &memStore{mu: &sync.Mutex{}, data: &d}
}

func (s *memStore) d() *memData { return *s.data }

func (s *memStore) Users() repository.UserRepository                 { return memUsers{s} }
func (s *memStore) RefreshTokens() repository.RefreshTokenRepository { return memTokens{s} }
func (s *memStore) Tasks() repository.TaskRepository                 { return memTasks{s} }
func (s *memStore) Tags() repository.TagRepository                   { return memTags{s} }
func (s *memStore) Attachments() repository.AttachmentRepository     { return memAttachments{s} }
func (s *memStore) Audit() repository.AuditRepository                { return memAudit{s} }
func (s *memStore) Reminders() repository.ReminderRepository         { return memReminders{s} }

func (s *memStore) WithTx(_ context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	snapshot := s.d().clone()
	s.mu.Unlock()

	tx := *s
	tx.inTx = true
	if err := fn(&tx); err != nil {
		s.mu.Lock()
		*s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock блокирует хранилище на время операции репозитория.
func (s *memStore) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// auditEvents возвращает копию журнала аудита.
func (s *memStore) auditEvents() []model.AuditEvent {
	defer s.lock()()
	return slices.Clone(s.d().audit)
}

// auditOfType возвращает события указанного типа.
func (s *memStore) auditOfType(et model.EventType) []model.AuditEvent {
	var result []model.AuditEvent
	for _, e := range s.auditEvents() {
		if e.EventType == et {
			result = append(result, e)
		}
	}
	return result
}

// putTask добавляет задачу напрямую, минуя сервис (например, с прошедшим сроком).
func (s *memStore) putTask(t model.Task) {
	defer s.lock()()
	d := s.d()
	d.seq++
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC().Add(time.Duration(d.seq) * time.Millisecond)
	}
	d.tasks[t.ID] = t
}

// --- users ---

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	defer r.s.lock()()
	for _, existing := range r.s.d().users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.d().users[u.ID] = *u
	return nil
}

func (r memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	defer r.s.lock()()
	u, ok := r.s.d().users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.d().users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) Update(_ context.Context, u *model.User) error {
	defer r.s.lock()()
	if _, ok := r.s.d().users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	r.s.d().users[u.ID] = *u
	return nil
}

func (r memUsers) Delete(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	d := r.s.d()
	if _, ok := d.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(d.users, id)
	for tid, t := range d.tokens {
		if t.UserID == id {
			delete(d.tokens, tid)
		}
	}
	for i := range d.audit {
		if d.audit[i].UserID != nil && *d.audit[i].UserID == id {
			d.audit[i].UserID = nil
		}
	}
	return nil
}

// --- refresh tokens ---

type memTokens struct{ s *memStore }

func (r memTokens) Create(_ context.Context, t *model.RefreshToken) error {
	defer r.s.lock()()
	t.CreatedAt = time.Now().UTC()
	r.s.d().tokens[t.ID] = *t
	return nil
}

func (r memTokens) GetByHash(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	defer r.s.lock()()
	for _, t := range r.s.d().tokens {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memTokens) Revoke(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	t, ok := r.s.d().tokens[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Revoked = true
	r.s.d().tokens[id] = t
	return nil
}

func (r memTokens) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	defer r.s.lock()()
	var n int64
	for id, t := range r.s.d().tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			r.s.d().tokens[id] = t
			n++
		}
	}
	return n, nil
}

// --- tags ---

type memTags struct{ s *memStore }

func (r memTags) FindByNames(_ context.Context, names []string) ([]model.Tag, error) {
	defer r.s.lock()()
	var result []model.Tag
	for _, t := range r.s.d().tags {
		for _, n := range names {
			if strings.EqualFold(t.Name, n) {
				result = append(result, t)
				break
			}
		}
	}
	return result, nil
}

func (r memTags) GetOrCreate(_ context.Context, name string) (*model.Tag, error) {
	defer r.s.lock()()
	for _, t := range r.s.d().tags {
		if strings.EqualFold(t.Name, name) {
			return &t, nil
		}
	}
	t := model.Tag{ID: uuid.New(), Name: name}
	r.s.d().tags[t.ID] = t
	return &t, nil
}

// --- tasks ---

type memTasks struct{ s *memStore }

// withTags возвращает копию задачи с именами тегов.
func (r memTasks) withTags(t model.Task) *model.Task {
	d := r.s.d()
	t.Tags = []string{}
	for _, id := range d.taskTags[t.ID] {
		t.Tags = append(t.Tags, d.tags[id].Name)
	}
	return &t
}

func (r memTasks) Create(_ context.Context, t *model.Task) error {
	defer r.s.lock()()
	d := r.s.d()
	if _, ok := d.tasks[t.ID]; ok {
		return repository.ErrConflict
	}
	d.seq++
	stored := *t
	stored.Tags = nil
	// Разносим created_at, чтобы сортировка по умолчанию была детерминированной
	stored.CreatedAt = stored.CreatedAt.Add(time.Duration(d.seq) * time.Microsecond)
	d.tasks[t.ID] = stored
	return nil
}

func (r memTasks) GetByID(_ context.Context, id uuid.UUID) (*model.Task, error) {
	defer r.s.lock()()
	t, ok := r.s.d().tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.withTags(t), nil
}

func (r memTasks) List(_ context.Context, f repository.TaskFilter) ([]*model.Task, int, error) {
	defer r.s.lock()()
	var matched []*model.Task
	for _, stored := range r.s.d().tasks {
		t := r.withTags(stored)
		if t.OwnerID != f.OwnerID ||
			(f.Status != nil && t.Status != *f.Status) ||
			(f.Priority != nil && t.Priority != *f.Priority) ||
			(f.DueBefore != nil && (t.DueDate == nil || t.DueDate.After(*f.DueBefore))) ||
			(f.DueAfter != nil && (t.DueDate == nil || t.DueDate.Before(*f.DueAfter))) {
			continue
		}
		if len(f.Tags) > 0 && !hasAnyTag(t.Tags, f.Tags) {
			continue
		}
		if f.Search != nil {
			q := strings.ToLower(*f.Search)
			desc := ""
			if t.Description != nil {
				desc = *t.Description
			}
			if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(desc), q) {
				continue
			}
		}
		matched = append(matched, t)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if f.SortOrder == "desc" {
			return taskLess(matched[j], matched[i], f.SortBy)
		}
		return taskLess(matched[i], matched[j], f.SortBy)
	})

	total := len(matched)
	if f.Offset >= total {
		return []*model.Task{}, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return matched[f.Offset:end], total, nil
}

func taskLess(a, b *model.Task, field string) bool {
	switch field {
	case "title":
		return a.Title < b.Title
	case "priority":
		return a.Priority < b.Priority
	case "status":
		return a.Status < b.Status
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt)
	case "due_date":
		if a.DueDate == nil || b.DueDate == nil {
			return a.DueDate != nil
		}
		return a.DueDate.Before(*b.DueDate)
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func hasAnyTag(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func (r memTasks) Update(_ context.Context, t *model.Task) error {
	defer r.s.lock()()
	d := r.s.d()
	stored, ok := d.tasks[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Title = t.Title
	stored.Description = t.Description
	stored.Status = t.Status
	stored.Priority = t.Priority
	stored.DueDate = t.DueDate
	stored.UpdatedAt = t.UpdatedAt
	d.tasks[t.ID] = stored
	return nil
}

func (r memTasks) SetTags(_ context.Context, taskID uuid.UUID, tagIDs []uuid.UUID) error {
	defer r.s.lock()()
	r.s.d().taskTags[taskID] = slices.Clone(tagIDs)
	return nil
}

// deleteTask удаляет задачу с каскадом. Вызывается под блокировкой.
func (r memTasks) deleteTask(id uuid.UUID) {
	d := r.s.d()
	delete(d.tasks, id)
	delete(d.taskTags, id)
	for aid, a := range d.attachments {
		if a.TaskID == id {
			delete(d.attachments, aid)
		}
	}
	for key, l := range d.reminders {
		if l.TaskID == id {
			delete(d.reminders, key)
		}
	}
	for i := range d.audit {
		if d.audit[i].TaskID != nil && *d.audit[i].TaskID == id {
			d.audit[i].TaskID = nil
		}
	}
}

func (r memTasks) Delete(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	if _, ok := r.s.d().tasks[id]; !ok {
		return repository.ErrNotFound
	}
	r.deleteTask(id)
	return nil
}

func (r memTasks) DeleteByOwner(_ context.Context, ownerID uuid.UUID) (int64, error) {
	defer r.s.lock()()
	var n int64
	for id, t := range r.s.d().tasks {
		if t.OwnerID == ownerID {
			r.deleteTask(id)
			n++
		}
	}
	return n, nil
}

func (r memTasks) ListDueWithoutReminder(
	_ context.Context, from, to time.Time, reminderType model.ReminderType,
) ([]*model.Task, error) {
	defer r.s.lock()()
	var result []*model.Task
	for _, t := range r.s.d().tasks {
		if t.Status == model.StatusDone || t.DueDate == nil ||
			t.DueDate.Before(from) || t.DueDate.After(to) {
			continue
		}
		if _, ok := r.s.d().reminders[reminderKey(t.ID, reminderType)]; ok {
			continue
		}
		result = append(result, r.withTags(t))
	}
	return result, nil
}

func (r memTasks) CountByStatus(_ context.Context) (map[model.TaskStatus]int, error) {
	defer r.s.lock()()
	counts := map[model.TaskStatus]int{}
	for _, t := range r.s.d().tasks {
		counts[t.Status]++
	}
	return counts, nil
}

// --- attachments ---

type memAttachments struct{ s *memStore }

func (r memAttachments) Create(_ context.Context, a *model.Attachment) error {
	defer r.s.lock()()
	d := r.s.d()
	d.seq++
	a.CreatedAt = time.Now().UTC().Add(time.Duration(d.seq) * time.Microsecond)
	d.attachments[a.ID] = *a
	return nil
}

func (r memAttachments) GetByID(_ context.Context, id uuid.UUID) (*model.Attachment, error) {
	defer r.s.lock()()
	a, ok := r.s.d().attachments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r memAttachments) ListByTask(_ context.Context, taskID uuid.UUID) ([]*model.Attachment, error) {
	defer r.s.lock()()
	var result []*model.Attachment
	for _, a := range r.s.d().attachments {
		if a.TaskID == taskID {
			result = append(result, &a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r memAttachments) CountByTaskLocked(_ context.Context, taskID uuid.UUID) (int, error) {
	defer r.s.lock()()
	if _, ok := r.s.d().tasks[taskID]; !ok {
		return 0, repository.ErrNotFound
	}
	n := 0
	for _, a := range r.s.d().attachments {
		if a.TaskID == taskID {
			n++
		}
	}
	return n, nil
}

func (r memAttachments) CountByTask(_ context.Context, taskID uuid.UUID) (int, error) {
	defer r.s.lock()()
	n := 0
	for _, a := range r.s.d().attachments {
		if a.TaskID == taskID {
			n++
		}
	}
	return n, nil
}

func (r memAttachments) ListStoragePathsByOwner(_ context.Context, ownerID uuid.UUID) ([]string, error) {
	defer r.s.lock()()
	d := r.s.d()
	var paths []string
	for _, a := range d.attachments {
		if t, ok := d.tasks[a.TaskID]; ok && t.OwnerID == ownerID {
			paths = append(paths, a.StoragePath)
		}
	}
	return paths, nil
}

func (r memAttachments) Delete(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	d := r.s.d()
	if _, ok := d.attachments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(d.attachments, id)
	for i := range d.audit {
		if d.audit[i].AttachmentID != nil && *d.audit[i].AttachmentID == id {
			d.audit[i].AttachmentID = nil
		}
	}
	return nil
}

// --- audit ---

type memAudit struct{ s *memStore }

func (r memAudit) Create(_ context.Context, e *model.AuditEvent) error {
	if r.s.auditErr != nil {
		return r.s.auditErr
	}
	defer r.s.lock()()
	d := r.s.d()
	d.seq++
	e.CreatedAt = time.Now().UTC().Add(time.Duration(d.seq) * time.Microsecond)
	d.audit = append(d.audit, *e)
	return nil
}

func (r memAudit) List(_ context.Context, f repository.AuditFilter) ([]*model.AuditEvent, int, error) {
	defer r.s.lock()()
	var matched []*model.AuditEvent
	for i := len(r.s.d().audit) - 1; i >= 0; i-- {
		e := r.s.d().audit[i]
		if (f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID)) ||
			(f.TaskID != nil && (e.TaskID == nil || *e.TaskID != *f.TaskID)) ||
			(f.EventType != nil && e.EventType != *f.EventType) ||
			(f.From != nil && e.CreatedAt.Before(*f.From)) ||
			(f.To != nil && e.CreatedAt.After(*f.To)) {
			continue
		}
		matched = append(matched, &e)
	}
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return matched[f.Offset:end], total, nil
}

// --- reminders ---

type memReminders struct{ s *memStore }

func reminderKey(taskID uuid.UUID, t model.ReminderType) string {
	return taskID.String() + "/" + string(t)
}

func (r memReminders) Exists(_ context.Context, taskID uuid.UUID, t model.ReminderType) (bool, error) {
	defer r.s.lock()()
	_, ok := r.s.d().reminders[reminderKey(taskID, t)]
	return ok, nil
}

func (r memReminders) Create(_ context.Context, l *model.ReminderLog) error {
	if r.s.reminderCreateHook != nil {
		r.s.reminderCreateHook()
	}
	defer r.s.lock()()
	key := reminderKey(l.TaskID, l.ReminderType)
	if _, ok := r.s.d().reminders[key]; ok {
		return repository.ErrConflict
	}
	l.SentAt = time.Now().UTC()
	r.s.d().reminders[key] = *l
	return nil
}

// --- File storage ---

// flakyFiles — FileStorage поверх настоящего filestore с ошибкой удаления
// и хуком, вызываемым после записи файла.
type flakyFiles struct {
	*filestore.FileStore
	deleteErr error
	afterSave func()
}

func (f *flakyFiles) Save(storageName string, reader io.Reader) (*filestore.SaveResult, error) {
	res, err := f.FileStore.Save(storageName, reader)
	if err == nil && f.afterSave != nil {
		f.afterSave()
	}
	return res, err
}

func (f *flakyFiles) Delete(storagePath string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.FileStore.Delete(storagePath)
}

// --- Окружение тестов ---

// testEnv — сервисы поверх общего in-memory хранилища.
type testEnv struct {
	store       *memStore
	files       *flakyFiles
	registry    *prometheus.Registry
	metrics     *metrics.Recorder
	tags        *TagService
	tasks       *TaskService
	attachments *AttachmentService
	reminders   *ReminderService
	audit       *AuditService
}

// testLogger — логгер, пишущий только ошибки.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testMaxUpload — лимит размера вложения в тестах (1 MB).
const testMaxUpload = 1024 * 1024

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fs, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}

	reg := prometheus.NewRegistry()
	env := &testEnv{
		store:    newMemStore(),
		files:    &flakyFiles{FileStore: fs},
		registry: reg,
		metrics:  metrics.New(reg),
		tags:     NewTagService(),
	}
	logger := testLogger()
	env.tasks = NewTaskService(env.store, env.tags, env.files, env.metrics, logger)
	env.attachments = NewAttachmentService(env.store, env.files, env.metrics, testMaxUpload, logger)
	env.reminders = NewReminderService(env.store, env.metrics, time.Hour, 24, logger)
	env.audit = NewAuditService(env.store, logger)
	return env
}

// mustCreateTask создаёт задачу через сервис.
func (e *testEnv) mustCreateTask(t *testing.T, owner uuid.UUID, p CreateTaskParams) *model.Task {
	t.Helper()
	task, err := e.tasks.Create(context.Background(), owner, p)
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}
	return task
}

// requireAttachmentsGauge проверяет значение tt_attachments.
func (e *testEnv) requireAttachmentsGauge(t *testing.T, want int) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP tt_attachments Количество вложений, загруженных или удалённых этим экземпляром (сальдо).
# TYPE tt_attachments gauge
tt_attachments %d
`, want)
	if err := testutil.GatherAndCompare(e.registry, strings.NewReader(expected), "tt_attachments"); err != nil {
		t.Errorf("tt_attachments: %v", err)
	}
}

// requireErrorIs проверяет категорию ошибки.
func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("ошибка %v, ожидалась %v", err, target)
	}
}

func ptr[T any](v T) *T { return &v }
