// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store — набор репозиториев, привязанных к одному подключению
// (пулу или транзакции).
type Store interface {
	Users() UserRepository
	RefreshTokens() RefreshTokenRepository
	Tasks() TaskRepository
	Tags() TagRepository
	Attachments() AttachmentRepository
	Audit() AuditRepository
	Reminders() ReminderRepository

	// WithTx выполняет fn внутри транзакции. Store, переданный в fn,
	// привязан к транзакции. При ошибке fn транзакция откатывается.
	// Вложенный вызов выполняется в уже открытой транзакции.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// pgStore — реализация Store поверх pgx.
type pgStore struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

// NewStore создаёт Store поверх пула подключений.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, db: pool}
}

func (s *pgStore) Users() UserRepository                 { return NewUserRepository(s.db) }
func (s *pgStore) RefreshTokens() RefreshTokenRepository { return NewRefreshTokenRepository(s.db) }
func (s *pgStore) Tasks() TaskRepository                 { return NewTaskRepository(s.db) }
func (s *pgStore) Tags() TagRepository                   { return NewTagRepository(s.db) }
func (s *pgStore) Attachments() AttachmentRepository     { return NewAttachmentRepository(s.db) }
func (s *pgStore) Audit() AuditRepository                { return NewAuditRepository(s.db) }
func (s *pgStore) Reminders() ReminderRepository         { return NewReminderRepository(s.db) }

func (s *pgStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(&pgStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка коммита транзакции: %w", err)
	}
	return nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isNoRows проверяет отсутствие строк в результате.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// escapeLike экранирует спецсимволы LIKE (\, %, _) для использования с ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
