package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// UserRepository — CRUD для таблицы users.
type UserRepository interface {
	// Create создаёт пользователя. ErrConflict — email уже занят.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail ищет пользователя по email без учёта регистра.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Update сохраняет full_name, password_hash, is_active и updated_at.
	Update(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

const userColumns = `id, email, password_hash, full_name, is_active, created_at, updated_at`

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, full_name, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, u.ID, u.Email, u.PasswordHash, u.FullName, u.IsActive).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.getOne(ctx, query, email)
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	u.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE users
		SET full_name = $2, password_hash = $3, is_active = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, u.ID, u.FullName, u.PasswordHash, u.IsActive, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
