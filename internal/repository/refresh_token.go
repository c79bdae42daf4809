package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// RefreshTokenRepository — хранение хэшей refresh-токенов.
type RefreshTokenRepository interface {
	Create(ctx context.Context, t *model.RefreshToken) error
	// GetByHash возвращает токен по SHA-256 хэшу (включая отозванные).
	GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	// Revoke отзывает токен. Повторный отзыв не является ошибкой.
	Revoke(ctx context.Context, id uuid.UUID) error
	// RevokeAllForUser отзывает все активные токены пользователя.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type refreshTokenRepo struct {
	db DBTX
}

// NewRefreshTokenRepository создаёт репозиторий refresh-токенов.
func NewRefreshTokenRepository(db DBTX) RefreshTokenRepository {
	return &refreshTokenRepo{db: db}
}

func (r *refreshTokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.Revoked).Scan(&t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: refresh-токен уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка сохранения refresh-токена: %w", err)
	}
	return nil
}

func (r *refreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	t := &model.RefreshToken{}
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения refresh-токена: %w", err)
	}
	return t, nil
}

func (r *refreshTokenRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка отзыва refresh-токена: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *refreshTokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("ошибка отзыва refresh-токенов пользователя: %w", err)
	}
	return tag.RowsAffected(), nil
}
