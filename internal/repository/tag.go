package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// TagRepository — доступ к глобальному справочнику тегов.
type TagRepository interface {
	// FindByNames возвращает существующие теги, имена которых совпадают
	// с переданными без учёта регистра. Один запрос на весь список.
	FindByNames(ctx context.Context, names []string) ([]model.Tag, error)
	// GetOrCreate создаёт тег, если его нет, иначе возвращает существующий.
	// Конкурентное создание разрешается уникальным индексом по LOWER(name).
	GetOrCreate(ctx context.Context, name string) (*model.Tag, error)
}

type tagRepo struct {
	db DBTX
}

// NewTagRepository создаёт репозиторий тегов.
func NewTagRepository(db DBTX) TagRepository {
	return &tagRepo{db: db}
}

func (r *tagRepo) FindByNames(ctx context.Context, names []string) ([]model.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}

	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}

	rows, err := r.db.Query(ctx, `SELECT id, name FROM tags WHERE LOWER(name) = ANY($1)`, lowered)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска тегов: %w", err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("ошибка чтения тега: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (r *tagRepo) GetOrCreate(ctx context.Context, name string) (*model.Tag, error) {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO tags (id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		uuid.New(), name,
	); err != nil {
		return nil, fmt.Errorf("ошибка создания тега %q: %w", name, err)
	}

	t := &model.Tag{}
	err := r.db.QueryRow(ctx, `SELECT id, name FROM tags WHERE LOWER(name) = LOWER($1)`, name).
		Scan(&t.ID, &t.Name)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения тега %q: %w", name, err)
	}
	return t, nil
}
