// tags.go — нормализация тегов и гарантированное создание справочника.
package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/repository"
)

// MaxTagLength — максимальная длина имени тега в символах.
const MaxTagLength = 100

// NormalizeTags обрезает пробелы, отбрасывает пустые имена и удаляет
// дубликаты без учёта регистра. Сохраняется написание и порядок
// первого вхождения.
func NormalizeTags(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))

	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if utf8.RuneCountInString(name) > MaxTagLength {
			return nil, validationError("тег %q длиннее %d символов", name, MaxTagLength)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, name)
	}
	return result, nil
}

// TagService — работа с глобальным справочником тегов.
type TagService struct{}

// NewTagService создаёт сервис тегов.
func NewTagService() *TagService {
	return &TagService{}
}

// Normalize — см. NormalizeTags.
func (s *TagService) Normalize(names []string) ([]string, error) {
	return NormalizeTags(names)
}

// EnsureExist нормализует имена и возвращает теги справочника,
// создавая недостающие. Порядок результата совпадает с порядком
// нормализованных имён. repo позволяет выполнить операцию внутри транзакции.
func (s *TagService) EnsureExist(ctx context.Context, repo repository.TagRepository, names []string) ([]model.Tag, error) {
	normalized, err := NormalizeTags(names)
	if err != nil {
		return nil, err
	}
	if len(normalized) == 0 {
		return []model.Tag{}, nil
	}

	existing, err := repo.FindByNames(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("поиск тегов: %w", err)
	}
	byKey := make(map[string]model.Tag, len(existing))
	for _, t := range existing {
		byKey[strings.ToLower(t.Name)] = t
	}

	result := make([]model.Tag, 0, len(normalized))
	for _, name := range normalized {
		key := strings.ToLower(name)
		if t, ok := byKey[key]; ok {
			result = append(result, t)
			continue
		}
		created, err := repo.GetOrCreate(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("создание тега %q: %w", name, err)
		}
		byKey[key] = *created
		result = append(result, *created)
	}
	return result, nil
}

// tagNames возвращает имена тегов.
func tagNames(tags []model.Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// tagIDs возвращает идентификаторы тегов.
func tagIDs(tags []model.Tag) []uuid.UUID {
	ids := make([]uuid.UUID, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids
}

// sameTagSet сравнивает наборы имён тегов без учёта регистра и порядка.
func sameTagSet(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, n := range a {
		set[strings.ToLower(n)] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, n := range b {
		key := strings.ToLower(n)
		if _, ok := set[key]; !ok {
			return false
		}
		other[key] = struct{}{}
	}
	return len(set) == len(other)
}
