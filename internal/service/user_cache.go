// user_cache.go — LRU-кэш активных пользователей с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/matadcze/task-tracker/internal/domain/model"
)

// UserCache — кэш пользователей для проверки access-токенов.
// Каждый экземпляр имеет собственный in-memory кэш, поэтому TTL
// ограничивает время, в течение которого изменения с другого
// экземпляра не видны.
type UserCache struct {
	cache   *expirable.LRU[uuid.UUID, *model.User]
	metrics Metrics
}

// NewUserCache создаёт кэш с максимальным размером maxSize и временем жизни ttl.
func NewUserCache(maxSize int, ttl time.Duration, metrics Metrics) *UserCache {
	return &UserCache{
		cache:   expirable.NewLRU[uuid.UUID, *model.User](maxSize, nil, ttl),
		metrics: metrics,
	}
}

// Get возвращает пользователя из кэша.
func (c *UserCache) Get(id uuid.UUID) (*model.User, bool) {
	u, ok := c.cache.Get(id)
	c.metrics.UserCacheLookup(ok)
	return u, ok
}

// Set добавляет или обновляет запись.
func (c *UserCache) Set(u *model.User) {
	c.cache.Add(u.ID, u)
}

// Delete удаляет запись (инвалидация при изменении пользователя).
func (c *UserCache) Delete(id uuid.UUID) {
	c.cache.Remove(id)
}

// Len возвращает количество записей.
func (c *UserCache) Len() int {
	return c.cache.Len()
}
