package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter ограничивает неудачные попытки входа.
// Счётчик и блокировка хранятся в Redis, поэтому общие для всех экземпляров.
type LoginLimiter struct {
	client       *redis.Client
	maxAttempts  int
	window       time.Duration
	lockDuration time.Duration
}

// NewLoginLimiter создаёт ограничитель: maxAttempts неудач за window
// блокируют вход на lockDuration.
func NewLoginLimiter(client *redis.Client, maxAttempts int, window, lockDuration time.Duration) *LoginLimiter {
	return &LoginLimiter{
		client:       client,
		maxAttempts:  maxAttempts,
		window:       window,
		lockDuration: lockDuration,
	}
}

func (l *LoginLimiter) failKey(email string) string {
	return "tt:login:fail:" + strings.ToLower(email)
}

func (l *LoginLimiter) lockKey(email string) string {
	return "tt:login:lock:" + strings.ToLower(email)
}

// Locked возвращает оставшееся время блокировки (0 — вход разрешён).
func (l *LoginLimiter) Locked(ctx context.Context, email string) (time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, l.lockKey(email)).Result()
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения блокировки входа: %w", err)
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// RegisterFailure учитывает неудачную попытку. Возвращает true, если
// учётная запись заблокирована этой попыткой.
func (l *LoginLimiter) RegisterFailure(ctx context.Context, email string) (bool, error) {
	key := l.failKey(email)

	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка учёта неудачного входа: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("ошибка установки окна попыток: %w", err)
		}
	}

	if n < int64(l.maxAttempts) {
		return false, nil
	}

	locked, err := l.client.SetNX(ctx, l.lockKey(email), 1, l.lockDuration).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка установки блокировки входа: %w", err)
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return locked, fmt.Errorf("ошибка сброса счётчика входа: %w", err)
	}
	return locked, nil
}

// Reset сбрасывает счётчик после успешного входа.
func (l *LoginLimiter) Reset(ctx context.Context, email string) error {
	if err := l.client.Del(ctx, l.failKey(email)).Err(); err != nil {
		return fmt.Errorf("ошибка сброса счётчика входа: %w", err)
	}
	return nil
}

// CheckReady проверяет доступность Redis.
func (l *LoginLimiter) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := l.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "Redis доступен"
}
