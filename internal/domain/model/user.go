package model

import (
	"time"

	"github.com/google/uuid"
)

// User — учётная запись пользователя.
type User struct {
	ID uuid.UUID
	// Email — уникален без учёта регистра, хранится в нижнем регистре
	Email        string
	PasswordHash string
	FullName     *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken — выданный refresh-токен. Хранится только SHA-256 хэш.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
