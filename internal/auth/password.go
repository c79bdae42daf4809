package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes — ограничение bcrypt на длину пароля.
const MaxPasswordBytes = 72

// ErrPasswordTooLong — пароль длиннее MaxPasswordBytes байт.
var ErrPasswordTooLong = errors.New("пароль длиннее 72 байт")

// HashPassword возвращает bcrypt-хэш пароля.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("ошибка хэширования пароля: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword сравнивает пароль с bcrypt-хэшем.
func VerifyPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
