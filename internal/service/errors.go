// errors.go — ошибки бизнес-логики сервисного слоя.
// API-слой сопоставляет их с HTTP-статусами через errors.Is.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — ошибка валидации входных данных (400).
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — ресурс не найден (404).
	ErrNotFound = errors.New("ресурс не найден")
	// ErrForbidden — ресурс принадлежит другому пользователю (403).
	ErrForbidden = errors.New("доступ запрещён")
	// ErrUnauthenticated — неверные или отсутствующие учётные данные (401).
	ErrUnauthenticated = errors.New("требуется аутентификация")
)

// validationError оборачивает ErrValidation с описанием.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notFoundError оборачивает ErrNotFound с описанием.
func notFoundError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// unauthenticatedError оборачивает ErrUnauthenticated с описанием.
func unauthenticatedError(msg string) error {
	return fmt.Errorf("%w: %s", ErrUnauthenticated, msg)
}

// Message возвращает описание ошибки без префикса категории.
// Используется API-слоем для текста ответа.
func Message(err error) string {
	for _, sentinel := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrUnauthenticated} {
		if errors.Is(err, sentinel) {
			prefix := sentinel.Error() + ": "
			msg := err.Error()
			if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
				return msg[len(prefix):]
			}
			return msg
		}
	}
	return err.Error()
}
