// auth.go — регистрация, вход, обновление и отзыв токенов, управление
// профилем. Access-токен проверяется middleware через Authenticate.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/matadcze/task-tracker/internal/auth"
	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/repository"
)

// MinPasswordLength — минимальная длина пароля в символах.
const MinPasswordLength = 8

// Результаты попыток входа для метрик.
const (
	loginSuccess  = "success"
	loginInvalid  = "invalid"
	loginLocked   = "locked"
	loginInactive = "inactive"
)

// invalidCredentials — одно сообщение для неизвестного email и неверного пароля.
const invalidCredentials = "неверный email или пароль"

// LoginLimiter — учёт неудачных попыток входа. Реализуется *auth.LoginLimiter.
type LoginLimiter interface {
	Locked(ctx context.Context, email string) (time.Duration, error)
	RegisterFailure(ctx context.Context, email string) (bool, error)
	Reset(ctx context.Context, email string) error
}

// RegisterParams — данные регистрации.
type RegisterParams struct {
	Email    string
	Password string
	FullName *string
}

// TokenPair — выданные токены.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn — время жизни access-токена в секундах
	ExpiresIn int
}

// AuthService — аутентификация и учётные записи пользователей.
type AuthService struct {
	store   repository.Store
	tokens  *auth.TokenManager
	limiter LoginLimiter
	cache   *UserCache
	tasks   *TaskService
	metrics Metrics
	logger  *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(
	store repository.Store,
	tokens *auth.TokenManager,
	limiter LoginLimiter,
	cache *UserCache,
	tasks *TaskService,
	metrics Metrics,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:   store,
		tokens:  tokens,
		limiter: limiter,
		cache:   cache,
		tasks:   tasks,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "auth_service")),
	}
}

// Register создаёт учётную запись.
func (s *AuthService) Register(ctx context.Context, p RegisterParams) (*model.User, error) {
	email, err := normalizeEmail(p.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(p.Password); err != nil {
		return nil, err
	}
	var fullName *string
	if p.FullName != nil {
		name, err := normalizeFullName(*p.FullName)
		if err != nil {
			return nil, err
		}
		fullName = &name
	}

	if _, err := s.store.Users().GetByEmail(ctx, email); err == nil {
		return nil, validationError("email уже зарегистрирован")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("проверка email: %w", err)
	}

	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		IsActive:     true,
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, validationError("email уже зарегистрирован")
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", u.ID.String()),
	)
	return u, nil
}

// Login проверяет учётные данные и выдаёт пару токенов.
// Неудачные попытки учитываются ограничителем; при его недоступности
// вход не блокируется.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if s.limiter != nil {
		remaining, err := s.limiter.Locked(ctx, email)
		if err != nil {
			s.logger.Warn("Ограничитель входа недоступен", slog.String("error", err.Error()))
		} else if remaining > 0 {
			s.metrics.LoginAttempt(loginLocked)
			return nil, unauthenticatedError(fmt.Sprintf(
				"учётная запись заблокирована, повторите через %d мин", int(math.Ceil(remaining.Minutes()))))
		}
	}

	u, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}
	if u == nil || !auth.VerifyPassword(u.PasswordHash, password) {
		s.registerFailure(ctx, email, clientIP)
		s.metrics.LoginAttempt(loginInvalid)
		return nil, unauthenticatedError(invalidCredentials)
	}
	if !u.IsActive {
		s.metrics.LoginAttempt(loginInactive)
		return nil, unauthenticatedError("учётная запись не активна")
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.logger.Warn("Не удалось сбросить счётчик входа", slog.String("error", err.Error()))
		}
	}

	var pair *TokenPair
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		pair, err = s.issuePair(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		return recordAudit(ctx, tx.Audit(), newAuditEvent(model.EventLogin, &u.ID, nil, map[string]any{
			"ip": clientIP,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.LoginAttempt(loginSuccess)
	s.metrics.AuditEventRecorded(string(model.EventLogin))
	s.cache.Set(u)

	s.logger.Info("Вход выполнен",
		slog.String("user_id", u.ID.String()),
		slog.String("client_ip", clientIP),
	)
	return pair, nil
}

func (s *AuthService) registerFailure(ctx context.Context, email, clientIP string) {
	if s.limiter == nil {
		return
	}
	locked, err := s.limiter.RegisterFailure(ctx, email)
	if err != nil {
		s.logger.Warn("Не удалось учесть неудачный вход", slog.String("error", err.Error()))
		return
	}
	if locked {
		s.logger.Warn("Учётная запись заблокирована после неудачных попыток входа",
			slog.String("client_ip", clientIP),
		)
	}
}

// issuePair выпускает access- и refresh-токены и сохраняет хэш refresh-токена.
func (s *AuthService) issuePair(ctx context.Context, tx repository.Store, userID uuid.UUID) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}

	if err := tx.RefreshTokens().Create(ctx, &model.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: auth.HashToken(refresh.Token),
		ExpiresAt: refresh.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("сохранение refresh-токена: %w", err)
	}

	return &TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Refresh обменивает refresh-токен на новую пару (ротация).
// Повторное предъявление отозванного токена отзывает все токены пользователя.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, unauthenticatedError("срок действия refresh-токена истёк")
		}
		return nil, unauthenticatedError("недействительный refresh-токен")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, unauthenticatedError("недействительный refresh-токен")
	}

	var pair *TokenPair
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		stored, err := tx.RefreshTokens().GetByHash(ctx, auth.HashToken(refreshToken))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return unauthenticatedError("refresh-токен не найден")
			}
			return fmt.Errorf("получение refresh-токена: %w", err)
		}
		if stored.UserID != userID {
			return unauthenticatedError("недействительный refresh-токен")
		}
		if stored.Revoked {
			return errTokenReuse
		}
		if time.Now().After(stored.ExpiresAt) {
			return unauthenticatedError("срок действия refresh-токена истёк")
		}

		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return unauthenticatedError("пользователь не найден")
			}
			return fmt.Errorf("получение пользователя: %w", err)
		}
		if !u.IsActive {
			return unauthenticatedError("учётная запись не активна")
		}

		if err := tx.RefreshTokens().Revoke(ctx, stored.ID); err != nil {
			return fmt.Errorf("отзыв refresh-токена: %w", err)
		}
		pair, err = s.issuePair(ctx, tx, userID)
		return err
	})
	if errors.Is(err, errTokenReuse) {
		s.revokeAllAfterReuse(ctx, userID)
		return nil, unauthenticatedError("refresh-токен отозван")
	}
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// errTokenReuse — предъявлен отозванный refresh-токен.
var errTokenReuse = errors.New("повторное использование refresh-токена")

func (s *AuthService) revokeAllAfterReuse(ctx context.Context, userID uuid.UUID) {
	n, err := s.store.RefreshTokens().RevokeAllForUser(ctx, userID)
	if err != nil {
		s.logger.Error("Не удалось отозвать токены после повторного использования",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("Повторное использование refresh-токена, все токены отозваны",
		slog.String("user_id", userID.String()),
		slog.Int64("revoked", n),
	)
}

// Logout отзывает refresh-токен пользователя userID. Повторный вызов не является ошибкой.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	stored, err := s.store.RefreshTokens().GetByHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("получение refresh-токена: %w", err)
	}
	if stored.UserID != userID {
		return fmt.Errorf("%w: токен принадлежит другому пользователю", ErrForbidden)
	}
	if stored.Revoked {
		return nil
	}
	if err := s.store.RefreshTokens().Revoke(ctx, stored.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("отзыв refresh-токена: %w", err)
	}

	s.logger.Info("Выход выполнен", slog.String("user_id", userID.String()))
	return nil
}

// Me возвращает профиль пользователя.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("пользователь не найден")
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return u, nil
}

// UpdateProfile обновляет полное имя. nil — без изменений.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, fullName *string) (*model.User, error) {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if fullName == nil {
		return u, nil
	}

	name, err := normalizeFullName(*fullName)
	if err != nil {
		return nil, err
	}
	u.FullName = &name
	if err := s.store.Users().Update(ctx, u); err != nil {
		return nil, fmt.Errorf("обновление профиля: %w", err)
	}
	s.cache.Delete(userID)
	return u, nil
}

// ChangePassword меняет пароль и отзывает все refresh-токены пользователя.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	var revoked int64
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError("пользователь не найден")
			}
			return fmt.Errorf("получение пользователя: %w", err)
		}
		if !auth.VerifyPassword(u.PasswordHash, current) {
			return unauthenticatedError("текущий пароль неверен")
		}

		hash, err := auth.HashPassword(newPassword)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		if err := tx.Users().Update(ctx, u); err != nil {
			return fmt.Errorf("обновление пароля: %w", err)
		}

		revoked, err = tx.RefreshTokens().RevokeAllForUser(ctx, userID)
		if err != nil {
			return err
		}
		return recordAudit(ctx, tx.Audit(), newAuditEvent(model.EventPasswordChanged, &userID, nil, map[string]any{
			"revoked_tokens": revoked,
		}))
	})
	if err != nil {
		return err
	}

	s.cache.Delete(userID)
	s.metrics.AuditEventRecorded(string(model.EventPasswordChanged))

	s.logger.Info("Пароль изменён",
		slog.String("user_id", userID.String()),
		slog.Int64("revoked_tokens", revoked),
	)
	return nil
}

// DeleteAccount удаляет пользователя вместе с задачами и токенами.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	var paths []string
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Users().GetByID(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundError("пользователь не найден")
			}
			return fmt.Errorf("получение пользователя: %w", err)
		}

		var err error
		paths, err = s.tasks.DeleteAllForOwner(ctx, tx, userID)
		if err != nil {
			return err
		}
		if _, err := tx.RefreshTokens().RevokeAllForUser(ctx, userID); err != nil {
			return err
		}
		if err := tx.Users().Delete(ctx, userID); err != nil {
			return fmt.Errorf("удаление пользователя: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Delete(userID)
	s.tasks.afterOwnerDeleted(ctx, paths)

	s.logger.Info("Учётная запись удалена", slog.String("user_id", userID.String()))
	return nil
}

// Authenticate проверяет access-токен и возвращает активного пользователя.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	claims, err := s.tokens.Parse(accessToken, auth.TokenTypeAccess)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, unauthenticatedError("срок действия токена истёк")
		}
		return nil, unauthenticatedError("недействительный токен")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, unauthenticatedError("недействительный токен")
	}

	if u, ok := s.cache.Get(userID); ok {
		return u, nil
	}

	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthenticatedError("пользователь не найден")
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	if !u.IsActive {
		return nil, unauthenticatedError("учётная запись не активна")
	}

	s.cache.Set(u)
	return u, nil
}

// normalizeEmail проверяет формат и приводит email к нижнему регистру.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", validationError("неверный формат email")
	}
	return email, nil
}

// validatePassword проверяет длину пароля (bcrypt ограничен 72 байтами).
func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return validationError("пароль должен содержать не менее %d символов", MinPasswordLength)
	}
	if len(password) > auth.MaxPasswordBytes {
		return validationError("пароль длиннее %d байт", auth.MaxPasswordBytes)
	}
	return nil
}

// normalizeFullName обрезает пробелы; пустое имя недопустимо.
func normalizeFullName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", validationError("полное имя не может быть пустым")
	}
	if utf8.RuneCountInString(name) > 255 {
		return "", validationError("полное имя длиннее 255 символов")
	}
	return name, nil
}
