// Пакет middleware — HTTP middleware Task Tracker: аутентификация по Bearer-токену,
// логирование запросов, Prometheus метрики и валидация по OpenAPI.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/matadcze/task-tracker/internal/api/errors"
	"github.com/matadcze/task-tracker/internal/domain/model"
	"github.com/matadcze/task-tracker/internal/service"
)

// contextKey — тип ключа контекста для предотвращения коллизий.
type contextKey string

// ContextKeyUser — ключ контекста для аутентифицированного пользователя.
const ContextKeyUser contextKey = "auth_user"

// Authenticator проверяет access-токен и возвращает пользователя.
// Реализуется *service.AuthService.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.User, error)
}

// JWTAuth — middleware аутентификации по access-токену.
type JWTAuth struct {
	authenticator Authenticator
	logger        *slog.Logger
}

// NewJWTAuth создаёт middleware аутентификации.
func NewJWTAuth(authenticator Authenticator, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		authenticator: authenticator,
		logger:        logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, проверяет его через Authenticator и помещает
// пользователя в контекст запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, r, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, r, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, r, "Пустой Bearer token")
				return
			}

			user, err := j.authenticator.Authenticate(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					j.logger.Debug("Аутентификация не пройдена",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
					apierrors.Unauthorized(w, r, service.Message(err))
					return
				}
				j.logger.Error("Ошибка проверки токена", slog.String("error", err.Error()))
				apierrors.InternalError(w, r, "Внутренняя ошибка сервера")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// --- Context helpers ---

// WithUser помещает пользователя в контекст.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ContextKeyUser, user)
}

// UserFromContext извлекает пользователя из контекста запроса.
// Возвращает nil, если пользователь не найден.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(ContextKeyUser).(*model.User)
	return user
}

// UserIDFromContext извлекает идентификатор пользователя из контекста.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	user := UserFromContext(ctx)
	if user == nil {
		return uuid.Nil, false
	}
	return user.ID, true
}
