// openapi.go — валидация входящих запросов по OpenAPI контракту (kin-openapi).
// Проверяются параметры пути и query, а также JSON-тела запросов.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/matadcze/task-tracker/internal/api/errors"
)

// OpenAPIValidator — middleware валидации запросов.
type OpenAPIValidator struct {
	router routers.Router
	logger *slog.Logger
}

// NewOpenAPIValidator создаёт валидатор по загруженному контракту.
func NewOpenAPIValidator(doc *openapi3.T, logger *slog.Logger) (*OpenAPIValidator, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("создание маршрутизатора OpenAPI: %w", err)
	}
	return &OpenAPIValidator{
		router: router,
		logger: logger.With(slog.String("component", "openapi_validator")),
	}, nil
}

// Middleware возвращает HTTP middleware валидации.
// Запросы к путям вне контракта пропускаются без проверки.
// multipart-тела не проверяются: размер и тип файла проверяет обработчик.
func (v *OpenAPIValidator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := v.router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
					ExcludeRequestBody: strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/"),
				},
			}

			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				v.logger.Debug("Запрос не прошёл валидацию",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ValidationErrorWithDetails(w, r, validationMessage(err), map[string]string{
					"reason": err.Error(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validationMessage формирует краткое описание ошибки валидации.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("Некорректный параметр %s", reqErr.Parameter.Name)
		}
		if reqErr.RequestBody != nil {
			return "Некорректное тело запроса"
		}
	}
	return "Запрос не соответствует OpenAPI контракту"
}
