// Пакет errors — конструкторы стандартных ошибок API Task Tracker.
// Единый формат: {"error": {"code": "...", "message": "...", "details": ..., "correlation_id": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Details — дополнительные данные (например, ошибки полей)
	Details any `json:"details,omitempty"`
	// CorrelationID — X-Request-Id запроса для поиска в логах
	CorrelationID string `json:"correlation_id,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание,
// details — необязательные детали (nil — поле не выводится).
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string, details any) {
	detail := errorDetail{
		Code:    code,
		Message: message,
		Details: details,
	}
	if r != nil {
		detail.CorrelationID = chimw.GetReqID(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, CodeValidationError, message, nil)
}

// ValidationErrorWithDetails — 400 с деталями (например, ошибки OpenAPI-валидации).
func ValidationErrorWithDetails(w http.ResponseWriter, r *http.Request, message string, details any) {
	WriteError(w, r, http.StatusBadRequest, CodeValidationError, message, details)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, message, nil)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="task-tracker"`)
	WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

// Forbidden — 403 ресурс принадлежит другому пользователю.
func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusForbidden, CodeForbidden, message, nil)
}

// PayloadTooLarge — 413 тело запроса превышает лимит.
func PayloadTooLarge(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message, nil)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, CodeInternalError, message, nil)
}
