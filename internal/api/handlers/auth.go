// auth.go — обработчики /api/v1/auth endpoints.
// Регистрация, вход, ротация токенов, профиль и смена пароля.
package handlers

import (
	"log/slog"
	"net"
	"net/http"

	apierrors "github.com/matadcze/task-tracker/internal/api/errors"
	"github.com/matadcze/task-tracker/internal/service"
)

// Register — POST /api/v1/auth/register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Register(r.Context(), service.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка регистрации")
		return
	}

	writeJSON(w, http.StatusCreated, mapUser(user))
}

// Login — POST /api/v1/auth/login.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка входа")
		return
	}

	writeJSON(w, http.StatusOK, mapTokenPair(pair))
}

// RefreshToken — POST /api/v1/auth/refresh.
// Старый refresh-токен отзывается, выдаётся новая пара.
func (h *APIHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		apierrors.ValidationError(w, r, "Поле refresh_token обязательно")
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка обновления токена")
		return
	}

	writeJSON(w, http.StatusOK, mapTokenPair(pair))
}

// Logout — POST /api/v1/auth/logout.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req refreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		apierrors.ValidationError(w, r, "Поле refresh_token обязательно")
		return
	}

	if err := h.auth.Logout(r.Context(), userID, req.RefreshToken); err != nil {
		h.writeServiceError(w, r, err, "Ошибка выхода", slog.String("user_id", userID.String()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetMe — GET /api/v1/auth/me.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.auth.Me(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения профиля", slog.String("user_id", userID.String()))
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// UpdateMe — PATCH /api/v1/auth/me.
func (h *APIHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FullName == nil {
		apierrors.ValidationError(w, r, "Поле full_name обязательно")
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), userID, req.FullName)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка обновления профиля", slog.String("user_id", userID.String()))
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// DeleteMe — DELETE /api/v1/auth/me.
// Удаляет учётную запись вместе с задачами и файлами вложений.
func (h *APIHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), userID); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления учётной записи", slog.String("user_id", userID.String()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword — PUT /api/v1/auth/change-password.
func (h *APIHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeServiceError(w, r, err, "Ошибка смены пароля", slog.String("user_id", userID.String()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func mapTokenPair(p *service.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    p.ExpiresIn,
	}
}

// clientIP возвращает адрес клиента без порта.
// RemoteAddr уже учитывает X-Forwarded-For после chi middleware.RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
