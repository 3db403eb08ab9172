package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fingenius/fingenius-go/internal/response"
	"github.com/fingenius/fingenius-go/internal/service"
)

const maxBodyBytes = 1 << 20 // 1MB

// decodeJSON reads the request body into v. It writes the error response
// itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, response.KindPayloadTooLarge, "request body too large")
			return false
		}
		response.Error(w, http.StatusBadRequest, response.KindValidation, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps service errors to HTTP responses. Unknown errors are
// logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(w, http.StatusBadRequest, response.KindValidation, err.Error())
	case errors.Is(err, service.ErrDuplicateUser):
		response.Error(w, http.StatusConflict, response.KindDuplicateUser, "User with this email already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, http.StatusUnauthorized, response.KindInvalidCredentials, "Invalid email or password")
	case errors.Is(err, service.ErrUserNotFound):
		response.Error(w, http.StatusNotFound, response.KindNotFound, "User not found")
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		response.Error(w, http.StatusBadRequest, response.KindInvalidOrExpiredToken, "Invalid or expired reset token")
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Internal(w)
	}
}
