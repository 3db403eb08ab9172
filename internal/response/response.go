// Package response writes the JSON envelope shared by handlers and middleware.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error kinds returned to clients in the "error" field.
const (
	KindValidation              = "ValidationError"
	KindDuplicateUser           = "DuplicateUser"
	KindInvalidCredentials      = "InvalidCredentials"
	KindAccessTokenRequired     = "AccessTokenRequired"
	KindInvalidToken            = "InvalidToken"
	KindTokenExpired            = "TokenExpired"
	KindInvalidSession          = "InvalidSession"
	KindInvalidOrExpiredToken   = "InvalidOrExpiredToken"
	KindInsufficientPermissions = "InsufficientPermissions"
	KindPremiumFeature          = "PremiumFeature"
	KindRateLimitExceeded       = "RateLimitExceeded"
	KindNotFound                = "NotFound"
	KindPayloadTooLarge         = "PayloadTooLarge"
	KindAuthenticationFailed    = "AuthenticationFailed"
	KindInternal                = "InternalError"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

// Success writes a successful envelope.
func Success(w http.ResponseWriter, status int, data any, message string) {
	JSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

// Error writes a failed envelope.
func Error(w http.ResponseWriter, status int, kind, message string) {
	JSON(w, status, Envelope{Success: false, Error: kind, Message: message})
}

// Internal writes a generic 500 without leaking details.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, KindInternal, "internal server error")
}
