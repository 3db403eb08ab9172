package handler

import (
	"net/http"

	"github.com/fingenius/fingenius-go/internal/middleware"
	"github.com/fingenius/fingenius-go/internal/model"
	"github.com/fingenius/fingenius-go/internal/response"
	"github.com/fingenius/fingenius-go/internal/service"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// HandleRegister handles POST /api/v1/auth/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusCreated, authResponse(res), "User registered successfully")
}

// HandleLogin handles POST /api/v1/auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, authResponse(res), "Login successful")
}

// HandleLogout handles POST /api/v1/auth/logout requests.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), id.SessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, nil, "Logged out successfully")
}

// HandleLogoutAll handles POST /api/v1/auth/logout-all requests.
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.service.LogoutAll(r.Context(), id.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, nil, "Logged out from all sessions")
}

// HandleMe handles GET /api/v1/auth/me requests.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, user.ToResponse(), "")
}

// HandleUpdateProfile handles PUT /api/v1/auth/profile requests.
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req model.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), id.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, user.ToResponse(), "Profile updated successfully")
}

// HandleChangePassword handles PUT /api/v1/auth/change-password requests.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req model.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), id, req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, nil, "Password changed successfully")
}

// HandleForgotPassword handles POST /api/v1/auth/forgot-password requests.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, nil, "If the email exists, a password reset link has been sent")
}

// HandleResetPassword handles POST /api/v1/auth/reset-password requests.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, nil, "Password reset successfully")
}

// HandleRefresh handles POST /api/v1/auth/refresh requests.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	res, err := h.service.Refresh(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, model.RefreshResponse{Token: res.Token, SessionID: res.SessionID}, "Token refreshed successfully")
}

// HandleStatus handles GET /api/v1/auth/status requests. It never fails.
func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := model.StatusResponse{}
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		resp := id.ToResponse()
		status.Authenticated = true
		status.Identity = &resp
	}
	response.Success(w, http.StatusOK, status, "")
}

func authResponse(res *service.AuthResult) model.AuthResponse {
	return model.AuthResponse{
		User:      res.User.ToResponse(),
		Token:     res.Token,
		SessionID: res.SessionID,
	}
}

// identity fetches the caller set by RequireAuth. A missing identity means the
// route was mounted without the guard.
func identity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.KindAccessTokenRequired, "Access token required")
		return model.Identity{}, false
	}
	return id, true
}
