package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fingenius/fingenius-go/internal/model"
	"github.com/fingenius/fingenius-go/internal/response"
	"github.com/fingenius/fingenius-go/internal/service"
)

// AdminHandler serves user administration for admins.
type AdminHandler struct {
	service *service.AuthService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(svc *service.AuthService) *AdminHandler {
	return &AdminHandler{service: svc}
}

// HandleGetUser handles GET /api/v1/admin/users/{user_id} requests.
func (h *AdminHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, user.ToResponse(), "")
}

// HandleSetPremium handles PUT /api/v1/admin/users/{user_id}/premium requests.
// The user's live sessions keep their old flag until refreshed or re-created.
func (h *AdminHandler) HandleSetPremium(w http.ResponseWriter, r *http.Request) {
	var req model.SetPremiumRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsPremium == nil {
		response.Error(w, http.StatusBadRequest, response.KindValidation, "isPremium is required")
		return
	}

	user, err := h.service.SetPremium(r.Context(), chi.URLParam(r, "user_id"), *req.IsPremium)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, user.ToResponse(), "Premium status updated")
}

// PremiumStatus is returned to premium callers.
type PremiumStatus struct {
	UserID    string    `json:"userId"`
	IsPremium bool      `json:"isPremium"`
	ExpiresAt time.Time `json:"tokenExpiresAt"`
}

// HandlePremiumStatus handles GET /api/v1/premium/status requests.
func HandlePremiumStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	response.Success(w, http.StatusOK, PremiumStatus{
		UserID:    id.UserID,
		IsPremium: id.IsPremium,
		ExpiresAt: id.TokenExpiresAt,
	}, "")
}
