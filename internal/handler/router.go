package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fingenius/fingenius-go/internal/middleware"
	"github.com/fingenius/fingenius-go/internal/model"
	"github.com/fingenius/fingenius-go/internal/ratelimit"
	"github.com/fingenius/fingenius-go/internal/response"
	"github.com/fingenius/fingenius-go/internal/service"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Auth   *service.AuthService
	Guard  *middleware.Guard
	Health *HealthHandler

	Counter        ratelimit.Counter
	UserRateMax    int64
	UserRateWindow time.Duration

	// IPLimiter throttles the unauthenticated routes. Its owner calls Stop.
	IPLimiter *middleware.IPRateLimiter
}

// NewRouter builds the chi router for the API.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Auth)
	adminHandler := NewAdminHandler(cfg.Auth)
	guard := cfg.Guard
	userLimit := middleware.UserRateLimit(cfg.Counter, cfg.UserRateMax, cfg.UserRateWindow)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, response.KindNotFound, "route not found")
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.HandleHealth)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(cfg.IPLimiter.Middleware)
				r.Post("/register", authHandler.HandleRegister)
				r.Post("/login", authHandler.HandleLogin)
				r.Post("/forgot-password", authHandler.HandleForgotPassword)
				r.Post("/reset-password", authHandler.HandleResetPassword)
			})

			r.With(guard.OptionalAuth).Get("/status", authHandler.HandleStatus)

			r.Group(func(r chi.Router) {
				r.Use(guard.RequireAuth)
				r.Use(userLimit)
				r.Post("/logout", authHandler.HandleLogout)
				r.Post("/logout-all", authHandler.HandleLogoutAll)
				r.Get("/me", authHandler.HandleMe)
				r.Put("/profile", authHandler.HandleUpdateProfile)
				r.Put("/change-password", authHandler.HandleChangePassword)
				r.Post("/refresh", authHandler.HandleRefresh)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(guard.RequireAuth)
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Use(userLimit)
			r.Get("/users/{user_id}", adminHandler.HandleGetUser)
			r.Put("/users/{user_id}/premium", adminHandler.HandleSetPremium)
		})

		r.Route("/premium", func(r chi.Router) {
			r.Use(guard.RequireAuth)
			r.Use(middleware.RequirePremium)
			r.Use(userLimit)
			r.Get("/status", HandlePremiumStatus)
		})
	})

	return r
}
