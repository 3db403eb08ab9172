package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fingenius/fingenius-go/internal/config"
	"github.com/fingenius/fingenius-go/internal/crypto"
	"github.com/fingenius/fingenius-go/internal/handler"
	"github.com/fingenius/fingenius-go/internal/middleware"
	"github.com/fingenius/fingenius-go/internal/ratelimit"
	"github.com/fingenius/fingenius-go/internal/repository"
	"github.com/fingenius/fingenius-go/internal/service"
	"github.com/fingenius/fingenius-go/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]handler.HealthCheck)

	var users service.UserStore
	switch cfg.CredentialStore {
	case config.StoreMySQL:
		db, err := repository.NewDB(ctx, cfg.DatabaseDSN, cfg.StoreTimeout)
		if err != nil {
			slog.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := repository.Migrate(ctx, db); err != nil {
			slog.Error("database migration failed", "error", err)
			os.Exit(1)
		}
		users = repository.NewUserRepository(db, cfg.StoreTimeout)
		checks["mysql"] = db.PingContext
	default:
		slog.Warn("using in-memory credential store, users are lost on restart")
		users = repository.NewMemoryUserRepository()
	}

	var (
		sessions session.Store
		counter  ratelimit.Counter
	)
	switch cfg.SessionStore {
	case config.StoreRedis:
		rcfg := session.DefaultRedisConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPassword
		rcfg.DB = cfg.RedisDB
		rcfg.ReadTimeout = cfg.StoreTimeout
		rcfg.WriteTimeout = cfg.StoreTimeout

		client, err := session.NewRedisClient(ctx, rcfg)
		if err != nil {
			slog.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		sessions = session.NewRedisStore(client, cfg.RedisPrefix, cfg.StoreTimeout)
		counter = ratelimit.NewRedisCounter(client, cfg.RedisPrefix, cfg.StoreTimeout)
	default:
		slog.Warn("using in-memory session store, sessions are lost on restart")
		sessions = session.NewMemoryStore()
		counter = ratelimit.NewMemoryCounter()
	}
	checks["sessions"] = sessions.Ping

	tokens := crypto.NewTokenCodec(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.ResetTokenTTL)
	authService := service.NewAuthService(users, sessions, tokens, service.LogResetNotifier{Logger: slog.Default()}, service.AuthOptions{
		SessionTTL: cfg.AccessTokenTTL,
		HashCost:   cfg.BcryptCost,
	})

	ipLimiter := middleware.NewIPRateLimiter(cfg.IPRatePerSecond, cfg.IPRateBurst)
	defer ipLimiter.Stop()

	router := handler.NewRouter(handler.RouterConfig{
		Auth:           authService,
		Guard:          middleware.NewGuard(tokens, sessions),
		Health:         handler.NewHealthHandler(checks, cfg.StoreTimeout),
		Counter:        counter,
		UserRateMax:    cfg.UserRateLimitMax,
		UserRateWindow: cfg.UserRateLimitWindow,
		IPLimiter:      ipLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env,
			"credential_store", cfg.CredentialStore, "session_store", cfg.SessionStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

func setupLogger(cfg config.Config) {
	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h))
}
