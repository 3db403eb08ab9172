package service

import (
	"context"
	"log/slog"
	"time"
)

// ResetNotifier delivers password reset tokens to their owners.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// LogResetNotifier writes reset tokens to the log. It stands in for a mail
// sender in development.
type LogResetNotifier struct {
	Logger *slog.Logger
}

func (n LogResetNotifier) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset requested",
		"email", email,
		"reset_token", token,
		"expires_at", expiresAt.Format(time.RFC3339),
	)
	return nil
}
