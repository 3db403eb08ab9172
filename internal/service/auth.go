package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fingenius/fingenius-go/internal/crypto"
	"github.com/fingenius/fingenius-go/internal/model"
	"github.com/fingenius/fingenius-go/internal/repository"
	"github.com/fingenius/fingenius-go/internal/session"
)

// UserStore is the credential store consumed by AuthService.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, id, hash string, at time.Time) error
	UpdatePremium(ctx context.Context, id string, premium bool, at time.Time) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// AuthOptions tunes AuthService.
type AuthOptions struct {
	SessionTTL time.Duration
	HashCost   int
}

// AuthResult is the outcome of register and login.
type AuthResult struct {
	User      *model.User
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// RefreshResult is the outcome of refresh.
type RefreshResult struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// AuthService handles registration, login and the session lifecycle.
type AuthService struct {
	users    UserStore
	sessions session.Store
	tokens   *crypto.TokenCodec
	notifier ResetNotifier
	opts     AuthOptions
	validate *validator.Validate
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, sessions session.Store, tokens *crypto.TokenCodec, notifier ResetNotifier, opts AuthOptions) *AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = tokens.AccessTTL()
	}
	if opts.HashCost < crypto.MinHashCost {
		opts.HashCost = crypto.MinHashCost
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		notifier: notifier,
		opts:     opts,
		validate: newValidator(),
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fromValidator(err)
	}
	return nil
}

// Register creates a new user account together with its first session.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*AuthResult, error) {
	req.Email = NormalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := s.check(req); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(req.Password, s.opts.HashCost)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return nil, newValidationError("password", "must be at most 72 bytes")
		}
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return s.startSession(ctx, user, now)
}

// Login authenticates a user and opens a new session. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*AuthResult, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := s.check(req); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Spend the same bcrypt work as a real comparison.
			_, _ = crypto.VerifyPassword(req.Password, s.dummy())
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	match, err := crypto.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		slog.Warn("recording login time failed", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
		user.UpdatedAt = now
	}

	return s.startSession(ctx, user, now)
}

func (s *AuthService) startSession(ctx context.Context, user *model.User, now time.Time) (*AuthResult, error) {
	sessionID := uuid.NewString()
	if err := s.sessions.Set(ctx, sessionID, model.NewSession(user, now), s.opts.SessionTTL); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	token, expiresAt, err := s.tokens.IssueAccess(user.ID, user.Email, sessionID)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	return &AuthResult{
		User:      user,
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout ends one session. Ending an unknown session is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// LogoutAll ends every session of a user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteByUser(ctx, userID, ""); err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

// Refresh rewrites the caller's session with a fresh TTL and issues a new
// token for the same session id. The new token expires strictly after the one
// in id. The identity must come from a validated session.
func (s *AuthService) Refresh(ctx context.Context, id model.Identity) (*RefreshResult, error) {
	if err := s.sessions.Set(ctx, id.SessionID, id.Session(s.now()), s.opts.SessionTTL); err != nil {
		return nil, fmt.Errorf("extending session: %w", err)
	}

	token, expiresAt, err := s.tokens.ReissueAccess(id.UserID, id.Email, id.SessionID, id.TokenExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	return &RefreshResult{Token: token, SessionID: id.SessionID, ExpiresAt: expiresAt}, nil
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of req.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req model.UpdateProfileRequest) (*model.User, error) {
	for _, f := range []*string{req.FirstName, req.LastName, req.Phone, req.Location, req.Bio} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	if err := s.check(req); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Location != nil {
		user.Location = *req.Location
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	user.UpdatedAt = s.now()

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return user, nil
}

// ChangePassword replaces the password of the caller after checking the current
// one. Every other session of the user is revoked; the caller's stays live.
func (s *AuthService) ChangePassword(ctx context.Context, id model.Identity, req model.ChangePasswordRequest) error {
	if err := s.check(req); err != nil {
		return err
	}

	user, err := s.GetUser(ctx, id.UserID)
	if err != nil {
		return err
	}

	match, err := crypto.VerifyPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !match {
		return ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, user.ID, req.NewPassword); err != nil {
		return err
	}

	if err := s.sessions.DeleteByUser(ctx, user.ID, id.SessionID); err != nil {
		slog.Error("revoking sessions after password change failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// ForgotPassword issues a reset token when the email belongs to a user. It
// reports success either way.
func (s *AuthService) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) error {
	req.Email = NormalizeEmail(req.Email)
	if err := s.check(req); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	token, expiresAt, err := s.tokens.IssueReset(user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("issuing reset token: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, token, expiresAt); err != nil {
		slog.Warn("password reset delivery failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token. Each token works once.
func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	if err := s.check(req); err != nil {
		return err
	}

	claims, err := s.tokens.VerifyReset(req.Token)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("looking up user: %w", err)
	}
	if user.Email != claims.Email {
		return ErrInvalidOrExpiredToken
	}

	ttl := claims.ExpiresAt.Time.Sub(s.tokens.Now())
	if ttl < time.Second {
		ttl = time.Second
	}
	key := "reset:" + claims.ID
	first, err := s.sessions.ConsumeOnce(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("consuming reset token: %w", err)
	}
	if !first {
		return ErrInvalidOrExpiredToken
	}

	if err := s.setPassword(ctx, user.ID, req.NewPassword); err != nil {
		// The token was not used up; let the caller retry with it.
		if rerr := s.sessions.Release(ctx, key); rerr != nil {
			slog.Error("releasing reset token failed", "user_id", user.ID, "error", rerr)
		}
		return err
	}

	if err := s.sessions.DeleteByUser(ctx, user.ID, ""); err != nil {
		slog.Error("revoking sessions after password reset failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// SetPremium toggles the premium flag of a user.
func (s *AuthService) SetPremium(ctx context.Context, userID string, premium bool) (*model.User, error) {
	if err := s.users.UpdatePremium(ctx, userID, premium, s.now()); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("updating premium flag: %w", err)
	}
	return s.GetUser(ctx, userID)
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	hash, err := crypto.HashPassword(password, s.opts.HashCost)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return newValidationError("newPassword", "must be at most 72 bytes")
		}
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash, s.now()); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := crypto.HashPassword(uuid.NewString(), s.opts.HashCost)
		if err != nil {
			slog.Error("generating dummy hash failed", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
