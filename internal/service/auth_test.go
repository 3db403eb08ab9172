package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fingenius/fingenius-go/internal/crypto"
	"github.com/fingenius/fingenius-go/internal/model"
	"github.com/fingenius/fingenius-go/internal/repository"
	"github.com/fingenius/fingenius-go/internal/session"
)

// recordingNotifier captures reset tokens instead of delivering them.
type recordingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[email] = token
	return n.err
}

func (n *recordingNotifier) token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[email]
}

// failingSessions is a session store whose every call fails.
type failingSessions struct{ session.MemoryStore }

var errStoreDown = errors.New("store down")

func (*failingSessions) Set(context.Context, string, *model.Session, time.Duration) error {
	return errStoreDown
}

func (*failingSessions) Delete(context.Context, string) error { return errStoreDown }

// flakyUsers fails UpdatePassword a fixed number of times.
type flakyUsers struct {
	*repository.MemoryUserRepository
	failures int
}

func (u *flakyUsers) UpdatePassword(ctx context.Context, id, hash string, at time.Time) error {
	if u.failures > 0 {
		u.failures--
		return errStoreDown
	}
	return u.MemoryUserRepository.UpdatePassword(ctx, id, hash, at)
}

// ttlRecorder remembers the TTL passed to ConsumeOnce.
type ttlRecorder struct {
	*session.MemoryStore
	ttl time.Duration
}

func (r *ttlRecorder) ConsumeOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	r.ttl = ttl
	return r.MemoryStore.ConsumeOnce(ctx, key, ttl)
}

type testEnv struct {
	svc      *AuthService
	users    *repository.MemoryUserRepository
	sessions *session.MemoryStore
	tokens   *crypto.TokenCodec
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:    repository.NewMemoryUserRepository(),
		sessions: session.NewMemoryStore(),
		tokens:   crypto.NewTokenCodec("test-secret", "fingenius", 7*24*time.Hour, time.Hour),
		notifier: &recordingNotifier{},
	}
	env.svc = NewAuthService(env.users, env.sessions, env.tokens, env.notifier, AuthOptions{})
	return env
}

func (e *testEnv) register(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := e.svc.Register(context.Background(), model.RegisterRequest{
		Email: email, Password: password, FirstName: "Alice", LastName: "Smith",
	})
	require.NoError(t, err)
	return res
}

func TestRegister_ReturnsUserTokenAndSession(t *testing.T) {
	env := newTestEnv(t)

	res := env.register(t, "  Alice@X.com ", "secret1")

	assert.Equal(t, "alice@x.com", res.User.Email)
	assert.Equal(t, model.RoleUser, res.User.Role)
	assert.False(t, res.User.IsPremium)
	assert.NotEmpty(t, res.User.ID)
	assert.NotEmpty(t, res.SessionID)

	claims, err := env.tokens.VerifyAccess(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, res.SessionID, claims.SessionID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), res.ExpiresAt, 5*time.Second)

	sess, err := env.sessions.Get(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", sess.Email)
	assert.Equal(t, "Alice", sess.FirstName)

	cost, err := crypto.HashCost(res.User.PasswordHash)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, 12)

	b, err := json.Marshal(res.User.ToResponse())
	require.NoError(t, err)
	assert.NotContains(t, strings.ToLower(string(b)), "password")
}

func TestRegister_ThenLoginSucceeds(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@x.com", "secret1")

	res, err := env.svc.Login(context.Background(), model.LoginRequest{Email: "ALICE@x.com", Password: "secret1"})
	require.NoError(t, err)

	assert.Equal(t, reg.User.ID, res.User.ID)
	assert.NotEqual(t, reg.SessionID, res.SessionID, "login must open a new session")
	require.NotNil(t, res.User.LastLoginAt)

	stored, err := env.users.GetByID(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)

	// The registration session is still live: sessions are independent.
	_, err = env.sessions.Get(context.Background(), reg.SessionID)
	assert.NoError(t, err)
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@x.com", "secret1")

	_, err := env.svc.Register(context.Background(), model.RegisterRequest{
		Email: "ALICE@X.COM", Password: "secret2", FirstName: "A", LastName: "B",
	})

	assert.ErrorIs(t, err, ErrDuplicateUser)
	assert.Equal(t, 1, env.users.Len())
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		req   model.RegisterRequest
		field string
	}{
		{"bad email", model.RegisterRequest{Email: "not-an-email", Password: "secret1", FirstName: "A", LastName: "B"}, "email"},
		{"short password", model.RegisterRequest{Email: "a@x.com", Password: "12345", FirstName: "A", LastName: "B"}, "password"},
		{"missing first name", model.RegisterRequest{Email: "a@x.com", Password: "secret1", LastName: "B"}, "firstName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Register(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
	assert.Equal(t, 0, env.users.Len())
}

func TestLogin_UnknownEmailAndWrongPasswordAreIdentical(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@x.com", "secret1")

	_, wrongPassword := env.svc.Login(context.Background(), model.LoginRequest{Email: "alice@x.com", Password: "nope!!"})
	_, unknownEmail := env.svc.Login(context.Background(), model.LoginRequest{Email: "bob@x.com", Password: "secret1"})

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogout_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "alice@x.com", "secret1")

	require.NoError(t, env.svc.Logout(context.Background(), res.SessionID))
	require.NoError(t, env.svc.Logout(context.Background(), res.SessionID))

	_, err := env.sessions.Get(context.Background(), res.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestLogout_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	svc := NewAuthService(env.users, &failingSessions{}, env.tokens, env.notifier, AuthOptions{})

	err := svc.Logout(context.Background(), "s-1")
	assert.ErrorIs(t, err, errStoreDown)
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@x.com", "secret1")
	login, err := env.svc.Login(context.Background(), model.LoginRequest{Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, env.svc.LogoutAll(context.Background(), reg.User.ID))

	for _, id := range []string{reg.SessionID, login.SessionID} {
		_, err := env.sessions.Get(context.Background(), id)
		assert.ErrorIs(t, err, session.ErrNotFound)
	}
}

func TestRefresh_KeepsSessionAndExtendsExpiry(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.tokens = env.tokens.WithClock(func() time.Time { return now })
	env.svc = NewAuthService(env.users, env.sessions, env.tokens, env.notifier, AuthOptions{})

	reg := env.register(t, "alice@x.com", "secret1")

	now = now.Add(time.Hour)
	id := model.Identity{
		UserID: reg.User.ID, Email: reg.User.Email, SessionID: reg.SessionID,
		Role: model.RoleUser, FirstName: "Alice", LastName: "Smith",
	}
	res, err := env.svc.Refresh(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, reg.SessionID, res.SessionID)
	assert.True(t, res.ExpiresAt.After(reg.ExpiresAt))

	claims, err := env.tokens.VerifyAccess(res.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.SessionID, claims.SessionID)
}

func TestRefresh_WithinSameSecondStillExtendsExpiry(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2026, 1, 8, 12, 0, 0, 100_000_000, time.UTC)
	env.tokens = env.tokens.WithClock(func() time.Time { return now })
	env.svc = NewAuthService(env.users, env.sessions, env.tokens, env.notifier, AuthOptions{})

	reg := env.register(t, "alice@x.com", "secret1")

	now = now.Add(500 * time.Millisecond)
	res, err := env.svc.Refresh(context.Background(), model.Identity{
		UserID: reg.User.ID, Email: reg.User.Email, SessionID: reg.SessionID,
		TokenExpiresAt: reg.ExpiresAt,
	})
	require.NoError(t, err)

	assert.True(t, res.ExpiresAt.After(reg.ExpiresAt), "refresh exp %v, login exp %v", res.ExpiresAt, reg.ExpiresAt)

	claims, err := env.tokens.VerifyAccess(res.Token)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.Time.After(reg.ExpiresAt))
}

func TestRefresh_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	svc := NewAuthService(env.users, &failingSessions{}, env.tokens, env.notifier, AuthOptions{})

	_, err := svc.Refresh(context.Background(), model.Identity{UserID: "u-1", SessionID: "s-1"})
	assert.ErrorIs(t, err, errStoreDown)
}

func TestGetUser_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@x.com", "secret1")

	bio := "  saving for a house "
	first := "Alicia"
	user, err := env.svc.UpdateProfile(context.Background(), reg.User.ID, model.UpdateProfileRequest{
		FirstName: &first,
		Bio:       &bio,
	})
	require.NoError(t, err)

	assert.Equal(t, "Alicia", user.FirstName)
	assert.Equal(t, "Smith", user.LastName)
	assert.Equal(t, "saving for a house", user.Bio)

	empty := ""
	_, err = env.svc.UpdateProfile(context.Background(), reg.User.ID, model.UpdateProfileRequest{LastName: &empty})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@x.com", "secret1")
	other, err := env.svc.Login(context.Background(), model.LoginRequest{Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)

	id := model.Identity{UserID: reg.User.ID, Email: reg.User.Email, SessionID: reg.SessionID}

	err = env.svc.ChangePassword(context.Background(), id, model.ChangePasswordRequest{
		CurrentPassword: "wrong!", NewPassword: "secret2",
	})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.svc.ChangePassword(context.Background(), id, model.ChangePasswordRequest{
		CurrentPassword: "secret1", NewPassword: "secret2",
	})
	require.NoError(t, err)

	_, err = env.svc.Login(context.Background(), model.LoginRequest{Email: "alice@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(context.Background(), model.LoginRequest{Email: "alice@x.com", Password: "secret2"})
	assert.NoError(t, err)

	_, err = env.sessions.Get(context.Background(), reg.SessionID)
	assert.NoError(t, err, "caller's session survives")
	_, err = env.sessions.Get(context.Background(), other.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound, "other sessions are revoked")
}

func TestForgotPassword_AlwaysSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@x.com", "secret1")

	require.NoError(t, env.svc.ForgotPassword(context.Background(), model.ForgotPasswordRequest{Email: "bob@x.com"}))
	assert.Empty(t, env.notifier.token("bob@x.com"))

	require.NoError(t, env.svc.ForgotPassword(context.Background(), model.ForgotPasswordRequest{Email: "Alice@x.com"}))
	assert.NotEmpty(t, env.notifier.token("alice@x.com"))

	env.notifier.err = errors.New("smtp down")
	assert.NoError(t, env.svc.ForgotPassword(context.Background(), model.ForgotPasswordRequest{Email: "alice@x.com"}))

	err := env.svc.ForgotPassword(context.Background(), model.ForgotPasswordRequest{Email: "nope"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@x.com", "secret1")
	require.NoError(t, env.svc.ForgotPassword(context.Background(), model.ForgotPasswordRequest{Email: "alice@x.com"}))
	token := env.notifier.token("alice@x.com")
	require.NotEmpty(t, token)

	require.NoError(t, env.svc.ResetPassword(context.Background(), model.ResetPasswordRequest{
		Token: token, NewPassword: "brand-new",
	}))

	_, err := env.svc.Login(context.Background(), model.LoginRequest{Email: "alice@x.com", Password: "brand-new"})
	assert.NoError(t, err)

	_, err = env.sessions.Get(context.Background(), reg.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound, "reset revokes existing sessions")

	err = env.svc.ResetPassword(context.Background(), model.ResetPasswordRequest{Token: token, NewPassword: "again-new"})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken, "reset tokens are single-use")
}

func TestResetPassword_FailedWriteKeepsTokenUsable(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@x.com", "secret1")
	users := &flakyUsers{MemoryUserRepository: env.users, failures: 1}
	svc := NewAuthService(users, env.sessions, env.tokens, env.notifier, AuthOptions{})

	require.NoError(t, svc.ForgotPassword(context.Background(), model.ForgotPasswordRequest{Email: "alice@x.com"}))
	token := env.notifier.token("alice@x.com")
	req := model.ResetPasswordRequest{Token: token, NewPassword: "brand-new"}

	err := svc.ResetPassword(context.Background(), req)
	assert.ErrorIs(t, err, errStoreDown)

	require.NoError(t, svc.ResetPassword(context.Background(), req))

	_, err = svc.Login(context.Background(), model.LoginRequest{Email: "alice@x.com", Password: "brand-new"})
	assert.NoError(t, err)

	err = svc.ResetPassword(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestResetPassword_ConsumedTTLFollowsCodecClock(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2020, 3, 1, 9, 0, 0, 0, time.UTC)
	env.tokens = env.tokens.WithClock(func() time.Time { return now })
	sessions := &ttlRecorder{MemoryStore: env.sessions}
	env.svc = NewAuthService(env.users, sessions, env.tokens, env.notifier, AuthOptions{})
	env.register(t, "alice@x.com", "secret1")

	require.NoError(t, env.svc.ForgotPassword(context.Background(), model.ForgotPasswordRequest{Email: "alice@x.com"}))
	now = now.Add(10 * time.Minute)

	require.NoError(t, env.svc.ResetPassword(context.Background(), model.ResetPasswordRequest{
		Token: env.notifier.token("alice@x.com"), NewPassword: "brand-new",
	}))
	assert.Equal(t, 50*time.Minute, sessions.ttl)
}

func TestResetPassword_TamperedTokenLeavesHashUnchanged(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@x.com", "secret1")

	forged, _, err := crypto.NewTokenCodec("attacker-secret", "fingenius", time.Hour, time.Hour).IssueReset(reg.User.ID, reg.User.Email)
	require.NoError(t, err)

	err = env.svc.ResetPassword(context.Background(), model.ResetPasswordRequest{Token: forged, NewPassword: "pwned!!"})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	stored, err := env.users.GetByID(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.User.PasswordHash, stored.PasswordHash)
}

func TestResetPassword_ExpiredOrUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	ghost, _, err := env.tokens.IssueReset("ghost", "ghost@x.com")
	require.NoError(t, err)
	err = env.svc.ResetPassword(context.Background(), model.ResetPasswordRequest{Token: ghost, NewPassword: "secret9"})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	past := time.Now().Add(-2 * time.Hour)
	expired, _, err := env.tokens.WithClock(func() time.Time { return past }).IssueReset("ghost", "ghost@x.com")
	require.NoError(t, err)
	err = env.svc.ResetPassword(context.Background(), model.ResetPasswordRequest{Token: expired, NewPassword: "secret9"})
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestSetPremium(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@x.com", "secret1")

	user, err := env.svc.SetPremium(context.Background(), reg.User.ID, true)
	require.NoError(t, err)
	assert.True(t, user.IsPremium)

	_, err = env.svc.SetPremium(context.Background(), "missing", true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"password": "is required", "email": "is required"}}
	assert.Equal(t, "email is required; password is required", err.Error())
	assert.True(t, errors.Is(err, ErrValidation))
}
