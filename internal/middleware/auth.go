package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fingenius/fingenius-go/internal/crypto"
	"github.com/fingenius/fingenius-go/internal/model"
	"github.com/fingenius/fingenius-go/internal/response"
	"github.com/fingenius/fingenius-go/internal/session"
)

type contextKey string

const identityKey contextKey = "identity"

// Rejection is the reason a request failed authentication.
type Rejection int

const (
	Accepted Rejection = iota
	NoToken
	BadToken
	ExpiredToken
	DeadSession
	Internal
)

func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case NoToken:
		return "no_token"
	case BadToken:
		return "bad_token"
	case ExpiredToken:
		return "expired_token"
	case DeadSession:
		return "dead_session"
	case Internal:
		return "internal"
	}
	return "unknown"
}

func (r Rejection) write(w http.ResponseWriter) {
	switch r {
	case NoToken:
		response.Error(w, http.StatusUnauthorized, response.KindAccessTokenRequired, "Access token required")
	case BadToken:
		response.Error(w, http.StatusUnauthorized, response.KindInvalidToken, "Invalid token")
	case ExpiredToken:
		response.Error(w, http.StatusUnauthorized, response.KindTokenExpired, "Token expired")
	case DeadSession:
		response.Error(w, http.StatusUnauthorized, response.KindInvalidSession, "Session expired or invalid")
	default:
		response.Error(w, http.StatusInternalServerError, response.KindAuthenticationFailed, "Authentication failed")
	}
}

// Guard authenticates bearer tokens against live sessions.
type Guard struct {
	tokens   *crypto.TokenCodec
	sessions session.Store
}

// NewGuard creates a Guard.
func NewGuard(tokens *crypto.TokenCodec, sessions session.Store) *Guard {
	return &Guard{tokens: tokens, sessions: sessions}
}

// Authenticate resolves the identity behind r. A session store failure is
// reported as Internal, never as DeadSession.
func (g *Guard) Authenticate(r *http.Request) (model.Identity, Rejection, error) {
	token, ok := bearerToken(r)
	if !ok {
		return model.Identity{}, NoToken, nil
	}

	claims, err := g.tokens.VerifyAccess(token)
	switch {
	case errors.Is(err, crypto.ErrTokenExpired):
		return model.Identity{}, ExpiredToken, nil
	case err != nil:
		return model.Identity{}, BadToken, nil
	case claims.SessionID == "" || claims.UserID == "":
		return model.Identity{}, BadToken, nil
	}

	sess, err := g.sessions.Get(r.Context(), claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return model.Identity{}, DeadSession, nil
		}
		return model.Identity{}, Internal, err
	}
	if sess.UserID != claims.UserID {
		return model.Identity{}, DeadSession, nil
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return model.Identity{
		UserID:         claims.UserID,
		Email:          claims.Email,
		SessionID:      claims.SessionID,
		Role:           sess.Role,
		IsPremium:      sess.IsPremium,
		FirstName:      sess.FirstName,
		LastName:       sess.LastName,
		TokenExpiresAt: expiresAt,
	}, Accepted, nil
}

// RequireAuth rejects requests without a valid token bound to a live session.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, rejection, err := g.Authenticate(r)
		if rejection != Accepted {
			if err != nil {
				slog.ErrorContext(r.Context(), "authentication failed", "error", err)
			}
			rejection.write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// OptionalAuth attaches the identity when one can be resolved and proceeds
// anonymously otherwise.
func (g *Guard) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, rejection, err := g.Authenticate(r)
		if err != nil {
			slog.WarnContext(r.Context(), "optional authentication failed", "error", err)
		}
		if rejection != Accepted {
			id = model.Identity{}
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, response.KindAccessTokenRequired, "Access token required")
				return
			}
			if !id.HasRole(roles...) {
				response.Error(w, http.StatusForbidden, response.KindInsufficientPermissions, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePremium must run after RequireAuth.
func RequirePremium(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			response.Error(w, http.StatusUnauthorized, response.KindAccessTokenRequired, "Access token required")
			return
		}
		if !id.IsPremium {
			response.Error(w, http.StatusForbidden, response.KindPremiumFeature, "This feature requires a premium subscription")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated identity, if any. An anonymous
// identity set by OptionalAuth reports false.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	if !ok || !id.Authenticated() {
		return model.Identity{}, false
	}
	return id, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
