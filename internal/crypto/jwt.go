package crypto

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const (
	accessAudience = "fingenius-api"
	resetAudience  = "fingenius-password-reset"
)

// Claims represents the JWT claims of a FinGenius bearer token.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	SessionID string `json:"session_id,omitempty"`
}

// TokenCodec issues and verifies signed, time-bounded tokens.
type TokenCodec struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	resetTTL  time.Duration
	now       func() time.Time
}

// NewTokenCodec creates a TokenCodec signing with HS256 under secret.
func NewTokenCodec(secret, issuer string, accessTTL, resetTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: accessTTL,
		resetTTL:  resetTTL,
		now:       time.Now,
	}
}

// WithClock returns a copy of c that reads the current time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// AccessTTL returns the lifetime of access tokens.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

// Now returns the codec's current time.
func (c *TokenCodec) Now() time.Time {
	return c.now()
}

// IssueAccess mints a bearer token bound to a session.
func (c *TokenCodec) IssueAccess(userID, email, sessionID string) (string, time.Time, error) {
	return c.issue(Claims{UserID: userID, Email: email, SessionID: sessionID}, accessAudience, c.expiry(c.accessTTL, time.Time{}))
}

// ReissueAccess mints a bearer token for an existing session whose expiry is
// strictly later than prev, the expiry of the token being replaced.
func (c *TokenCodec) ReissueAccess(userID, email, sessionID string, prev time.Time) (string, time.Time, error) {
	return c.issue(Claims{UserID: userID, Email: email, SessionID: sessionID}, accessAudience, c.expiry(c.accessTTL, prev))
}

// VerifyAccess checks signature, issuer, audience and expiry of an access token.
// It says nothing about whether the session behind the token is still live.
func (c *TokenCodec) VerifyAccess(token string) (*Claims, error) {
	claims, err := c.verify(token, accessAudience)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueReset mints a short-lived password reset token. Each token carries a
// unique ID so it can be consumed exactly once.
func (c *TokenCodec) IssueReset(userID, email string) (string, time.Time, error) {
	claims := Claims{UserID: userID, Email: email}
	claims.ID = uuid.NewString()
	return c.issue(claims, resetAudience, c.expiry(c.resetTTL, time.Time{}))
}

// VerifyReset checks a password reset token.
func (c *TokenCodec) VerifyReset(token string) (*Claims, error) {
	claims, err := c.verify(token, resetAudience)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// expiry returns now+ttl at the one-second resolution of the exp claim, pushed
// past floor when it would not be later.
func (c *TokenCodec) expiry(ttl time.Duration, floor time.Time) time.Time {
	expiresAt := c.now().Add(ttl).Truncate(time.Second)
	if !floor.IsZero() && !expiresAt.After(floor) {
		expiresAt = floor.Truncate(time.Second).Add(time.Second)
	}
	return expiresAt
}

func (c *TokenCodec) issue(claims Claims, audience string, expiresAt time.Time) (string, time.Time, error) {
	now := c.now()
	claims.Issuer = c.issuer
	claims.Audience = jwt.ClaimStrings{audience}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (c *TokenCodec) verify(tokenString, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		// Expiry is only reported when the signature itself checked out.
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
