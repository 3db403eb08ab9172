package model

import "time"

// Session is the payload kept in the session store under a session id.
// It is a snapshot of the user taken at login/refresh time.
type Session struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsPremium bool      `json:"isPremium"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewSession snapshots the identity fields of u.
func NewSession(u *User, now time.Time) *Session {
	return &Session{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		IsPremium: u.IsPremium,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: now,
	}
}

// Identity is the request-scoped result of authenticating a bearer token
// against a live session. The zero value is the anonymous identity.
type Identity struct {
	UserID         string
	Email          string
	SessionID      string
	Role           Role
	IsPremium      bool
	FirstName      string
	LastName       string
	TokenExpiresAt time.Time
}

// Authenticated reports whether the identity belongs to a logged-in caller.
func (id Identity) Authenticated() bool {
	return id.UserID != "" && id.SessionID != ""
}

// HasRole reports whether the identity holds one of roles.
func (id Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}

// Session rebuilds a session payload from the identity.
func (id Identity) Session(now time.Time) *Session {
	return &Session{
		UserID:    id.UserID,
		Email:     id.Email,
		Role:      id.Role,
		IsPremium: id.IsPremium,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		CreatedAt: now,
	}
}

// IdentityResponse is the client-facing view of an identity.
type IdentityResponse struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
	IsPremium bool   `json:"isPremium"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// StatusResponse is returned by the optional-auth status endpoint.
type StatusResponse struct {
	Authenticated bool              `json:"authenticated"`
	Identity      *IdentityResponse `json:"identity,omitempty"`
}

// ToResponse returns the client-facing view of id.
func (id Identity) ToResponse() IdentityResponse {
	return IdentityResponse{
		UserID:    id.UserID,
		Email:     id.Email,
		SessionID: id.SessionID,
		Role:      id.Role,
		IsPremium: id.IsPremium,
		FirstName: id.FirstName,
		LastName:  id.LastName,
	}
}
