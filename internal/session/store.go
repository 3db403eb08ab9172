// Package session holds the server-side session records that back bearer
// tokens. A token is only honoured while its session exists here.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/fingenius/fingenius-go/internal/model"
)

// ErrNotFound is returned when a session does not exist or has expired.
// Every other error from a Store is an infrastructure failure.
var ErrNotFound = errors.New("session not found")

// Store maps opaque session ids to session payloads with expiry.
type Store interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	// Set creates or overwrites the session and resets its TTL.
	Set(ctx context.Context, id string, s *model.Session, ttl time.Duration) error
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteByUser removes every session of userID except exceptID (which may be empty).
	DeleteByUser(ctx context.Context, userID, exceptID string) error
	// ConsumeOnce records key as used for ttl. It reports false when the key was
	// already consumed.
	ConsumeOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets a consumed key so it can be consumed again.
	Release(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
