// Package session owns the opaque-token session lifecycle: created at login,
// destroyed at logout or expiry. The tenant id on a session is a login-time
// snapshot; authoritative tenant resolution happens per-request.
package session

import (
	"context"
	"errors"
	"time"

	"tenancy-service/internal/model"
)

// ErrNotFound is returned when a token does not map to a live session.
// Expired sessions are indistinguishable from missing ones.
var ErrNotFound = errors.New("session not found")

// Store is the session persistence contract. Production uses the gorm-backed
// implementation (internal/store); tests and single-node setups can use
// MemoryStore.
type Store interface {
	// Create issues a new session for the user with the given lifetime.
	Create(ctx context.Context, user *model.User, tenantID *uint, ttl time.Duration) (*model.Session, error)
	// Get returns the session for the token, or ErrNotFound if the token is
	// unknown or the session has expired.
	Get(ctx context.Context, token string) (*model.Session, error)
	// Delete destroys a session. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error
	// DeleteExpired removes every expired session and reports how many.
	DeleteExpired(ctx context.Context) (int64, error)
}
