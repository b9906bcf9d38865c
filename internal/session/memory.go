package session

import (
	"context"
	"sync"
	"time"

	"tenancy-service/internal/model"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Expired sessions are dropped lazily on
// Get and in bulk by DeleteExpired.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

// Create issues a new session for the user with the given lifetime.
func (s *MemoryStore) Create(ctx context.Context, user *model.User, tenantID *uint, ttl time.Duration) (*model.Session, error) {
	now := s.now().UTC()
	sess := &model.Session{
		Token:     uuid.New().String(),
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		TenantID:  tenantID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	return sess, nil
}

// Get returns the session for the token, dropping it if expired.
func (s *MemoryStore) Get(ctx context.Context, token string) (*model.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if sess.Expired(s.now().UTC()) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	cp := *sess
	return &cp, nil
}

// Delete destroys a session. Unknown tokens are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// DeleteExpired removes every expired session and reports how many.
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	var removed int64

	s.mu.Lock()
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	s.mu.Unlock()
	return removed, nil
}
