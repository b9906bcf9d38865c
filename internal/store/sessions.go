package store

import (
	"context"
	"errors"
	"time"

	"tenancy-service/internal/model"
	"tenancy-service/internal/session"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sessions is the gorm-backed session.Store.
type Sessions struct {
	db *gorm.DB
}

// NewSessions creates the session datastore.
func NewSessions(db *gorm.DB) *Sessions {
	return &Sessions{db: db}
}

func (s *Sessions) Create(ctx context.Context, user *model.User, tenantID *uint, ttl time.Duration) (*model.Session, error) {
	now := time.Now().UTC()
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
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Sessions) Get(ctx context.Context, token string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}

	if sess.Expired(time.Now().UTC()) {
		// Lazy expiry: drop the row and report the session gone.
		s.db.WithContext(ctx).Where("token = ?", token).Delete(&model.Session{})
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (s *Sessions) Delete(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&model.Session{}).Error
}

func (s *Sessions) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now().UTC()).
		Delete(&model.Session{})
	return result.RowsAffected, result.Error
}
