package model

import (
	"time"
)

// Session maps an opaque token to an authenticated identity snapshot.
// TenantID is the tenant cached at login; authoritative tenant resolution
// happens per-request, not from the session.
type Session struct {
	Token     string    `json:"token" gorm:"type:varchar(64);primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Email     string    `json:"email" gorm:"type:varchar(100)"`
	Name      string    `json:"name" gorm:"type:varchar(100)"`
	Role      string    `json:"role" gorm:"type:varchar(50)"`
	TenantID  *uint     `json:"tenant_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
