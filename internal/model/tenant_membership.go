package model

import (
	"time"
)

// Membership status values.
const (
	MembershipActive    = "active"
	MembershipSuspended = "suspended"
)

// TenantMembership associates a user with a tenant. A user may hold
// memberships in multiple tenants; at most one row exists per
// (user_id, tenant_id) pair. Rows are suspended, never deleted.
type TenantMembership struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"uniqueIndex:idx_membership_user_tenant;not null"`
	TenantID  uint      `json:"tenant_id" gorm:"uniqueIndex:idx_membership_user_tenant;not null"`
	Role      string    `json:"role" gorm:"type:varchar(50);not null;default:'member'"`
	Status    string    `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}
