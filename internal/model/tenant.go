package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents an isolated customer organization. All business data is
// scoped to exactly one tenant.
type Tenant struct {
	ID            uint    `json:"id" gorm:"primaryKey"`
	Slug          string  `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	Name          string  `json:"name" gorm:"type:varchar(100);not null"`
	AzureTenantID *string `json:"azure_tenant_id,omitempty" gorm:"type:varchar(64);index"` // External IdP tenant identifier

	// Reminder scheduling preferences. ReminderTime is "HH:MM" in the
	// tenant's Timezone, ReminderDay is 0 (Sunday) through 6 (Saturday).
	ReminderEnabled bool   `json:"reminder_enabled" gorm:"default:false"`
	ReminderTime    string `json:"reminder_time" gorm:"type:varchar(5);default:'09:00'"`
	ReminderDay     int    `json:"reminder_day" gorm:"default:1"`
	Timezone        string `json:"timezone" gorm:"type:varchar(64);default:'UTC'"`

	SyncEnabled bool `json:"sync_enabled" gorm:"default:false"`

	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Domains []TenantDomain `json:"domains,omitempty" gorm:"foreignKey:TenantID"`
}

// TenantDomain maps an email domain to a tenant for login-time resolution.
// Domain is stored lower-cased. Uniqueness across tenants is not enforced;
// when two tenants claim the same domain the lowest tenant id wins.
type TenantDomain struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"index;not null"`
	Domain    string    `json:"domain" gorm:"type:varchar(255);index;not null"`
	CreatedAt time.Time `json:"created_at"`
}
