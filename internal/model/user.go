package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents the user model stored in the database
type User struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	Email           string         `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	Name            string         `json:"name" gorm:"type:varchar(100)"`
	Password        string         `json:"-" gorm:"type:varchar(255)"`
	Role            string         `json:"role" gorm:"type:varchar(50);default:'member'"`
	PrimaryTenantID *uint          `json:"primary_tenant_id,omitempty" gorm:"index"` // Durable tenant assignment, written once by the resolver
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}
