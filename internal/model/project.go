package model

import (
	"time"

	"gorm.io/gorm"
)

// Project is a tenant-scoped delivery project. The planner sync job pushes
// each active project's state to the external task board.
type Project struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	TenantID      uint           `json:"tenant_id" gorm:"index;not null"`
	Name          string         `json:"name" gorm:"type:varchar(200);not null"`
	PlannerPlanID string         `json:"planner_plan_id" gorm:"type:varchar(64)"`
	Active        bool           `json:"active" gorm:"default:true"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}
