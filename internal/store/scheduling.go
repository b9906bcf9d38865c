package store

import (
	"context"
	"errors"
	"fmt"

	"tenancy-service/internal/model"
	"tenancy-service/internal/scheduler"

	"gorm.io/gorm"
)

// Scheduling implements scheduler.Store plus the project listing the planner
// sync job needs.
type Scheduling struct {
	db *gorm.DB
}

// NewScheduling creates the scheduling datastore.
func NewScheduling(db *gorm.DB) *Scheduling {
	return &Scheduling{db: db}
}

func (s *Scheduling) GetTenant(ctx context.Context, id uint) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduler.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *Scheduling) ListTenantsEnabledFor(ctx context.Context, jobType model.JobType) ([]model.Tenant, error) {
	query := s.db.WithContext(ctx).Where("active = ?", true)
	switch jobType {
	case model.JobExpenseReminder:
		query = query.Where("reminder_enabled = ?", true)
	case model.JobPlannerSync:
		query = query.Where("sync_enabled = ?", true)
	default:
		return nil, fmt.Errorf("no enablement flag for job type %q", jobType)
	}

	var tenants []model.Tenant
	if err := query.Order("id").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *Scheduling) CreateRun(ctx context.Context, run *model.ScheduledJobRun) error {
	return s.db.WithContext(ctx).Create(run).Error
}

// CloseRun transitions a run out of the running state. The status guard keeps
// the audit trail append-only: a closed run is never rewritten.
func (s *Scheduling) CloseRun(ctx context.Context, run *model.ScheduledJobRun) error {
	result := s.db.WithContext(ctx).Model(&model.ScheduledJobRun{}).
		Where("run_id = ? AND status = ?", run.RunID, model.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":         run.Status,
			"completed_at":   run.CompletedAt,
			"result_summary": run.ResultSummary,
			"error_message":  run.ErrorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run %s is not open", run.RunID)
	}
	return nil
}

func (s *Scheduling) ListRuns(ctx context.Context, tenantID uint, limit int) ([]model.ScheduledJobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []model.ScheduledJobRun
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ListActiveProjects returns the tenant's active projects for the planner
// sync job.
func (s *Scheduling) ListActiveProjects(ctx context.Context, tenantID uint) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("id").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}
