package scheduler

import (
	"context"
	"errors"

	"tenancy-service/internal/model"
)

// ErrNotFound is returned by Store implementations when no row matches.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract of the job runner and schedule registry.
type Store interface {
	GetTenant(ctx context.Context, id uint) (*model.Tenant, error)
	// ListTenantsEnabledFor returns every active tenant with the given job
	// enabled in its preferences.
	ListTenantsEnabledFor(ctx context.Context, jobType model.JobType) ([]model.Tenant, error)

	// CreateRun opens a job run audit row (status=running).
	CreateRun(ctx context.Context, run *model.ScheduledJobRun) error
	// CloseRun writes the terminal status, completion time, summary and error
	// message of a run. Runs are closed exactly once and never reopened.
	CloseRun(ctx context.Context, run *model.ScheduledJobRun) error
	// ListRuns returns the most recent runs for a tenant, newest first.
	ListRuns(ctx context.Context, tenantID uint, limit int) ([]model.ScheduledJobRun, error)
}
