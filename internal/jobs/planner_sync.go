package jobs

import (
	"context"
	"fmt"

	"tenancy-service/internal/model"
	"tenancy-service/internal/scheduler"
)

// Planner pulls the task state of one plan. Implemented by the Graph client.
type Planner interface {
	SyncPlanTasks(ctx context.Context, planID string) (int, error)
}

// ProjectLister enumerates the active projects of a tenant.
type ProjectLister interface {
	ListActiveProjects(ctx context.Context, tenantID uint) ([]model.Project, error)
}

// PlannerSync refreshes each active project of a tenant from its linked
// Planner plan. Projects without a linked plan are counted as skipped.
type PlannerSync struct {
	projects ProjectLister
	planner  Planner
}

// NewPlannerSync creates the planner sync job.
func NewPlannerSync(projects ProjectLister, planner Planner) *PlannerSync {
	return &PlannerSync{projects: projects, planner: planner}
}

func (j *PlannerSync) Type() model.JobType {
	return model.JobPlannerSync
}

func (j *PlannerSync) Enabled(t *model.Tenant) bool {
	return t.SyncEnabled
}

func (j *PlannerSync) Targets(ctx context.Context, t *model.Tenant) ([]scheduler.Target, error) {
	projects, err := j.projects.ListActiveProjects(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("list projects of tenant %d: %w", t.ID, err)
	}

	targets := make([]scheduler.Target, 0, len(projects))
	for _, p := range projects {
		targets = append(targets, scheduler.Target{ID: p.PlannerPlanID, Name: p.Name})
	}
	return targets, nil
}

func (j *PlannerSync) Process(ctx context.Context, t *model.Tenant, target scheduler.Target) error {
	if target.ID == "" {
		// Project has no linked plan.
		return scheduler.ErrSkipTarget
	}

	if _, err := j.planner.SyncPlanTasks(ctx, target.ID); err != nil {
		return err
	}
	return nil
}
