package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenancy-service/internal/model"
	"tenancy-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownJob is returned when no job is registered for the requested type.
var ErrUnknownJob = errors.New("unknown job type")

// Runner executes a named job for one tenant (or system-wide), exactly once
// per invocation, bracketed by a persisted ScheduledJobRun.
type Runner struct {
	store Store
	jobs  map[model.JobType]Job
	log   *zap.Logger
	now   func() time.Time
}

// NewRunner creates a job runner. Jobs must be registered before use.
func NewRunner(store Store, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		store: store,
		jobs:  make(map[model.JobType]Job),
		log:   log,
		now:   time.Now,
	}
}

// Register adds a job implementation. Registering the same type twice
// replaces the earlier one.
func (r *Runner) Register(job Job) {
	r.jobs[job.Type()] = job
}

// Jobs returns the registered job types.
func (r *Runner) Jobs() []model.JobType {
	types := make([]model.JobType, 0, len(r.jobs))
	for t := range r.jobs {
		types = append(types, t)
	}
	return types
}

// RunForTenant executes jobType for one tenant. The audit row is opened
// before any external call, so a crash mid-job leaves an observable stuck
// "running" record. A missing or disabled tenant closes the run as completed
// with a skip reason; that is a normal outcome, not a failure. The returned
// error is non-nil only when the run closed as failed — scheduled callers
// log and swallow it, manual callers propagate it.
func (r *Runner) RunForTenant(ctx context.Context, tenantID uint, jobType model.JobType, triggeredBy string, triggeredByUserID *uint) (*model.ScheduledJobRun, error) {
	job, ok := r.jobs[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobType)
	}

	run := &model.ScheduledJobRun{
		RunID:             uuid.New().String(),
		TenantID:          &tenantID,
		JobType:           jobType,
		Status:            model.RunStatusRunning,
		TriggeredBy:       triggeredBy,
		TriggeredByUserID: triggeredByUserID,
		StartedAt:         r.now().UTC(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("open job run: %w", err)
	}

	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.closeRun(ctx, run, model.RunStatusCompleted, model.RunSummary{Reason: "tenant not found"}, "")
			return run, nil
		}
		r.closeRun(ctx, run, model.RunStatusFailed, model.RunSummary{}, err.Error())
		return run, fmt.Errorf("load tenant %d: %w", tenantID, err)
	}

	if !job.Enabled(tenant) {
		r.closeRun(ctx, run, model.RunStatusCompleted, model.RunSummary{Reason: "job disabled for tenant"}, "")
		return run, nil
	}

	summary, jobErr := r.execute(ctx, job, tenant)

	if jobErr != nil {
		r.closeRun(ctx, run, model.RunStatusFailed, summary, jobErr.Error())
		return run, fmt.Errorf("job %s for tenant %d: %w", jobType, tenantID, jobErr)
	}

	attempted := summary.Sent + summary.Errors
	if attempted > 0 && summary.Sent == 0 {
		msg := fmt.Sprintf("all %d attempted targets failed", attempted)
		r.closeRun(ctx, run, model.RunStatusFailed, summary, msg)
		return run, fmt.Errorf("job %s for tenant %d: %s", jobType, tenantID, msg)
	}

	if attempted == 0 && summary.Skipped == 0 {
		summary.Reason = "no targets"
	}
	r.closeRun(ctx, run, model.RunStatusCompleted, summary, "")
	return run, nil
}

// RunForAllTenants sweeps every tenant with the job enabled. One tenant's
// failure never stops the sweep; the sweep itself is audited under a
// nil tenant id and fails only when every per-tenant run failed.
func (r *Runner) RunForAllTenants(ctx context.Context, jobType model.JobType, triggeredBy string, triggeredByUserID *uint) (*model.ScheduledJobRun, error) {
	if _, ok := r.jobs[jobType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobType)
	}

	sweep := &model.ScheduledJobRun{
		RunID:             uuid.New().String(),
		TenantID:          nil,
		JobType:           jobType,
		Status:            model.RunStatusRunning,
		TriggeredBy:       triggeredBy,
		TriggeredByUserID: triggeredByUserID,
		StartedAt:         r.now().UTC(),
	}
	if err := r.store.CreateRun(ctx, sweep); err != nil {
		return nil, fmt.Errorf("open sweep run: %w", err)
	}

	tenants, err := r.store.ListTenantsEnabledFor(ctx, jobType)
	if err != nil {
		r.closeRun(ctx, sweep, model.RunStatusFailed, model.RunSummary{}, err.Error())
		return sweep, fmt.Errorf("list tenants for %s sweep: %w", jobType, err)
	}

	var total model.RunSummary
	var failedTenants int
	for _, tenant := range tenants {
		run, err := r.RunForTenant(ctx, tenant.ID, jobType, triggeredBy, triggeredByUserID)
		if err != nil {
			failedTenants++
			r.log.Error("tenant job failed during sweep",
				zap.String("job_type", string(jobType)),
				zap.Uint("tenant_id", tenant.ID),
				zap.Error(err))
		}
		if run != nil {
			total.Sent += run.ResultSummary.Sent
			total.Skipped += run.ResultSummary.Skipped
			total.Errors += run.ResultSummary.Errors
		}
	}

	if len(tenants) == 0 {
		total.Reason = "no tenants enabled"
	}

	if len(tenants) > 0 && failedTenants == len(tenants) {
		msg := fmt.Sprintf("all %d tenants failed", failedTenants)
		r.closeRun(ctx, sweep, model.RunStatusFailed, total, msg)
		return sweep, fmt.Errorf("%s sweep: %s", jobType, msg)
	}

	r.closeRun(ctx, sweep, model.RunStatusCompleted, total, "")
	return sweep, nil
}

// execute runs the per-target loop with partial-failure isolation: one bad
// target never aborts the rest. A panic escaping the job is converted into
// a whole-job failure.
func (r *Runner) execute(ctx context.Context, job Job, tenant *model.Tenant) (summary model.RunSummary, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panic: %v", rec)
		}
	}()

	targets, err := job.Targets(ctx, tenant)
	if err != nil {
		return summary, fmt.Errorf("enumerate targets: %w", err)
	}

	for _, target := range targets {
		perr := job.Process(ctx, tenant, target)
		switch {
		case perr == nil:
			summary.Sent++
		case errors.Is(perr, ErrSkipTarget):
			summary.Skipped++
		default:
			summary.Errors++
			r.log.Warn("job target failed",
				zap.String("job_type", string(job.Type())),
				zap.Uint("tenant_id", tenant.ID),
				zap.String("target_id", target.ID),
				zap.String("target_name", target.Name),
				zap.Error(perr))
		}
	}
	return summary, nil
}

// closeRun writes the terminal audit record. Close failures are logged, not
// surfaced: the job outcome has already been decided.
func (r *Runner) closeRun(ctx context.Context, run *model.ScheduledJobRun, status string, summary model.RunSummary, errMsg string) {
	now := r.now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.ResultSummary = summary
	run.ErrorMessage = errMsg

	if err := r.store.CloseRun(ctx, run); err != nil {
		r.log.Error("failed to close job run",
			zap.String("run_id", run.RunID),
			zap.String("job_type", string(run.JobType)),
			zap.Error(err))
	}

	prometheus.RecordJobRun(string(run.JobType), status, run.TriggeredBy)
	prometheus.ObserveJobRunDuration(string(run.JobType), now.Sub(run.StartedAt))
}
