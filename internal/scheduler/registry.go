package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"tenancy-service/internal/model"
	"tenancy-service/prometheus"

	"go.uber.org/zap"
)

// TriggerHandle is an active recurring trigger that can be cancelled.
type TriggerHandle interface {
	Cancel()
}

// TriggerScheduler is the minimal cron facility the registry depends on.
// Production uses the robfig/cron adapter; tests use a fake.
type TriggerScheduler interface {
	// Schedule registers fn to fire on the cron expression, evaluated in the
	// given IANA timezone.
	Schedule(spec, timezone string, fn func()) (TriggerHandle, error)
}

// Registry keeps exactly one active recurring trigger per tenant that has the
// job enabled, reflecting that tenant's configured time, day and timezone.
// Handles live only in memory and are rebuilt from tenant preferences on
// process start.
type Registry struct {
	store    Store
	runner   *Runner
	triggers TriggerScheduler
	job      Job
	log      *zap.Logger

	mu      sync.Mutex
	handles map[uint]TriggerHandle
}

// NewRegistry creates a schedule registry for one job.
func NewRegistry(store Store, runner *Runner, triggers TriggerScheduler, job Job, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:    store,
		runner:   runner,
		triggers: triggers,
		job:      job,
		log:      log,
		handles:  make(map[uint]TriggerHandle),
	}
}

// StartAll registers a trigger for every tenant with the job enabled.
// Tenants whose preferences do not yield a valid schedule are logged and
// skipped; they must not block the rest.
func (r *Registry) StartAll(ctx context.Context) error {
	tenants, err := r.store.ListTenantsEnabledFor(ctx, r.job.Type())
	if err != nil {
		return fmt.Errorf("list tenants for %s schedules: %w", r.job.Type(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range tenants {
		if err := r.registerLocked(&tenants[i]); err != nil {
			r.log.Error("failed to schedule tenant job",
				zap.Uint("tenant_id", tenants[i].ID),
				zap.String("job_type", string(r.job.Type())),
				zap.Error(err))
		}
	}

	prometheus.SetScheduleHandles(string(r.job.Type()), len(r.handles))
	r.log.Info("tenant schedules started",
		zap.String("job_type", string(r.job.Type())),
		zap.Int("count", len(r.handles)))
	return nil
}

// StopAll cancels every registered trigger and clears the registry. Safe to
// call when nothing is registered. In-flight runs continue to completion and
// still write their closing audit record.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tenantID, handle := range r.handles {
		handle.Cancel()
		delete(r.handles, tenantID)
	}
	prometheus.SetScheduleHandles(string(r.job.Type()), 0)
}

// UpdateForTenant re-registers the tenant's trigger from its current
// preferences: the old handle is always stopped first, and no new one is
// created when the job is disabled or the tenant is gone.
func (r *Registry) UpdateForTenant(ctx context.Context, tenantID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.handles[tenantID]; ok {
		handle.Cancel()
		delete(r.handles, tenantID)
	}

	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load tenant %d for reschedule: %w", tenantID, err)
	}

	if !tenant.Active || !r.job.Enabled(tenant) {
		prometheus.SetScheduleHandles(string(r.job.Type()), len(r.handles))
		return nil
	}
	err = r.registerLocked(tenant)
	prometheus.SetScheduleHandles(string(r.job.Type()), len(r.handles))
	return err
}

// RestartAll rebuilds every trigger, used after bulk configuration changes.
func (r *Registry) RestartAll(ctx context.Context) error {
	r.StopAll()
	return r.StartAll(ctx)
}

// HandleCount returns the number of active triggers.
func (r *Registry) HandleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// registerLocked schedules one tenant. Caller holds r.mu. Any existing
// handle is cancelled first so a tenant can never fire twice.
func (r *Registry) registerLocked(tenant *model.Tenant) error {
	if handle, ok := r.handles[tenant.ID]; ok {
		handle.Cancel()
		delete(r.handles, tenant.ID)
	}

	spec, err := reminderCronSpec(tenant.ReminderTime, tenant.ReminderDay)
	if err != nil {
		return fmt.Errorf("tenant %d schedule: %w", tenant.ID, err)
	}

	tenantID := tenant.ID
	handle, err := r.triggers.Schedule(spec, tenant.Timezone, func() {
		// Scheduled fires swallow the error: the outcome lives in the
		// ScheduledJobRun audit trail.
		if _, err := r.runner.RunForTenant(context.Background(), tenantID, r.job.Type(), model.TriggerScheduled, nil); err != nil {
			r.log.Error("scheduled job run failed",
				zap.Uint("tenant_id", tenantID),
				zap.String("job_type", string(r.job.Type())),
				zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register trigger for tenant %d: %w", tenant.ID, err)
	}

	r.handles[tenant.ID] = handle
	r.log.Debug("tenant schedule registered",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("spec", spec),
		zap.String("timezone", tenant.Timezone))
	return nil
}

// reminderCronSpec converts a tenant's "HH:MM" time and 0-6 weekday into a
// five-field cron expression.
func reminderCronSpec(hhmm string, day int) (string, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid reminder time %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid reminder hour %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid reminder minute %q", hhmm)
	}
	if day < 0 || day > 6 {
		return "", fmt.Errorf("invalid reminder day %d", day)
	}
	return fmt.Sprintf("%d %d * * %d", minute, hour, day), nil
}
