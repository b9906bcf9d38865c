package handler

import (
	"errors"
	"net/http"
	"strconv"

	"tenancy-service/internal/model"
	"tenancy-service/internal/scheduler"
	"tenancy-service/internal/store"
	"tenancy-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// JobHandler exposes manual and catch-up job triggering and the run audit
// trail. Manual failures propagate to the caller; scheduled outcomes are only
// visible through the audit records.
type JobHandler struct {
	runner   *scheduler.Runner
	runs     *store.Scheduling
	registry *scheduler.Registry
}

// NewJobHandler creates the job handler.
func NewJobHandler(runner *scheduler.Runner, runs *store.Scheduling, registry *scheduler.Registry) *JobHandler {
	return &JobHandler{runner: runner, runs: runs, registry: registry}
}

// Run triggers one job for the request's tenant and reports the outcome
// synchronously.
func (h *JobHandler) Run(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, ok := c.Get("tenant_id").(uint)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant context required"})
	}
	jobType := model.JobType(c.Param("type"))

	var triggeredBy *uint
	if userID, ok := c.Get("user_id").(uint); ok {
		triggeredBy = &userID
	}

	run, err := h.runner.RunForTenant(c.Request().Context(), tenantID, jobType, model.TriggerManual, triggeredBy)
	if err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown job type"})
		}
		log.Error("Manual job run failed",
			zap.Uint("tenant_id", tenantID),
			zap.String("job_type", string(jobType)),
			zap.Error(err))
		// The caller gets the audit record alongside the failure so the
		// per-target counts are visible.
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error(), "run": run})
	}

	return c.JSON(http.StatusOK, echo.Map{"run": run})
}

// RunAll triggers a catch-up sweep over every tenant with the job enabled.
func (h *JobHandler) RunAll(c echo.Context) error {
	log := logger.FromContext(c)

	jobType := model.JobType(c.Param("type"))

	var triggeredBy *uint
	if userID, ok := c.Get("user_id").(uint); ok {
		triggeredBy = &userID
	}

	run, err := h.runner.RunForAllTenants(c.Request().Context(), jobType, model.TriggerCatchup, triggeredBy)
	if err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown job type"})
		}
		log.Error("Catch-up sweep failed", zap.String("job_type", string(jobType)), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error(), "run": run})
	}

	return c.JSON(http.StatusOK, echo.Map{"run": run})
}

// ListRuns returns the tenant's recent job runs, newest first.
func (h *JobHandler) ListRuns(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, ok := c.Get("tenant_id").(uint)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant context required"})
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	runs, err := h.runs.ListRuns(c.Request().Context(), tenantID, limit)
	if err != nil {
		log.Error("Failed to list job runs", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve job runs"})
	}

	return c.JSON(http.StatusOK, runs)
}

// RestartScheduler rebuilds every per-tenant trigger from current
// preferences, used after bulk configuration changes.
func (h *JobHandler) RestartScheduler(c echo.Context) error {
	log := logger.FromContext(c)

	if err := h.registry.RestartAll(c.Request().Context()); err != nil {
		log.Error("Scheduler restart failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "scheduler restart failed"})
	}

	log.Info("Scheduler restarted", zap.Int("handles", h.registry.HandleCount()))
	return c.JSON(http.StatusOK, echo.Map{
		"message": "scheduler restarted",
		"handles": h.registry.HandleCount(),
	})
}
