package handler

import (
	"errors"
	"net/http"
	"time"

	"tenancy-service/internal/scheduler"
	"tenancy-service/internal/store"
	"tenancy-service/internal/tenancy"
	"tenancy-service/pkg/logger"
	"tenancy-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TenantHandler serves the current tenant context, membership listing, and
// schedule preference updates.
type TenantHandler struct {
	tenants  *store.Tenancy
	registry *scheduler.Registry
	cache    *tenancy.DefaultTenantCache
}

// NewTenantHandler creates the tenant handler.
func NewTenantHandler(tenants *store.Tenancy, registry *scheduler.Registry, cache *tenancy.DefaultTenantCache) *TenantHandler {
	return &TenantHandler{tenants: tenants, registry: registry, cache: cache}
}

// Me returns the authenticated identity and its attached tenant context.
func (h *TenantHandler) Me(c echo.Context) error {
	resp := echo.Map{
		"user_id": c.Get("user_id"),
		"email":   c.Get("email"),
		"name":    c.Get("name"),
		"role":    c.Get("user_role"),
	}
	if tenantID, ok := c.Get("tenant_id").(uint); ok {
		resp["tenant"] = echo.Map{
			"id":     tenantID,
			"slug":   c.Get("tenant_slug"),
			"name":   c.Get("tenant_name"),
			"source": c.Get("tenant_source"),
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// GetCurrent returns the full record of the request's tenant.
func (h *TenantHandler) GetCurrent(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, ok := c.Get("tenant_id").(uint)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant context required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	tenant, err := h.tenants.GetTenant(c.Request().Context(), tenantID)
	if err != nil {
		log.Error("Tenant not found", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	return c.JSON(http.StatusOK, tenant)
}

// ListMemberships returns every tenant the user belongs to.
func (h *TenantHandler) ListMemberships(c echo.Context) error {
	log := logger.FromContext(c)

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	memberships, err := h.tenants.ListMemberships(c.Request().Context(), userID)
	if err != nil {
		log.Error("Failed to list memberships", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve memberships"})
	}

	type membershipResponse struct {
		TenantID   uint      `json:"tenant_id"`
		TenantSlug string    `json:"tenant_slug"`
		TenantName string    `json:"tenant_name"`
		Role       string    `json:"role"`
		Status     string    `json:"status"`
		JoinedAt   time.Time `json:"joined_at"`
	}

	resp := make([]membershipResponse, 0, len(memberships))
	for _, m := range memberships {
		resp = append(resp, membershipResponse{
			TenantID:   m.TenantID,
			TenantSlug: m.Tenant.Slug,
			TenantName: m.Tenant.Name,
			Role:       m.Role,
			Status:     m.Status,
			JoinedAt:   m.JoinedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// UpdateSchedule updates the tenant's scheduling preferences and re-registers
// its trigger so the change takes effect without a restart.
func (h *TenantHandler) UpdateSchedule(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, ok := c.Get("tenant_id").(uint)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant context required"})
	}

	var req struct {
		ReminderEnabled bool   `json:"reminder_enabled"`
		ReminderTime    string `json:"reminder_time"`
		ReminderDay     int    `json:"reminder_day"`
		Timezone        string `json:"timezone"`
		SyncEnabled     bool   `json:"sync_enabled"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse schedule update", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.ReminderDay < 0 || req.ReminderDay > 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reminder_day must be 0-6"})
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid timezone"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	err := h.tenants.UpdateSchedulePrefs(c.Request().Context(), tenantID, store.SchedulePrefs{
		ReminderEnabled: req.ReminderEnabled,
		ReminderTime:    req.ReminderTime,
		ReminderDay:     req.ReminderDay,
		Timezone:        req.Timezone,
		SyncEnabled:     req.SyncEnabled,
	})
	if err != nil {
		if errors.Is(err, tenancy.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
		}
		log.Error("Failed to update schedule preferences", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	// Tenant configuration changed: drop the cached default tenant and
	// rebuild this tenant's trigger.
	h.cache.Invalidate()
	if err := h.registry.UpdateForTenant(c.Request().Context(), tenantID); err != nil {
		log.Error("Failed to reschedule tenant", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reschedule failed"})
	}

	log.Info("Schedule preferences updated",
		zap.Uint("tenant_id", tenantID),
		zap.Bool("reminder_enabled", req.ReminderEnabled),
		zap.String("reminder_time", req.ReminderTime),
		zap.Int("reminder_day", req.ReminderDay),
		zap.String("timezone", req.Timezone))

	return c.JSON(http.StatusOK, echo.Map{"message": "schedule updated"})
}
