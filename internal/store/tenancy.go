// Package store holds the gorm-backed persistence behind the narrow
// interfaces of the tenancy, session and scheduler packages.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenancy-service/internal/model"
	"tenancy-service/internal/tenancy"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tenancy implements tenancy.Store plus the member/membership queries the
// handlers and the reminder job need.
type Tenancy struct {
	db *gorm.DB
}

// NewTenancy creates the tenancy datastore.
func NewTenancy(db *gorm.DB) *Tenancy {
	return &Tenancy{db: db}
}

func (s *Tenancy) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

// GetUserByEmail is used by the login and SSO flows.
func (s *Tenancy) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &user, nil
}

// CreateUser provisions a user record, used when an SSO assertion arrives for
// an unknown email.
func (s *Tenancy) CreateUser(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *Tenancy) SetPrimaryTenant(ctx context.Context, userID, tenantID uint) error {
	result := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("primary_tenant_id", tenantID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tenancy.ErrNotFound
	}
	return nil
}

func (s *Tenancy) GetTenant(ctx context.Context, id uint) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &tenant, nil
}

func (s *Tenancy) GetTenantBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).Where("slug = ? AND active = ?", slug, true).First(&tenant).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &tenant, nil
}

func (s *Tenancy) GetTenantByAzureID(ctx context.Context, azureTenantID string) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).
		Where("azure_tenant_id = ? AND active = ?", azureTenantID, true).
		First(&tenant).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &tenant, nil
}

// GetTenantByDomain orders by tenant id so overlapping domain claims resolve
// deterministically.
func (s *Tenancy) GetTenantByDomain(ctx context.Context, domain string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := s.db.WithContext(ctx).
		Joins("JOIN tenant_domains ON tenant_domains.tenant_id = tenants.id").
		Where("tenant_domains.domain = ? AND tenants.active = ?", domain, true).
		Order("tenants.id").
		First(&tenant).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &tenant, nil
}

// UpsertMembership inserts the row or reactivates an existing one. The
// ON CONFLICT clause keys on the (user_id, tenant_id) unique index, so
// concurrent logins cannot create duplicate rows; role and joined_at are
// never touched on conflict.
func (s *Tenancy) UpsertMembership(ctx context.Context, m *model.TenantMembership) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "tenant_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     model.MembershipActive,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(m).Error
}

func (s *Tenancy) GetMembership(ctx context.Context, userID, tenantID uint) (*model.TenantMembership, error) {
	var m model.TenantMembership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		First(&m).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &m, nil
}

func (s *Tenancy) FirstActiveMembership(ctx context.Context, userID uint) (*model.TenantMembership, error) {
	var m model.TenantMembership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.MembershipActive).
		Order("joined_at, id").
		First(&m).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &m, nil
}

// ListMemberships returns all of a user's membership rows with tenants
// preloaded, for the membership listing endpoint.
func (s *Tenancy) ListMemberships(ctx context.Context, userID uint) ([]model.TenantMembership, error) {
	var memberships []model.TenantMembership
	err := s.db.WithContext(ctx).
		Preload("Tenant").
		Where("user_id = ?", userID).
		Order("joined_at").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

// ListActiveMembers returns the users holding an active membership in the
// tenant; the reminder job mails each of them.
func (s *Tenancy) ListActiveMembers(ctx context.Context, tenantID uint) ([]model.User, error) {
	var users []model.User
	err := s.db.WithContext(ctx).
		Joins("JOIN tenant_memberships ON tenant_memberships.user_id = users.id").
		Where("tenant_memberships.tenant_id = ? AND tenant_memberships.status = ?", tenantID, model.MembershipActive).
		Order("users.id").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// SchedulePrefs is the mutable slice of a tenant's scheduling preferences.
type SchedulePrefs struct {
	ReminderEnabled bool
	ReminderTime    string
	ReminderDay     int
	Timezone        string
	SyncEnabled     bool
}

// UpdateSchedulePrefs persists new scheduling preferences for a tenant.
func (s *Tenancy) UpdateSchedulePrefs(ctx context.Context, tenantID uint, prefs SchedulePrefs) error {
	result := s.db.WithContext(ctx).Model(&model.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"reminder_enabled": prefs.ReminderEnabled,
			"reminder_time":    prefs.ReminderTime,
			"reminder_day":     prefs.ReminderDay,
			"timezone":         prefs.Timezone,
			"sync_enabled":     prefs.SyncEnabled,
		})
	if result.Error != nil {
		return fmt.Errorf("update schedule prefs for tenant %d: %w", tenantID, result.Error)
	}
	if result.RowsAffected == 0 {
		return tenancy.ErrNotFound
	}
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tenancy.ErrNotFound
	}
	return err
}
