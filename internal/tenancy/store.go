package tenancy

import (
	"context"
	"errors"

	"tenancy-service/internal/model"
)

// ErrNotFound is returned by Store implementations when no row matches.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract the resolver and membership ledger need.
// The production implementation is gorm-backed (internal/store); tests use
// an in-memory fake.
type Store interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)
	// SetPrimaryTenant durably assigns a user's primary tenant. The resolver
	// only calls this when the user has no primary tenant yet.
	SetPrimaryTenant(ctx context.Context, userID, tenantID uint) error

	GetTenant(ctx context.Context, id uint) (*model.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*model.Tenant, error)
	GetTenantByAzureID(ctx context.Context, azureTenantID string) (*model.Tenant, error)
	// GetTenantByDomain returns the tenant claiming the given (lower-cased)
	// email domain. Domains are not unique across tenants; implementations
	// must order by tenant id so overlapping claims resolve deterministically.
	GetTenantByDomain(ctx context.Context, domain string) (*model.Tenant, error)

	// UpsertMembership atomically inserts the membership row or, if a row
	// already exists for (UserID, TenantID), flips its status to active
	// without touching role or joined_at.
	UpsertMembership(ctx context.Context, m *model.TenantMembership) error
	GetMembership(ctx context.Context, userID, tenantID uint) (*model.TenantMembership, error)
	// FirstActiveMembership returns the user's oldest active membership.
	FirstActiveMembership(ctx context.Context, userID uint) (*model.TenantMembership, error)
}
