package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tenancy-service/internal/model"

	"go.uber.org/zap"
)

// ErrNoDefaultTenant means the configured default tenant does not exist.
// This is a deployment misconfiguration, not a per-user condition, and must
// halt login rather than let a request proceed unscoped.
var ErrNoDefaultTenant = errors.New("default tenant not found")

// Resolver maps a user to exactly one tenant using a strict priority chain:
// existing primary assignment, external-IdP tenant id, email domain, then the
// configured default tenant.
type Resolver struct {
	store  Store
	ledger *Ledger
	cache  *DefaultTenantCache
	log    *zap.Logger
}

// NewResolver creates a tenant resolver.
func NewResolver(store Store, ledger *Ledger, cache *DefaultTenantCache, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, ledger: ledger, cache: cache, log: log}
}

// ResolveAndAssign is the write path used at login/SSO-callback time. It
// resolves the user's tenant, persists the assignment the first time, and
// guarantees an active membership row. Once a user has a primary tenant the
// result is stable: later calls return the same tenant no matter what email
// domain or IdP tenant id is supplied.
func (r *Resolver) ResolveAndAssign(ctx context.Context, userID uint, email, idpTenantID string) (*TenantContext, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: load user %d: %w", userID, err)
	}

	// An existing assignment short-circuits the chain. Users are never
	// silently re-homed on subsequent logins.
	if user.PrimaryTenantID != nil {
		tenant, err := r.store.GetTenant(ctx, *user.PrimaryTenantID)
		if err == nil {
			if err := r.ledger.EnsureMembership(ctx, user.ID, tenant.ID, user.Role); err != nil {
				return nil, err
			}
			return tenantContext(tenant, SourcePrimary), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("resolve tenant: load primary tenant %d: %w", *user.PrimaryTenantID, err)
		}
		r.log.Warn("primary tenant no longer exists, re-resolving",
			zap.Uint("user_id", user.ID),
			zap.Uint("primary_tenant_id", *user.PrimaryTenantID))
	}

	tenant, source, err := r.resolveByChain(ctx, email, idpTenantID)
	if err != nil {
		return nil, err
	}

	// One-time durable assignment, only if previously unset.
	if user.PrimaryTenantID == nil {
		if err := r.store.SetPrimaryTenant(ctx, user.ID, tenant.ID); err != nil {
			return nil, fmt.Errorf("resolve tenant: assign primary tenant: %w", err)
		}
	}

	if err := r.ledger.EnsureMembership(ctx, user.ID, tenant.ID, user.Role); err != nil {
		return nil, err
	}

	r.log.Info("tenant resolved",
		zap.Uint("user_id", user.ID),
		zap.Uint("tenant_id", tenant.ID),
		zap.String("source", source))

	return tenantContext(tenant, source), nil
}

// ResolveForExistingUser is the pure read path used by request-time
// middleware. It never writes state: primary tenant first, then any active
// membership, then the default tenant.
func (r *Resolver) ResolveForExistingUser(ctx context.Context, userID uint) (*TenantContext, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: load user %d: %w", userID, err)
	}

	if user.PrimaryTenantID != nil {
		tenant, err := r.store.GetTenant(ctx, *user.PrimaryTenantID)
		if err == nil {
			return tenantContext(tenant, SourcePrimary), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("resolve tenant: load primary tenant %d: %w", *user.PrimaryTenantID, err)
		}
	}

	if m, err := r.store.FirstActiveMembership(ctx, userID); err == nil {
		tenant, err := r.store.GetTenant(ctx, m.TenantID)
		if err == nil {
			return tenantContext(tenant, SourceMembership), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("resolve tenant: load membership tenant %d: %w", m.TenantID, err)
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("resolve tenant: load memberships for user %d: %w", userID, err)
	}

	tenant, err := r.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	return tenantContext(tenant, SourceDefault), nil
}

// resolveByChain tries the IdP tenant mapping, then the email-domain mapping,
// then the default tenant.
func (r *Resolver) resolveByChain(ctx context.Context, email, idpTenantID string) (*model.Tenant, string, error) {
	if idpTenantID != "" {
		tenant, err := r.store.GetTenantByAzureID(ctx, idpTenantID)
		if err == nil {
			return tenant, SourceIdP, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, "", fmt.Errorf("resolve tenant: idp lookup: %w", err)
		}
	}

	if domain := emailDomain(email); domain != "" {
		tenant, err := r.store.GetTenantByDomain(ctx, domain)
		if err == nil {
			return tenant, SourceDomain, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, "", fmt.Errorf("resolve tenant: domain lookup: %w", err)
		}
	}

	r.log.Warn("no tenant matched, falling back to default tenant",
		zap.String("email", email),
		zap.String("idp_tenant_id", idpTenantID))

	tenant, err := r.cache.Get(ctx)
	if err != nil {
		return nil, "", err
	}
	return tenant, SourceDefault, nil
}

// emailDomain extracts the lower-cased domain after the last '@'.
func emailDomain(email string) string {
	idx := strings.LastIndex(email, "@")
	if idx < 0 || idx == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[idx+1:])
}

func tenantContext(t *model.Tenant, source string) *TenantContext {
	return &TenantContext{
		TenantID:   t.ID,
		TenantSlug: t.Slug,
		TenantName: t.Name,
		Source:     source,
	}
}
