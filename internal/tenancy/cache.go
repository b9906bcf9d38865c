package tenancy

import (
	"context"
	"sync"

	"tenancy-service/internal/model"
)

// DefaultTenantCache caches the configured default tenant after the first
// successful lookup. The cache has no TTL; Invalidate must be called on
// tenant-configuration changes.
type DefaultTenantCache struct {
	store Store
	slug  string

	mu     sync.RWMutex
	tenant *model.Tenant
}

// NewDefaultTenantCache creates a cache resolving the default tenant by slug.
func NewDefaultTenantCache(store Store, slug string) *DefaultTenantCache {
	return &DefaultTenantCache{store: store, slug: slug}
}

// Get returns the default tenant, looking it up at most once until
// invalidated. Returns ErrNoDefaultTenant when the slug resolves to nothing.
func (c *DefaultTenantCache) Get(ctx context.Context) (*model.Tenant, error) {
	c.mu.RLock()
	t := c.tenant
	c.mu.RUnlock()
	if t != nil {
		return t, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tenant != nil {
		return c.tenant, nil
	}

	tenant, err := c.store.GetTenantBySlug(ctx, c.slug)
	if err != nil {
		return nil, ErrNoDefaultTenant
	}
	c.tenant = tenant
	return tenant, nil
}

// Invalidate clears the cached tenant so the next Get hits the store again.
func (c *DefaultTenantCache) Invalidate() {
	c.mu.Lock()
	c.tenant = nil
	c.mu.Unlock()
}
