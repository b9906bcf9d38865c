package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tenancy-service/internal/model"
	"tenancy-service/internal/tenancy"

	"github.com/labstack/echo/v4"
)

// resolverStore is a minimal tenancy.Store for middleware tests: one user,
// one tenant, no memberships.
type resolverStore struct {
	user   *model.User
	tenant *model.Tenant
}

func (s *resolverStore) GetUser(_ context.Context, id uint) (*model.User, error) {
	if s.user != nil && s.user.ID == id {
		return s.user, nil
	}
	return nil, tenancy.ErrNotFound
}

func (s *resolverStore) SetPrimaryTenant(context.Context, uint, uint) error { return nil }

func (s *resolverStore) GetTenant(_ context.Context, id uint) (*model.Tenant, error) {
	if s.tenant != nil && s.tenant.ID == id {
		return s.tenant, nil
	}
	return nil, tenancy.ErrNotFound
}

func (s *resolverStore) GetTenantBySlug(_ context.Context, slug string) (*model.Tenant, error) {
	if s.tenant != nil && s.tenant.Slug == slug {
		return s.tenant, nil
	}
	return nil, tenancy.ErrNotFound
}

func (s *resolverStore) GetTenantByAzureID(context.Context, string) (*model.Tenant, error) {
	return nil, tenancy.ErrNotFound
}

func (s *resolverStore) GetTenantByDomain(context.Context, string) (*model.Tenant, error) {
	return nil, tenancy.ErrNotFound
}

func (s *resolverStore) UpsertMembership(context.Context, *model.TenantMembership) error { return nil }

func (s *resolverStore) GetMembership(context.Context, uint, uint) (*model.TenantMembership, error) {
	return nil, tenancy.ErrNotFound
}

func (s *resolverStore) FirstActiveMembership(context.Context, uint) (*model.TenantMembership, error) {
	return nil, tenancy.ErrNotFound
}

func newMiddlewareResolver(store *resolverStore, defaultSlug string) *tenancy.Resolver {
	cache := tenancy.NewDefaultTenantCache(store, defaultSlug)
	return tenancy.NewResolver(store, tenancy.NewLedger(store), cache, nil)
}

func invokeTenantContext(t *testing.T, resolver *tenancy.Resolver, userID interface{}) echo.Context {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/tenants/current", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != nil {
		c.Set("user_id", userID)
	}

	handler := TenantContext(resolver)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return c
}

func TestTenantContextAttachesResolvedTenant(t *testing.T) {
	tid := uint(3)
	store := &resolverStore{
		user:   &model.User{ID: 10, Email: "a@corp.com", PrimaryTenantID: &tid},
		tenant: &model.Tenant{ID: 3, Slug: "corp", Name: "Corp"},
	}
	c := invokeTenantContext(t, newMiddlewareResolver(store, "corp"), uint(10))

	if got, _ := c.Get("tenant_id").(uint); got != 3 {
		t.Fatalf("tenant_id = %v, want 3", c.Get("tenant_id"))
	}
	if got, _ := c.Get("tenant_slug").(string); got != "corp" {
		t.Fatalf("tenant_slug = %v", c.Get("tenant_slug"))
	}
	if got, _ := c.Get("tenant_source").(string); got != tenancy.SourcePrimary {
		t.Fatalf("tenant_source = %v", c.Get("tenant_source"))
	}
	if got := c.Request().Header.Get("X-Tenant-ID"); got != "3" {
		t.Fatalf("X-Tenant-ID = %q", got)
	}
	if got := c.Request().Header.Get("X-Tenant-Slug"); got != "corp" {
		t.Fatalf("X-Tenant-Slug = %q", got)
	}
}

func TestTenantContextProceedsUnscopedOnFailure(t *testing.T) {
	// No default tenant configured: resolution fails, but the request goes
	// through without tenant keys.
	store := &resolverStore{user: &model.User{ID: 10, Email: "a@corp.com"}}
	c := invokeTenantContext(t, newMiddlewareResolver(store, "missing"), uint(10))

	if _, ok := c.Get("tenant_id").(uint); ok {
		t.Fatal("tenant_id set despite failed resolution")
	}
}

func TestTenantContextSkipsUnauthenticated(t *testing.T) {
	store := &resolverStore{}
	c := invokeTenantContext(t, newMiddlewareResolver(store, "missing"), nil)

	if _, ok := c.Get("tenant_id").(uint); ok {
		t.Fatal("tenant_id set without a user")
	}
}

func TestRequireTenantContext(t *testing.T) {
	e := echo.New()

	run := func(tenantID interface{}) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/tenants/current", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if tenantID != nil {
			c.Set("tenant_id", tenantID)
		}
		handler := RequireTenantContext(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := handler(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		return rec
	}

	if rec := run(nil); rec.Code != http.StatusForbidden {
		t.Fatalf("unscoped request: status = %d, want 403", rec.Code)
	}
	if rec := run(uint(0)); rec.Code != http.StatusForbidden {
		t.Fatalf("zero tenant: status = %d, want 403", rec.Code)
	}
	if rec := run(uint(3)); rec.Code != http.StatusOK {
		t.Fatalf("scoped request: status = %d, want 200", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()

	run := func(role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/scheduler/restart", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if role != "" {
			c.Set("user_role", role)
		}
		handler := RequireRole("owner", "admin")(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := handler(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		return rec
	}

	if rec := run("member"); rec.Code != http.StatusForbidden {
		t.Fatalf("member: status = %d, want 403", rec.Code)
	}
	if rec := run(""); rec.Code != http.StatusForbidden {
		t.Fatalf("no role: status = %d, want 403", rec.Code)
	}
	if rec := run("admin"); rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, want 200", rec.Code)
	}
}
