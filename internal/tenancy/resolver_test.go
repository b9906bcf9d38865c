package tenancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"tenancy-service/internal/model"
)

// fakeStore is an in-memory Store with call counters for the write paths.
type fakeStore struct {
	users       map[uint]*model.User
	tenants     map[uint]*model.Tenant
	memberships map[[2]uint]*model.TenantMembership

	setPrimaryCalls int
	upsertCalls     int
	slugLookups     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[uint]*model.User),
		tenants:     make(map[uint]*model.Tenant),
		memberships: make(map[[2]uint]*model.TenantMembership),
	}
}

func (f *fakeStore) GetUser(_ context.Context, id uint) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) SetPrimaryTenant(_ context.Context, userID, tenantID uint) error {
	f.setPrimaryCalls++
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PrimaryTenantID = &tenantID
	return nil
}

func (f *fakeStore) GetTenant(_ context.Context, id uint) (*model.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetTenantBySlug(_ context.Context, slug string) (*model.Tenant, error) {
	f.slugLookups++
	for _, t := range f.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) GetTenantByAzureID(_ context.Context, azureTenantID string) (*model.Tenant, error) {
	for _, t := range f.tenants {
		if t.AzureTenantID != nil && *t.AzureTenantID == azureTenantID {
			return t, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) GetTenantByDomain(_ context.Context, domain string) (*model.Tenant, error) {
	var match *model.Tenant
	for _, t := range f.tenants {
		for _, d := range t.Domains {
			if d.Domain == domain && (match == nil || t.ID < match.ID) {
				match = t
			}
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return match, nil
}

func (f *fakeStore) UpsertMembership(_ context.Context, m *model.TenantMembership) error {
	f.upsertCalls++
	key := [2]uint{m.UserID, m.TenantID}
	if existing, ok := f.memberships[key]; ok {
		existing.Status = model.MembershipActive
		return nil
	}
	cp := *m
	f.memberships[key] = &cp
	return nil
}

func (f *fakeStore) GetMembership(_ context.Context, userID, tenantID uint) (*model.TenantMembership, error) {
	m, ok := f.memberships[[2]uint{userID, tenantID}]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) FirstActiveMembership(_ context.Context, userID uint) (*model.TenantMembership, error) {
	var first *model.TenantMembership
	for _, m := range f.memberships {
		if m.UserID != userID || m.Status != model.MembershipActive {
			continue
		}
		if first == nil || m.TenantID < first.TenantID {
			first = m
		}
	}
	if first == nil {
		return nil, ErrNotFound
	}
	return first, nil
}

func newTestResolver(store *fakeStore, defaultSlug string) *Resolver {
	cache := NewDefaultTenantCache(store, defaultSlug)
	return NewResolver(store, NewLedger(store), cache, nil)
}

func strptr(s string) *string { return &s }
func uintPtr(v uint) *uint    { return &v }

func TestResolveAndAssignPrimaryShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.tenants[1] = &model.Tenant{ID: 1, Slug: "acme", Name: "Acme"}
	store.tenants[2] = &model.Tenant{ID: 2, Slug: "other", Name: "Other", AzureTenantID: strptr("azure-2")}
	store.users[10] = &model.User{ID: 10, Email: "a@other.com", PrimaryTenantID: uintPtr(1)}

	r := newTestResolver(store, "acme")

	// IdP id and email domain both point at tenant 2; primary must win.
	tc, err := r.ResolveAndAssign(context.Background(), 10, "a@other.com", "azure-2")
	if err != nil {
		t.Fatalf("ResolveAndAssign: %v", err)
	}
	if tc.TenantID != 1 || tc.Source != SourcePrimary {
		t.Fatalf("got tenant %d source %q, want 1/%q", tc.TenantID, tc.Source, SourcePrimary)
	}
	if store.setPrimaryCalls != 0 {
		t.Fatalf("primary reassigned %d times, want 0", store.setPrimaryCalls)
	}
	if _, err := store.GetMembership(context.Background(), 10, 1); err != nil {
		t.Fatalf("membership not ensured: %v", err)
	}
}

func TestResolveAndAssignIdPBeatsDomain(t *testing.T) {
	store := newFakeStore()
	store.tenants[1] = &model.Tenant{ID: 1, Slug: "bydomain", Domains: []model.TenantDomain{{TenantID: 1, Domain: "corp.com"}}}
	store.tenants[2] = &model.Tenant{ID: 2, Slug: "byidp", AzureTenantID: strptr("azure-xyz")}
	store.users[10] = &model.User{ID: 10, Email: "a@corp.com"}

	r := newTestResolver(store, "bydomain")

	tc, err := r.ResolveAndAssign(context.Background(), 10, "a@corp.com", "azure-xyz")
	if err != nil {
		t.Fatalf("ResolveAndAssign: %v", err)
	}
	if tc.TenantID != 2 || tc.Source != SourceIdP {
		t.Fatalf("got tenant %d source %q, want 2/%q", tc.TenantID, tc.Source, SourceIdP)
	}
	if got := store.users[10].PrimaryTenantID; got == nil || *got != 2 {
		t.Fatalf("primary tenant not assigned to 2, got %v", got)
	}
}

func TestResolveAndAssignDomainMatch(t *testing.T) {
	store := newFakeStore()
	store.tenants[1] = &model.Tenant{ID: 1, Slug: "corp", Domains: []model.TenantDomain{{TenantID: 1, Domain: "corp.com"}}}
	store.tenants[9] = &model.Tenant{ID: 9, Slug: "default"}
	store.users[10] = &model.User{ID: 10, Email: "A@CORP.COM"}

	r := newTestResolver(store, "default")

	// Domain matching is case-insensitive on the email side.
	tc, err := r.ResolveAndAssign(context.Background(), 10, "A@CORP.COM", "")
	if err != nil {
		t.Fatalf("ResolveAndAssign: %v", err)
	}
	if tc.TenantID != 1 || tc.Source != SourceDomain {
		t.Fatalf("got tenant %d source %q, want 1/%q", tc.TenantID, tc.Source, SourceDomain)
	}
}

func TestResolveAndAssignDefaultFallback(t *testing.T) {
	store := newFakeStore()
	store.tenants[9] = &model.Tenant{ID: 9, Slug: "default", Name: "Default"}
	store.users[10] = &model.User{ID: 10, Email: "a@nowhere.io"}

	r := newTestResolver(store, "default")

	tc, err := r.ResolveAndAssign(context.Background(), 10, "a@nowhere.io", "")
	if err != nil {
		t.Fatalf("ResolveAndAssign: %v", err)
	}
	if tc.TenantID != 9 || tc.Source != SourceDefault {
		t.Fatalf("got tenant %d source %q, want 9/%q", tc.TenantID, tc.Source, SourceDefault)
	}
	if store.setPrimaryCalls != 1 {
		t.Fatalf("setPrimaryCalls = %d, want 1", store.setPrimaryCalls)
	}
}

func TestResolveAndAssignNoDefaultTenant(t *testing.T) {
	store := newFakeStore()
	store.users[10] = &model.User{ID: 10, Email: "a@nowhere.io"}

	r := newTestResolver(store, "missing")

	_, err := r.ResolveAndAssign(context.Background(), 10, "a@nowhere.io", "")
	if !errors.Is(err, ErrNoDefaultTenant) {
		t.Fatalf("got %v, want ErrNoDefaultTenant", err)
	}
	if store.setPrimaryCalls != 0 || store.upsertCalls != 0 {
		t.Fatalf("resolution failure must not write: setPrimary=%d upsert=%d", store.setPrimaryCalls, store.upsertCalls)
	}
}

func TestResolveAndAssignIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.tenants[1] = &model.Tenant{ID: 1, Slug: "corp", Domains: []model.TenantDomain{{TenantID: 1, Domain: "corp.com"}}}
	store.users[10] = &model.User{ID: 10, Email: "a@corp.com"}

	r := newTestResolver(store, "corp")

	first, err := r.ResolveAndAssign(context.Background(), 10, "a@corp.com", "")
	if err != nil {
		t.Fatalf("first ResolveAndAssign: %v", err)
	}
	joined := store.memberships[[2]uint{10, 1}].JoinedAt

	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 3; i++ {
		// Later logins supply a different (now bogus) IdP tenant id; the
		// stored assignment must still win.
		tc, err := r.ResolveAndAssign(context.Background(), 10, "a@corp.com", "some-other-idp")
		if err != nil {
			t.Fatalf("repeat ResolveAndAssign: %v", err)
		}
		if tc.TenantID != first.TenantID {
			t.Fatalf("re-resolution moved user to tenant %d", tc.TenantID)
		}
	}

	if store.setPrimaryCalls != 1 {
		t.Fatalf("setPrimaryCalls = %d, want 1", store.setPrimaryCalls)
	}
	if len(store.memberships) != 1 {
		t.Fatalf("membership rows = %d, want 1", len(store.memberships))
	}
	if !store.memberships[[2]uint{10, 1}].JoinedAt.Equal(joined) {
		t.Fatal("joined_at changed on re-resolution")
	}
}

func TestResolveAndAssignDanglingPrimaryFallsThrough(t *testing.T) {
	store := newFakeStore()
	store.tenants[9] = &model.Tenant{ID: 9, Slug: "default"}
	// Primary points at a tenant that no longer exists.
	store.users[10] = &model.User{ID: 10, Email: "a@nowhere.io", PrimaryTenantID: uintPtr(404)}

	r := newTestResolver(store, "default")

	tc, err := r.ResolveAndAssign(context.Background(), 10, "a@nowhere.io", "")
	if err != nil {
		t.Fatalf("ResolveAndAssign: %v", err)
	}
	if tc.TenantID != 9 || tc.Source != SourceDefault {
		t.Fatalf("got tenant %d source %q, want 9/%q", tc.TenantID, tc.Source, SourceDefault)
	}
	// The stale assignment is left in place, never overwritten.
	if store.setPrimaryCalls != 0 {
		t.Fatalf("setPrimaryCalls = %d, want 0", store.setPrimaryCalls)
	}
}

func TestResolveForExistingUserIsReadOnly(t *testing.T) {
	store := newFakeStore()
	store.tenants[9] = &model.Tenant{ID: 9, Slug: "default"}
	store.users[10] = &model.User{ID: 10, Email: "a@nowhere.io"}

	r := newTestResolver(store, "default")

	tc, err := r.ResolveForExistingUser(context.Background(), 10)
	if err != nil {
		t.Fatalf("ResolveForExistingUser: %v", err)
	}
	if tc.TenantID != 9 || tc.Source != SourceDefault {
		t.Fatalf("got tenant %d source %q, want 9/%q", tc.TenantID, tc.Source, SourceDefault)
	}
	if store.setPrimaryCalls != 0 || store.upsertCalls != 0 {
		t.Fatalf("read path wrote state: setPrimary=%d upsert=%d", store.setPrimaryCalls, store.upsertCalls)
	}
}

func TestResolveForExistingUserMembershipFallback(t *testing.T) {
	store := newFakeStore()
	store.tenants[3] = &model.Tenant{ID: 3, Slug: "member-of"}
	store.users[10] = &model.User{ID: 10, Email: "a@nowhere.io"}
	store.memberships[[2]uint{10, 3}] = &model.TenantMembership{
		UserID: 10, TenantID: 3, Status: model.MembershipActive, JoinedAt: time.Now(),
	}

	r := newTestResolver(store, "missing")

	tc, err := r.ResolveForExistingUser(context.Background(), 10)
	if err != nil {
		t.Fatalf("ResolveForExistingUser: %v", err)
	}
	if tc.TenantID != 3 || tc.Source != SourceMembership {
		t.Fatalf("got tenant %d source %q, want 3/%q", tc.TenantID, tc.Source, SourceMembership)
	}
}

func TestResolveForExistingUserSuspendedMembershipIgnored(t *testing.T) {
	store := newFakeStore()
	store.tenants[3] = &model.Tenant{ID: 3, Slug: "member-of"}
	store.tenants[9] = &model.Tenant{ID: 9, Slug: "default"}
	store.users[10] = &model.User{ID: 10, Email: "a@nowhere.io"}
	store.memberships[[2]uint{10, 3}] = &model.TenantMembership{
		UserID: 10, TenantID: 3, Status: model.MembershipSuspended, JoinedAt: time.Now(),
	}

	r := newTestResolver(store, "default")

	tc, err := r.ResolveForExistingUser(context.Background(), 10)
	if err != nil {
		t.Fatalf("ResolveForExistingUser: %v", err)
	}
	if tc.TenantID != 9 || tc.Source != SourceDefault {
		t.Fatalf("got tenant %d source %q, want 9/%q", tc.TenantID, tc.Source, SourceDefault)
	}
}

func TestEnsureMembershipReactivatesSuspended(t *testing.T) {
	store := newFakeStore()
	joined := time.Now().Add(-24 * time.Hour)
	store.memberships[[2]uint{10, 1}] = &model.TenantMembership{
		UserID: 10, TenantID: 1, Role: "admin", Status: model.MembershipSuspended, JoinedAt: joined,
	}

	ledger := NewLedger(store)
	if err := ledger.EnsureMembership(context.Background(), 10, 1, ""); err != nil {
		t.Fatalf("EnsureMembership: %v", err)
	}

	m := store.memberships[[2]uint{10, 1}]
	if m.Status != model.MembershipActive {
		t.Fatalf("status = %q, want active", m.Status)
	}
	if m.Role != "admin" {
		t.Fatalf("role changed to %q on reactivation", m.Role)
	}
	if !m.JoinedAt.Equal(joined) {
		t.Fatal("joined_at changed on reactivation")
	}
}

func TestDefaultTenantCacheMemoizesAndInvalidates(t *testing.T) {
	store := newFakeStore()
	store.tenants[9] = &model.Tenant{ID: 9, Slug: "default"}

	cache := NewDefaultTenantCache(store, "default")
	for i := 0; i < 3; i++ {
		if _, err := cache.Get(context.Background()); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if store.slugLookups != 1 {
		t.Fatalf("slug lookups = %d, want 1", store.slugLookups)
	}

	cache.Invalidate()
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if store.slugLookups != 2 {
		t.Fatalf("slug lookups after invalidate = %d, want 2", store.slugLookups)
	}
}

func TestEmailDomain(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"a@corp.com", "corp.com"},
		{"A@CORP.COM", "corp.com"},
		{"weird@name@corp.com", "corp.com"},
		{"no-at-sign", ""},
		{"trailing@", ""},
	}
	for _, tc := range cases {
		if got := emailDomain(tc.email); got != tc.want {
			t.Errorf("emailDomain(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}
