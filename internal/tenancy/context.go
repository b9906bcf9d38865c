package tenancy

// Resolution sources, in priority order.
const (
	SourcePrimary    = "primary"
	SourceMembership = "membership"
	SourceIdP        = "idp"
	SourceDomain     = "domain"
	SourceDefault    = "default"
)

// TenantContext is the per-request tenant scope attached by the middleware.
// Source records which step of the resolution chain produced it.
type TenantContext struct {
	TenantID   uint   `json:"tenant_id"`
	TenantSlug string `json:"tenant_slug"`
	TenantName string `json:"tenant_name"`
	Source     string `json:"source"`
}
