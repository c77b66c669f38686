package shared

import "context"

// Tenant identifies the already-authenticated caller. It is supplied by the
// upstream gateway and trusted as is.
type Tenant struct {
	CompanyID int64
	UserID    int64
}

type tenantContextKey struct{}

// ContextWithTenant stores the tenant in context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the tenant from context.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok && t.CompanyID > 0
}
