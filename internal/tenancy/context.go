// Package tenancy defines the tenant context value that must accompany every
// data operation.
//
// # Isolation Invariant
//
// Multiple tenants share the same physical tables; the tenant filter derived
// from this context is the sole mechanism preventing cross-tenant visibility.
// There is no secondary enforcement layer (no row-level security), so every
// query path must call Require before touching the store and scope by
// Context.TenantID with no exceptions.
package tenancy

import (
	"context"
	"slices"

	id "peopledesk/pkg/domain"
	"peopledesk/pkg/platform/sentinel"
	"peopledesk/pkg/requestcontext"
)

// Context carries the tenant and actor identity for one data operation.
// It is passed by value and never persisted.
type Context struct {
	TenantID id.TenantID
	// UserID is the acting user. Nil for unattributed operations
	// (system jobs, migrations).
	UserID id.UserID
	Roles  []string
}

// New returns a Context scoped to the given tenant.
func New(tenantID id.TenantID) Context {
	return Context{TenantID: tenantID}
}

// WithUser returns a copy of the context attributed to the given user.
func (c Context) WithUser(userID id.UserID) Context {
	c.UserID = userID
	return c
}

// WithRoles returns a copy of the context carrying the given roles.
func (c Context) WithRoles(roles ...string) Context {
	c.Roles = roles
	return c
}

// HasRole reports whether the acting user carries the named role.
func (c Context) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// Require is the single tenant-isolation enforcement point. Every gateway
// operation calls it before issuing any query. A missing tenant is a fatal
// programming/configuration error, never a transient fault.
func (c Context) Require() error {
	if c.TenantID.IsNil() {
		return sentinel.ErrTenantRequired
	}
	return nil
}

// FromRequest assembles a tenant context from values the upstream HTTP
// middleware placed in ctx. The zero TenantID is preserved so Require still
// fails fast when the middleware chain did not establish tenant identity.
func FromRequest(ctx context.Context) Context {
	return Context{
		TenantID: requestcontext.TenantID(ctx),
		UserID:   requestcontext.UserID(ctx),
	}
}
