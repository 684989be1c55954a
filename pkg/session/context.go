package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// Context is the per-request tenant, user and admin flag. It is built once by
// the Resolver and never mutated; switching tenants produces a new Context.
type Context struct {
	userID     uuid.UUID
	tenantID   uuid.UUID
	role       rbac.Role
	superAdmin bool
	method     auth.Method
	sessionID  string
	apiKeyID   uuid.UUID
	memo       *rbac.Memo
}

// New builds a context without consulting the membership store. Requests get
// their contexts from the Resolver; New serves jobs and tests.
func New(id *auth.Identity, tenantID uuid.UUID, role rbac.Role, superAdmin bool) *Context {
	return newContext(id, tenantID, role, superAdmin)
}

func newContext(id *auth.Identity, tenantID uuid.UUID, role rbac.Role, superAdmin bool) *Context {
	return &Context{
		userID:     id.UserID,
		tenantID:   tenantID,
		role:       role,
		superAdmin: superAdmin,
		method:     id.Method,
		sessionID:  id.SessionID,
		apiKeyID:   id.APIKeyID,
		memo:       rbac.NewMemo(),
	}
}

// UserID returns the authenticated user
func (c *Context) UserID() uuid.UUID { return c.userID }

// TenantID returns the selected tenant, or uuid.Nil before one is selected
func (c *Context) TenantID() uuid.UUID { return c.tenantID }

// HasTenant reports whether a tenant is selected
func (c *Context) HasTenant() bool { return c.tenantID != uuid.Nil }

// Role returns the membership role in the selected tenant. Super admins
// acting outside their own tenants have rbac.RoleNone.
func (c *Context) Role() rbac.Role { return c.role }

// IsSuperAdmin reports whether the user is a platform administrator
func (c *Context) IsSuperAdmin() bool { return c.superAdmin }

// Method returns how the request was authenticated
func (c *Context) Method() auth.Method { return c.method }

// SessionID returns the browser session id, empty for API keys
func (c *Context) SessionID() string { return c.sessionID }

// APIKeyID returns the API key id, uuid.Nil for browser sessions
func (c *Context) APIKeyID() uuid.UUID { return c.apiKeyID }

// Subject is the evaluator input for this context
func (c *Context) Subject() rbac.Subject {
	return rbac.Subject{Role: c.role, SuperAdmin: c.superAdmin}
}

// Scope is the isolation scope every query of this request runs under
func (c *Context) Scope() postgres.Scope {
	return postgres.Scope{TenantID: c.tenantID, UserID: c.userID, SuperAdmin: c.superAdmin}
}

// Authorize implements rbac.Authorizer with per-request memoization
func (c *Context) Authorize(mode rbac.Combinator, caps ...rbac.Capability) rbac.Decision {
	return c.memo.EvaluateSet(c.Subject(), mode, caps...)
}

// Can reports whether the context holds capability
func (c *Context) Can(capability rbac.Capability) bool {
	return c.memo.Evaluate(c.Subject(), capability).Allowed
}

// ForeignTenant reports whether a super admin is acting in a tenant where
// they hold no membership. Every action in such a context skips the
// membership check a regular user would fail.
func (c *Context) ForeignTenant() bool {
	return c.superAdmin && c.HasTenant() && c.role == rbac.RoleNone
}

// PrivilegeBypassed reports whether any check so far was allowed only by the
// super admin bypass, or the context itself is a foreign tenant. Audit
// records of the request carry this flag.
func (c *Context) PrivilegeBypassed() bool {
	return c.ForeignTenant() || c.memo.Bypassed()
}

// WithContext attaches sc to ctx along with the isolation scope and the
// logging keys derived from it
func WithContext(ctx context.Context, sc *Context) context.Context {
	ctx = contextkeys.WithSession(ctx, sc)
	ctx = postgres.WithScope(ctx, sc.Scope())
	ctx = contextkeys.WithUserID(ctx, sc.userID.String())
	if sc.HasTenant() {
		ctx = contextkeys.WithTenantID(ctx, sc.tenantID.String())
	}
	return ctx
}

// FromContext returns the session attached to ctx
func FromContext(ctx context.Context) (*Context, bool) {
	sc, ok := ctx.Value(contextkeys.SessionKey).(*Context)
	return sc, ok && sc != nil
}

// MustFromContext returns the session attached to ctx and panics if there is
// none. Only use it behind the session middleware.
func MustFromContext(ctx context.Context) *Context {
	sc, ok := FromContext(ctx)
	if !ok {
		panic("session: no session context attached")
	}
	return sc
}

// HasPermission reports whether the session in ctx holds capability. A request
// without a session holds nothing.
func HasPermission(ctx context.Context, capability rbac.Capability) bool {
	sc, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return sc.Can(capability)
}
